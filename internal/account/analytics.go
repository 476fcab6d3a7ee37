package account

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/policy"
)

// Metric types recorded internally by the facade.
const (
	MetricUserSignup = "user_signup"
	MetricUserLogin  = "user_login"
	MetricOrgCreated = "org_created"
)

// AnalyticsService records org-scoped metric events and produces summaries.
type AnalyticsService struct {
	db     *pgxpool.Pool
	engine *policy.Engine
}

func NewAnalyticsService(db *pgxpool.Pool, engine *policy.Engine) *AnalyticsService {
	return &AnalyticsService{db: db, engine: engine}
}

// Record writes a metric event. Non-blocking on failure -- errors are
// ignored since metrics must never break the main flow.
func (a *AnalyticsService) Record(ctx context.Context, orgID *string, metricType string, value float64, metadata map[string]interface{}) {
	metaJSON := []byte("{}")
	if metadata != nil {
		metaJSON, _ = json.Marshal(metadata)
	}

	a.db.Exec(ctx, `
		INSERT INTO public.analytics (id, organization_id, metric_type, metric_value, metadata)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.NewString(), orgID, metricType, value, string(metaJSON))
}

// MetricSummary aggregates one metric type for one organization.
type MetricSummary struct {
	OrganizationID *string `json:"organization_id"`
	MetricType     string  `json:"metric_type"`
	Count          int64   `json:"count"`
	Total          float64 `json:"total"`
}

// Summary aggregates events visible to actor: super admins see every
// organization, members only their own. Unaffiliated actors are denied.
func (a *AnalyticsService) Summary(ctx context.Context, actor policy.Actor) ([]MetricSummary, error) {
	query := `
		SELECT organization_id, metric_type, COUNT(*), COALESCE(SUM(metric_value), 0)
		FROM public.analytics
		GROUP BY organization_id, metric_type
		ORDER BY metric_type`
	args := []interface{}{}

	if actor.Role != policy.RoleSuperAdmin && !actor.TrustedBackend {
		if actor.OrganizationID == nil {
			return nil, apperr.Authorization("not allowed to view analytics")
		}
		res := policy.Resource{OrganizationID: actor.OrganizationID}
		if d := a.engine.Evaluate(actor, policy.OpAnalyticsRead, res); !d.Allowed {
			return nil, apperr.Authorization("not allowed to view analytics")
		}
		query = `
			SELECT organization_id, metric_type, COUNT(*), COALESCE(SUM(metric_value), 0)
			FROM public.analytics
			WHERE organization_id = $1
			GROUP BY organization_id, metric_type
			ORDER BY metric_type`
		args = append(args, *actor.OrganizationID)
	}

	rows, err := a.db.Query(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "analytics query failed", err)
	}
	defer rows.Close()

	summaries := []MetricSummary{}
	for rows.Next() {
		var s MetricSummary
		if err := rows.Scan(&s.OrganizationID, &s.MetricType, &s.Count, &s.Total); err != nil {
			return nil, apperr.Wrap(apperr.KindTransientStore, "analytics scan failed", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "analytics query failed", err)
	}
	return summaries, nil
}
