package account

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/apperr"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/config"
)

// exportTable names a snapshotted table and the timestamp column that keeps
// its dump ordering stable across runs.
type exportTable struct {
	name    string
	orderBy string
}

// exportTables are the tables snapshotted to object storage. Profile and
// principal rows stay out: snapshots are for analytical retention, not PII
// replication.
var exportTables = []exportTable{
	{name: "analytics", orderBy: "recorded_at"},
	{name: "audit_log", orderBy: "created_at"},
}

// ExportService writes periodic JSONL snapshots of the analytics and audit
// tables to an S3-compatible bucket. When a passphrase is configured each
// object is sealed client side before upload.
type ExportService struct {
	db     *pgxpool.Pool
	cfg    *config.Config
	client *s3.Client

	mu      sync.Mutex
	lastRun time.Time
}

func NewExportService(db *pgxpool.Pool, cfg *config.Config) *ExportService {
	s := &ExportService{db: db, cfg: cfg}
	if cfg.ExportEnabled() {
		s.client = s3.New(s3.Options{
			Region:       cfg.ExportS3Region,
			Credentials:  credentials.NewStaticCredentialsProvider(cfg.ExportS3AccessKey, cfg.ExportS3SecretKey, ""),
			BaseEndpoint: aws.String(cfg.ExportS3Endpoint),
			UsePathStyle: true,
		})
	}
	return s
}

// Enabled reports whether an upload target is configured.
func (s *ExportService) Enabled() bool {
	return s.client != nil
}

// Due reports whether the configured interval has elapsed since the last
// successful run. A fresh process is immediately due.
func (s *ExportService) Due(now time.Time) bool {
	if !s.Enabled() {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastRun) >= time.Duration(s.cfg.ExportInterval)*time.Hour
}

// ExportReport summarizes one run.
type ExportReport struct {
	Objects []ExportedObject `json:"objects"`
	RanAt   time.Time        `json:"ran_at"`
}

type ExportedObject struct {
	Table string `json:"table"`
	Key   string `json:"key"`
	Rows  int    `json:"rows"`
	Bytes int    `json:"bytes"`
}

// Run snapshots every export table and uploads the results. A failed table
// fails the whole run; the next scheduler tick retries.
func (s *ExportService) Run(ctx context.Context) (*ExportReport, error) {
	if !s.Enabled() {
		return nil, apperr.Configuration("snapshot export is not configured")
	}

	now := time.Now().UTC()
	report := &ExportReport{RanAt: now}
	for _, table := range exportTables {
		obj, err := s.exportTable(ctx, table, now)
		if err != nil {
			return nil, err
		}
		report.Objects = append(report.Objects, *obj)
	}

	s.mu.Lock()
	s.lastRun = now
	s.mu.Unlock()

	slog.Info("snapshot export completed", "objects", len(report.Objects))
	return report, nil
}

func (s *ExportService) exportTable(ctx context.Context, table exportTable, now time.Time) (*ExportedObject, error) {
	payload, rowCount, err := s.dumpJSONL(ctx, table)
	if err != nil {
		return nil, err
	}

	key := s.objectKey(table.name, now)
	body := payload
	if s.cfg.ExportPassphrase != "" {
		sealed, err := EncryptSnapshot(payload, s.cfg.ExportPassphrase)
		if err != nil {
			return nil, fmt.Errorf("seal snapshot %s: %w", table.name, err)
		}
		body = []byte(sealed)
		key += ".enc"
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.ExportS3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransientStore, "snapshot upload failed", err)
	}

	return &ExportedObject{Table: table.name, Key: key, Rows: rowCount, Bytes: len(body)}, nil
}

// dumpJSONL renders every row of a table as one JSON object per line.
func (s *ExportService) dumpJSONL(ctx context.Context, table exportTable) ([]byte, int, error) {
	rows, err := s.db.Query(ctx, `SELECT * FROM public.`+table.name+` ORDER BY `+table.orderBy+` ASC`)
	if err != nil {
		return nil, 0, apperr.Wrap(apperr.KindTransientStore, "snapshot query failed", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, fd := range fields {
		columns[i] = string(fd.Name)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	count := 0
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, 0, apperr.Wrap(apperr.KindTransientStore, "snapshot scan failed", err)
		}
		record := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			record[col] = normalizeExportValue(values[i])
		}
		if err := enc.Encode(record); err != nil {
			return nil, 0, fmt.Errorf("encode snapshot row: %w", err)
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperr.Wrap(apperr.KindTransientStore, "snapshot query failed", err)
	}
	return buf.Bytes(), count, nil
}

// normalizeExportValue flattens pgx driver values into JSON-friendly shapes.
func normalizeExportValue(v interface{}) interface{} {
	switch val := v.(type) {
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case [16]byte: // uuid
		return fmt.Sprintf("%x-%x-%x-%x-%x", val[0:4], val[4:6], val[6:8], val[8:10], val[10:16])
	case []byte:
		return string(val)
	default:
		return v
	}
}

// objectKey lays snapshots out by date so bucket listings stay browsable:
// <prefix>/2026/08/30/analytics-20260830T120000Z.jsonl
func (s *ExportService) objectKey(table string, now time.Time) string {
	prefix := strings.Trim(s.cfg.ExportS3Prefix, "/")
	key := fmt.Sprintf("%s/%s-%s.jsonl", now.Format("2006/01/02"), table, now.Format("20060102T150405Z"))
	if prefix != "" {
		key = prefix + "/" + key
	}
	return key
}
