package database

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// JWTClaims holds the claims injected into the row-security context.
type JWTClaims map[string]interface{}

// validRoleName gates what may be interpolated into SET LOCAL ROLE, which
// takes no bind parameters.
var validRoleName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ExecuteWithRLS runs fn inside a transaction carrying the Postgres
// row-security context: SET LOCAL ROLE plus the request JWT claims. Row
// policies evaluate against that state, so the access decision and the row
// access share one transaction. The service role is the trusted backend path
// and skips the context entirely.
func ExecuteWithRLS[T any](
	ctx context.Context,
	pool *pgxpool.Pool,
	role string,
	claims JWTClaims,
	fn func(tx pgx.Tx) (T, error),
) (T, error) {
	var zero T

	if role != RoleService && !validRoleName.MatchString(role) {
		return zero, fmt.Errorf("invalid role name: %s", role)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return zero, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if role != RoleService {
		if err := applyRowSecurity(ctx, tx, role, claims); err != nil {
			return zero, err
		}
	}

	result, err := fn(tx)
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("commit tx: %w", err)
	}
	return result, nil
}

// applyRowSecurity switches the transaction to the request role and publishes
// the JWT claims where the schema's auth helpers read them.
func applyRowSecurity(ctx context.Context, tx pgx.Tx, role string, claims JWTClaims) error {
	if _, err := tx.Exec(ctx, fmt.Sprintf(`SET LOCAL ROLE "%s"`, role)); err != nil {
		return fmt.Errorf("set role %s: %w", role, err)
	}

	claimsJSON, _ := json.Marshal(claims)
	if _, err := tx.Exec(ctx, `SELECT set_config('request.jwt.claims', $1, true)`, string(claimsJSON)); err != nil {
		return fmt.Errorf("set jwt claims: %w", err)
	}

	// Single-field slots for policies that do not want to parse the JSON.
	for _, name := range []string{"sub", "role", "email"} {
		if v, ok := claims[name].(string); ok && v != "" {
			_, _ = tx.Exec(ctx, `SELECT set_config('request.jwt.claim.`+name+`', $1, true)`, v)
		}
	}
	return nil
}

// ClaimsForPrincipal builds the row-security claims for an authenticated
// principal.
func ClaimsForPrincipal(principalID, email string) JWTClaims {
	return JWTClaims{
		"sub":   principalID,
		"role":  RoleAuthenticated,
		"email": email,
	}
}
