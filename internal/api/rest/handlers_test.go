package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/config"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/database"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const testRestSecret = "test-rest-jwt-secret-long-enough-32ch"

func newTestHandler() *Handler {
	return NewHandler(nil, &config.Config{JWTSecret: testRestSecret})
}

func generateTestUserJWT(secret, principalID, email, role string) string {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   principalID,
		"email": email,
		"role":  role,
		"exp":   now.Add(time.Hour).Unix(),
		"iat":   now.Unix(),
		"aud":   "authenticated",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, _ := token.SignedString([]byte(secret))
	return signed
}

// ---------------------------------------------------------------------------
// Table allowlist
// ---------------------------------------------------------------------------

func TestHandleTable_UnknownTable(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/audit_log", nil)
	rec := httptest.NewRecorder()

	h.HandleTable(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected status 404, got %d", rec.Code)
	}

	var body map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&body)
	if body["code"] != "PGRST205" {
		t.Errorf("expected code PGRST205, got %v", body["code"])
	}
}

func TestHandleTable_MissingTableName(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/", nil)
	rec := httptest.NewRecorder()

	h.HandleTable(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleTable_NestedPathRejected(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles/nested", nil)
	rec := httptest.NewRecorder()

	h.HandleTable(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400, got %d", rec.Code)
	}
}

func TestHandleTable_UpdateWithoutFilter(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodPatch, "/rest/v1/profiles",
		strings.NewReader(`{"first_name":"x"}`))
	rec := httptest.NewRecorder()

	h.HandleTable(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unfiltered update, got %d", rec.Code)
	}
}

func TestHandleTable_DeleteWithoutFilter(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodDelete, "/rest/v1/analytics", nil)
	rec := httptest.NewRecorder()

	h.HandleTable(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected status 400 for unfiltered delete, got %d", rec.Code)
	}
}

// ---------------------------------------------------------------------------
// Role resolution
// ---------------------------------------------------------------------------

func TestResolveRoleAndClaims_DefaultsToAnon(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)
	role, claims := h.resolveRoleAndClaims(req)

	if role != database.RoleAnon {
		t.Errorf("expected role anon, got %q", role)
	}
	if claims["role"] != database.RoleAnon {
		t.Errorf("expected anon claims, got %v", claims)
	}
}

func TestResolveRoleAndClaims_UserJWTUpgrades(t *testing.T) {
	h := newTestHandler()

	token := generateTestUserJWT(testRestSecret, "user-1", "a@b.test", "authenticated")
	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)
	req.Header.Set("apikey", "anon-key")
	req.Header.Set("Authorization", "Bearer "+token)

	role, claims := h.resolveRoleAndClaims(req)

	if role != "authenticated" {
		t.Errorf("expected role authenticated, got %q", role)
	}
	if claims["sub"] != "user-1" {
		t.Errorf("expected sub claim user-1, got %v", claims["sub"])
	}
}

func TestResolveRoleAndClaims_BadSignatureKeepsAnon(t *testing.T) {
	h := newTestHandler()

	token := generateTestUserJWT("wrong-secret-wrong-secret-wrong-32", "user-1", "a@b.test", "authenticated")
	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)
	req.Header.Set("Authorization", "Bearer "+token)

	role, _ := h.resolveRoleAndClaims(req)

	if role != database.RoleAnon {
		t.Errorf("expected anon after invalid token, got %q", role)
	}
}

func TestResolveRoleAndClaims_TokenEqualsAPIKeyStaysAnon(t *testing.T) {
	h := newTestHandler()

	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)
	req.Header.Set("apikey", "the-anon-key")
	req.Header.Set("Authorization", "Bearer the-anon-key")

	role, _ := h.resolveRoleAndClaims(req)

	if role != database.RoleAnon {
		t.Errorf("expected anon when bearer equals apikey, got %q", role)
	}
}

// ---------------------------------------------------------------------------
// Filter parsing
// ---------------------------------------------------------------------------

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name     string
		column   string
		value    string
		wantSQL  string
		wantArgs int
	}{
		{"eq", "email", "eq.a@b.test", `"email" = $1`, 1},
		{"neq", "role", "neq.user", `"role" != $1`, 1},
		{"gt", "value", "gt.5", `"value" > $1`, 1},
		{"gte", "value", "gte.5", `"value" >= $1`, 1},
		{"lt", "value", "lt.5", `"value" < $1`, 1},
		{"lte", "value", "lte.5", `"value" <= $1`, 1},
		{"like", "name", "like.ac%", `"name" LIKE $1`, 1},
		{"ilike", "name", "ilike.ac%", `"name" ILIKE $1`, 1},
		{"is_null", "organization_id", "is.null", `"organization_id" IS NULL`, 0},
		{"is_true", "is_active", "is.true", `"is_active" IS TRUE`, 0},
		{"in", "role", "in.(user,manager)", `"role" IN ($1, $2)`, 2},
		{"negated_eq", "role", "not.eq.user", `NOT ("role" = $1)`, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cond, args, _ := parseFilter(tt.column, tt.value, 1)
			if cond != tt.wantSQL {
				t.Errorf("condition = %q, want %q", cond, tt.wantSQL)
			}
			if len(args) != tt.wantArgs {
				t.Errorf("got %d args, want %d", len(args), tt.wantArgs)
			}
		})
	}
}

func TestParseFilter_UnsupportedOperatorIgnored(t *testing.T) {
	for _, op := range []string{"cs.{1}", "ov.{1}", "fts.term", "bogus.x"} {
		cond, args, idx := parseFilter("col", op, 1)
		if cond != "" || args != nil || idx != 1 {
			t.Errorf("operator %q should be ignored, got condition %q", op, cond)
		}
	}
}

func TestParseFilter_NoOperator(t *testing.T) {
	cond, _, _ := parseFilter("col", "plainvalue", 1)
	if cond != "" {
		t.Errorf("expected empty condition, got %q", cond)
	}
}

func TestBuildWhereClause(t *testing.T) {
	q := map[string][]string{
		"email":  {"eq.a@b.test"},
		"select": {"id,email"},
		"order":  {"created_at.desc"},
		"limit":  {"10"},
		"offset": {"5"},
	}

	where, args := buildWhereClause(q)
	if where != ` WHERE "email" = $1` {
		t.Errorf("where = %q", where)
	}
	if len(args) != 1 || args[0] != "a@b.test" {
		t.Errorf("args = %v", args)
	}
}

func TestBuildWhereClause_Empty(t *testing.T) {
	where, args := buildWhereClause(map[string][]string{"select": {"*"}})
	if where != "" || args != nil {
		t.Errorf("expected empty clause, got %q with %v", where, args)
	}
}

// ---------------------------------------------------------------------------
// Select / order / prefer parsing
// ---------------------------------------------------------------------------

func TestBuildSelectClause(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "*"},
		{"*", "*"},
		{"id,email", `"id", "email"`},
		{"name:first_name", `"first_name" AS "name"`},
		{"org(name)", "*"},
		{`id,weird"col`, `"id", "weird""col"`},
	}

	for _, tt := range tests {
		if got := buildSelectClause(tt.in); got != tt.want {
			t.Errorf("buildSelectClause(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBuildOrderClause(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"created_at", `"created_at" ASC`},
		{"created_at.desc", `"created_at" DESC`},
		{"a.asc,b.desc.nullslast", `"a" ASC, "b" DESC NULLS LAST`},
		{"x.nullsfirst", `"x" ASC NULLS FIRST`},
	}

	for _, tt := range tests {
		if got := buildOrderClause(tt.in); got != tt.want {
			t.Errorf("buildOrderClause(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParsePrefer(t *testing.T) {
	prefs := parsePrefer("return=representation, count=exact")
	if prefs["return"] != "representation" {
		t.Errorf("return = %q", prefs["return"])
	}
	if prefs["count"] != "exact" {
		t.Errorf("count = %q", prefs["count"])
	}
}

func TestQuoteIdent(t *testing.T) {
	if got := quoteIdent(`users"; DROP TABLE x--`); got != `"users""; DROP TABLE x--"` {
		t.Errorf("quoteIdent escaping broken: %q", got)
	}
}

func TestExtractTableName(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/rest/v1/profiles", "profiles"},
		{"/rest/v1/profiles/", "profiles"},
		{"/rest/v1/", ""},
		{"/rest/v1/a/b", ""},
	}
	for _, tt := range tests {
		if got := extractTableName(tt.path); got != tt.want {
			t.Errorf("extractTableName(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// Response shaping
// ---------------------------------------------------------------------------

func TestWriteMaybeObject_SingleObject(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	writeMaybeObject(rec, req, http.StatusOK, []map[string]interface{}{{"id": "1"}})

	var body map[string]interface{}
	json.NewDecoder(rec.Body).Decode(&body)
	if body["id"] != "1" {
		t.Errorf("expected single object, got %v", body)
	}
}

func TestWriteMaybeObject_MultipleRowsRejected(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)
	req.Header.Set("Accept", "application/vnd.pgrst.object+json")

	writeMaybeObject(rec, req, http.StatusOK, []map[string]interface{}{{"id": "1"}, {"id": "2"}})

	if rec.Code != http.StatusNotAcceptable {
		t.Errorf("expected 406, got %d", rec.Code)
	}
}

func TestWriteMaybeObject_ArrayDefault(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rest/v1/profiles", nil)

	writeMaybeObject(rec, req, http.StatusOK, []map[string]interface{}{})

	var body []map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("expected array body: %v", err)
	}
	if len(body) != 0 {
		t.Errorf("expected empty array, got %v", body)
	}
}

func TestConvertPgValue_Time(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	got, ok := convertPgValue(ts).(string)
	if !ok || !strings.HasPrefix(got, "2026-03-01T12:00:00") {
		t.Errorf("convertPgValue(time) = %v", got)
	}
}
