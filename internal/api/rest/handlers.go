package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wealthjourneyunveiled/WorkflowGene/internal/config"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/database"
	"github.com/wealthjourneyunveiled/WorkflowGene/internal/middleware"
)

// exposedTables is the explicit allowlist for the data API. Everything else,
// including the auth schema and audit log, stays server side.
var exposedTables = map[string]bool{
	"profiles":      true,
	"organizations": true,
	"analytics":     true,
}

// Handler serves the PostgREST-style data API on /rest/v1/{table}. Every
// request runs inside an RLS transaction under the role its credentials
// resolve to, so row policies are the only authorization layer here.
type Handler struct {
	db        *pgxpool.Pool
	jwtSecret []byte
}

func NewHandler(db *pgxpool.Pool, cfg *config.Config) *Handler {
	return &Handler{db: db, jwtSecret: []byte(cfg.JWTSecret)}
}

// HandleTable handles all CRUD operations on /rest/v1/{table}
func (h *Handler) HandleTable(w http.ResponseWriter, r *http.Request) {
	table := extractTableName(r.URL.Path)
	if table == "" {
		writeError(w, http.StatusBadRequest, "PGRST100", "missing table name")
		return
	}
	if !exposedTables[table] {
		writeError(w, http.StatusNotFound, "PGRST205", "requested resource does not exist")
		return
	}

	role, claims := h.resolveRoleAndClaims(r)
	ctx := r.Context()

	switch r.Method {
	case http.MethodGet, http.MethodHead:
		h.handleSelect(ctx, w, r, role, claims, table)
	case http.MethodPost:
		h.handleInsert(ctx, w, r, role, claims, table)
	case http.MethodPatch:
		h.handleUpdate(ctx, w, r, role, claims, table)
	case http.MethodDelete:
		h.handleDelete(ctx, w, r, role, claims, table)
	default:
		writeError(w, http.StatusMethodNotAllowed, "PGRST105", "method not allowed")
	}
}

// ---------- CRUD handlers ----------

func (h *Handler) handleSelect(ctx context.Context, w http.ResponseWriter, r *http.Request, role string, claims database.JWTClaims, table string) {
	q := r.URL.Query()

	selectCols := "*"
	if s := q.Get("select"); s != "" {
		selectCols = buildSelectClause(s)
	}

	where, whereArgs := buildWhereClause(q)

	orderBy := ""
	if o := q.Get("order"); o != "" {
		orderBy = " ORDER BY " + buildOrderClause(o)
	}

	limitOffset := ""
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limitOffset += fmt.Sprintf(" LIMIT %d", n)
		}
	}
	if o := q.Get("offset"); o != "" {
		if n, err := strconv.Atoi(o); err == nil {
			limitOffset += fmt.Sprintf(" OFFSET %d", n)
		}
	}

	query := fmt.Sprintf(`SELECT %s FROM public.%s%s%s%s`,
		selectCols, quoteIdent(table), where, orderBy, limitOffset)

	prefer := parsePrefer(r.Header.Get("Prefer"))
	wantCount := prefer["count"] != ""

	result, err := database.ExecuteWithRLS(ctx, h.db, role, claims, func(tx pgx.Tx) ([]map[string]interface{}, error) {
		rows, err := tx.Query(ctx, query, whereArgs...)
		if err != nil {
			return nil, err
		}
		data, err := collectRows(rows)
		if err != nil {
			return nil, err
		}

		if wantCount {
			countQuery := fmt.Sprintf(`SELECT COUNT(*) FROM public.%s%s`, quoteIdent(table), where)
			var total int
			if err := tx.QueryRow(ctx, countQuery, whereArgs...).Scan(&total); err == nil {
				w.Header().Set("Content-Range", fmt.Sprintf("0-%d/%d", len(data)-1, total))
			}
		}
		return data, nil
	})
	if err != nil {
		writeDBError(w, err)
		return
	}

	writeMaybeObject(w, r, http.StatusOK, result)
}

func (h *Handler) handleInsert(ctx context.Context, w http.ResponseWriter, r *http.Request, role string, claims database.JWTClaims, table string) {
	var body interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "PGRST100", "invalid JSON body")
		return
	}

	prefer := parsePrefer(r.Header.Get("Prefer"))
	returnRepr := prefer["return"] == "representation"

	var records []map[string]interface{}
	switch v := body.(type) {
	case map[string]interface{}:
		records = []map[string]interface{}{v}
	case []interface{}:
		for _, item := range v {
			if m, ok := item.(map[string]interface{}); ok {
				records = append(records, m)
			}
		}
	default:
		writeError(w, http.StatusBadRequest, "PGRST100", "body must be an object or array")
		return
	}
	if len(records) == 0 {
		writeError(w, http.StatusBadRequest, "PGRST100", "empty body")
		return
	}

	columns := make([]string, 0, len(records[0]))
	for k := range records[0] {
		columns = append(columns, k)
	}

	var valueSets []string
	var allArgs []interface{}
	argIdx := 1
	for _, rec := range records {
		placeholders := make([]string, len(columns))
		for i, col := range columns {
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			allArgs = append(allArgs, rec[col])
			argIdx++
		}
		valueSets = append(valueSets, "("+strings.Join(placeholders, ", ")+")")
	}

	quotedCols := make([]string, len(columns))
	for i, c := range columns {
		quotedCols[i] = quoteIdent(c)
	}

	query := fmt.Sprintf(`INSERT INTO public.%s (%s) VALUES %s`,
		quoteIdent(table), strings.Join(quotedCols, ", "), strings.Join(valueSets, ", "))
	if returnRepr {
		query += " RETURNING *"
	}

	result, err := database.ExecuteWithRLS(ctx, h.db, role, claims, func(tx pgx.Tx) ([]map[string]interface{}, error) {
		if returnRepr {
			rows, err := tx.Query(ctx, query, allArgs...)
			if err != nil {
				return nil, err
			}
			return collectRows(rows)
		}
		_, err := tx.Exec(ctx, query, allArgs...)
		return nil, err
	})
	if err != nil {
		writeDBError(w, err)
		return
	}

	if returnRepr {
		writeMaybeObject(w, r, http.StatusCreated, result)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
}

func (h *Handler) handleUpdate(ctx context.Context, w http.ResponseWriter, r *http.Request, role string, claims database.JWTClaims, table string) {
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "PGRST100", "invalid JSON body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "PGRST100", "empty update body")
		return
	}

	where, whereArgs := buildWhereClause(r.URL.Query())
	if where == "" {
		// A bare table-wide update is almost always a client bug.
		writeError(w, http.StatusBadRequest, "PGRST100", "update requires at least one filter")
		return
	}

	setClauses := make([]string, 0, len(body))
	setArgs := make([]interface{}, 0, len(body))
	argOffset := len(whereArgs)
	for k, v := range body {
		argOffset++
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", quoteIdent(k), argOffset))
		setArgs = append(setArgs, v)
	}
	allArgs := append(whereArgs, setArgs...)

	prefer := parsePrefer(r.Header.Get("Prefer"))
	returnRepr := prefer["return"] == "representation"

	query := fmt.Sprintf(`UPDATE public.%s SET %s%s`,
		quoteIdent(table), strings.Join(setClauses, ", "), where)
	if returnRepr {
		query += " RETURNING *"
	}

	result, err := database.ExecuteWithRLS(ctx, h.db, role, claims, func(tx pgx.Tx) ([]map[string]interface{}, error) {
		if returnRepr {
			rows, err := tx.Query(ctx, query, allArgs...)
			if err != nil {
				return nil, err
			}
			return collectRows(rows)
		}
		_, err := tx.Exec(ctx, query, allArgs...)
		return nil, err
	})
	if err != nil {
		writeDBError(w, err)
		return
	}

	if returnRepr {
		writeMaybeObject(w, r, http.StatusOK, result)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

func (h *Handler) handleDelete(ctx context.Context, w http.ResponseWriter, r *http.Request, role string, claims database.JWTClaims, table string) {
	where, whereArgs := buildWhereClause(r.URL.Query())
	if where == "" {
		writeError(w, http.StatusBadRequest, "PGRST100", "delete requires at least one filter")
		return
	}

	prefer := parsePrefer(r.Header.Get("Prefer"))
	returnRepr := prefer["return"] == "representation"

	query := fmt.Sprintf(`DELETE FROM public.%s%s`, quoteIdent(table), where)
	if returnRepr {
		query += " RETURNING *"
	}

	result, err := database.ExecuteWithRLS(ctx, h.db, role, claims, func(tx pgx.Tx) ([]map[string]interface{}, error) {
		if returnRepr {
			rows, err := tx.Query(ctx, query, whereArgs...)
			if err != nil {
				return nil, err
			}
			return collectRows(rows)
		}
		_, err := tx.Exec(ctx, query, whereArgs...)
		return nil, err
	})
	if err != nil {
		writeDBError(w, err)
		return
	}

	if returnRepr {
		writeMaybeObject(w, r, http.StatusOK, result)
	} else {
		w.WriteHeader(http.StatusNoContent)
	}
}

// ---------- Query building helpers ----------

func buildSelectClause(selectParam string) string {
	selectParam = strings.TrimSpace(selectParam)
	if selectParam == "" {
		return "*"
	}
	parts := strings.Split(selectParam, ",")
	var cols []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "*" {
			cols = append(cols, "*")
			continue
		}
		// alias:column
		if idx := strings.Index(p, ":"); idx > 0 {
			alias := strings.TrimSpace(p[:idx])
			col := strings.TrimSpace(p[idx+1:])
			cols = append(cols, fmt.Sprintf("%s AS %s", quoteIdent(col), quoteIdent(alias)))
			continue
		}
		// Embedded relationship selects are not supported.
		if strings.Contains(p, "(") {
			continue
		}
		cols = append(cols, quoteIdent(p))
	}
	if len(cols) == 0 {
		return "*"
	}
	return strings.Join(cols, ", ")
}

func buildWhereClause(q map[string][]string) (string, []interface{}) {
	// Reserved params that are not filters
	reserved := map[string]bool{"select": true, "order": true, "limit": true, "offset": true}

	var conditions []string
	var args []interface{}
	argIdx := 1

	for key, values := range q {
		if reserved[key] {
			continue
		}
		for _, val := range values {
			cond, condArgs, newIdx := parseFilter(key, val, argIdx)
			if cond != "" {
				conditions = append(conditions, cond)
				args = append(args, condArgs...)
				argIdx = newIdx
			}
		}
	}

	if len(conditions) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func parseFilter(column, value string, argIdx int) (string, []interface{}, int) {
	col := quoteIdent(column)

	negate := false
	if strings.HasPrefix(value, "not.") {
		negate = true
		value = value[4:]
	}

	dotIdx := strings.Index(value, ".")
	if dotIdx < 0 {
		return "", nil, argIdx
	}

	op := value[:dotIdx]
	val := value[dotIdx+1:]

	var condition string
	var args []interface{}

	comparison := map[string]string{
		"eq": "=", "neq": "!=",
		"gt": ">", "gte": ">=",
		"lt": "<", "lte": "<=",
		"like": "LIKE", "ilike": "ILIKE",
	}

	switch {
	case comparison[op] != "":
		condition = fmt.Sprintf("%s %s $%d", col, comparison[op], argIdx)
		args = []interface{}{val}
		argIdx++
	case op == "is":
		switch strings.ToLower(val) {
		case "null":
			condition = fmt.Sprintf("%s IS NULL", col)
		case "true":
			condition = fmt.Sprintf("%s IS TRUE", col)
		case "false":
			condition = fmt.Sprintf("%s IS FALSE", col)
		default:
			return "", nil, argIdx
		}
	case op == "in":
		val = strings.TrimPrefix(val, "(")
		val = strings.TrimSuffix(val, ")")
		items := strings.Split(val, ",")
		placeholders := make([]string, len(items))
		for i, item := range items {
			item = strings.Trim(item, `"' `)
			placeholders[i] = fmt.Sprintf("$%d", argIdx)
			args = append(args, item)
			argIdx++
		}
		condition = fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", "))
	default:
		return "", nil, argIdx
	}

	if negate && condition != "" {
		condition = "NOT (" + condition + ")"
	}
	return condition, args, argIdx
}

func buildOrderClause(orderParam string) string {
	parts := strings.Split(orderParam, ",")
	var clauses []string
	for _, p := range parts {
		p = strings.TrimSpace(p)
		subParts := strings.Split(p, ".")
		col := quoteIdent(subParts[0])
		dir := "ASC"
		nulls := ""
		for _, sub := range subParts[1:] {
			switch strings.ToLower(sub) {
			case "asc":
				dir = "ASC"
			case "desc":
				dir = "DESC"
			case "nullsfirst":
				nulls = " NULLS FIRST"
			case "nullslast":
				nulls = " NULLS LAST"
			}
		}
		clauses = append(clauses, col+" "+dir+nulls)
	}
	return strings.Join(clauses, ", ")
}

func parsePrefer(header string) map[string]string {
	prefs := make(map[string]string)
	for _, p := range strings.Split(header, ",") {
		p = strings.TrimSpace(p)
		if idx := strings.Index(p, "="); idx > 0 {
			prefs[strings.TrimSpace(p[:idx])] = strings.TrimSpace(p[idx+1:])
		}
	}
	return prefs
}

// resolveRoleAndClaims starts from the apikey role and upgrades to the
// session's claims when the Authorization header carries a valid user JWT
// distinct from the apikey itself.
func (h *Handler) resolveRoleAndClaims(r *http.Request) (string, database.JWTClaims) {
	role := middleware.GetAPIKeyRole(r)
	if role == "" {
		role = database.RoleAnon
	}
	claims := database.JWTClaims{"role": role}

	auth := r.Header.Get("Authorization")
	apikey := r.Header.Get("apikey")
	if auth == "" {
		return role, claims
	}

	tokenStr := strings.TrimPrefix(auth, "Bearer ")
	if tokenStr == auth || tokenStr == apikey {
		return role, claims
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return h.jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return role, claims
	}

	if userClaims, ok := token.Claims.(jwt.MapClaims); ok {
		claims = database.JWTClaims(userClaims)
		if r, ok := userClaims["role"].(string); ok && r != "" {
			role = r
		}
	}
	return role, claims
}

func extractTableName(path string) string {
	// /rest/v1/table_name -> table_name
	path = strings.TrimPrefix(path, "/rest/v1/")
	path = strings.TrimSuffix(path, "/")
	if strings.Contains(path, "/") {
		return ""
	}
	return path
}

func quoteIdent(s string) string {
	// Simple identifier quoting -- prevents SQL injection
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func collectRows(rows pgx.Rows) ([]map[string]interface{}, error) {
	defer rows.Close()

	descs := rows.FieldDescriptions()
	var result []map[string]interface{}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		row := make(map[string]interface{})
		for i, desc := range descs {
			row[string(desc.Name)] = convertPgValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if result == nil {
		result = []map[string]interface{}{}
	}
	return result, nil
}

// convertPgValue converts pgx-specific types to JSON-friendly representations.
func convertPgValue(v interface{}) interface{} {
	switch val := v.(type) {
	case [16]byte:
		u := pgtype.UUID{Bytes: val, Valid: true}
		s, _ := u.Value()
		return s
	case pgtype.UUID:
		if !val.Valid {
			return nil
		}
		s, _ := val.Value()
		return s
	case time.Time:
		return val.Format(time.RFC3339Nano)
	case []interface{}:
		result := make([]interface{}, len(val))
		for i, item := range val {
			result[i] = convertPgValue(item)
		}
		return result
	default:
		return v
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeDBError maps database failures to API statuses. Row security denials
// are 403, duplicates 409, missing relations 404; everything else collapses
// to a generic 400 so raw database details never reach clients.
func writeDBError(w http.ResponseWriter, err error) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42501": // insufficient_privilege, includes RLS denials
			writeError(w, http.StatusForbidden, "PGRST301", "permission denied for this resource")
			return
		case "23505":
			writeError(w, http.StatusConflict, "PGRST409", "duplicate key value violates unique constraint")
			return
		case "42P01", "42703": // undefined table or column
			writeError(w, http.StatusNotFound, "PGRST205", "requested resource does not exist")
			return
		case "23502":
			writeError(w, http.StatusBadRequest, "PGRST204", "null value in column violates not-null constraint")
			return
		case "23503":
			writeError(w, http.StatusBadRequest, "PGRST204", "foreign key constraint violation")
			return
		case "23514":
			writeError(w, http.StatusBadRequest, "PGRST204", "check constraint violation")
			return
		}
	}
	writeError(w, http.StatusBadRequest, "PGRST204", "database operation failed")
}

// writeMaybeObject returns a single object if Accept: application/vnd.pgrst.object+json,
// otherwise returns the array. This matches PostgREST's .single() behavior.
func writeMaybeObject(w http.ResponseWriter, r *http.Request, status int, rows []map[string]interface{}) {
	accept := r.Header.Get("Accept")
	if strings.Contains(accept, "application/vnd.pgrst.object+json") {
		if len(rows) != 1 {
			writeError(w, http.StatusNotAcceptable, "PGRST116", "JSON object requested, multiple (or no) rows returned")
			return
		}
		writeJSON(w, status, rows[0])
		return
	}
	writeJSON(w, status, rows)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"code":    code,
		"message": message,
		"details": nil,
		"hint":    nil,
	})
}
