package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go SQLite driver (no CGO required)
)

// migrations defines the tables for gatewayd's persistence layer. Version
// is tracked in the schema_versions table.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_versions (
    version     INTEGER PRIMARY KEY,
    applied_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS interaction_flows (
    session_id      TEXT PRIMARY KEY,
    conversation_id TEXT NOT NULL DEFAULT '',
    user_id         TEXT NOT NULL,
    flow_data       TEXT NOT NULL DEFAULT '[]',
    created_at      DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_flows_user_created ON interaction_flows(user_id, created_at DESC);

CREATE TABLE IF NOT EXISTS audit_logs (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    correlation_id  TEXT NOT NULL DEFAULT '',
    event_type      TEXT NOT NULL,
    description     TEXT NOT NULL DEFAULT '',
    user_id         TEXT NOT NULL DEFAULT '',
    conversation_id TEXT NOT NULL DEFAULT '',
    session_id      TEXT NOT NULL DEFAULT '',
    source          TEXT NOT NULL DEFAULT '',
    input_tokens    INTEGER NOT NULL DEFAULT 0,
    output_tokens   INTEGER NOT NULL DEFAULT 0,
    cost_usd        REAL NOT NULL DEFAULT 0.0,
    tools_used      TEXT NOT NULL DEFAULT '[]',
    mcps_used       TEXT NOT NULL DEFAULT '[]',
    success         BOOLEAN NOT NULL DEFAULT 1,
    result          TEXT NOT NULL DEFAULT '',
    metadata        TEXT NOT NULL DEFAULT '{}',
    timestamp       DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_logs(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_user      ON audit_logs(user_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_audit_session   ON audit_logs(session_id);

CREATE TABLE IF NOT EXISTS token_usage (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    user_id       TEXT NOT NULL,
    session_id    TEXT NOT NULL DEFAULT '',
    provider      TEXT NOT NULL,
    input_tokens  INTEGER NOT NULL DEFAULT 0,
    output_tokens INTEGER NOT NULL DEFAULT 0,
    cost_usd      REAL NOT NULL DEFAULT 0.0,
    recorded_at   DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_token_usage_user_date ON token_usage(user_id, recorded_at);

CREATE TABLE IF NOT EXISTS budget_limits (
    user_id   TEXT PRIMARY KEY,
    limit_usd REAL NOT NULL DEFAULT 0.0,
    updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS user_status (
    user_id        TEXT PRIMARY KEY,
    blocked        BOOLEAN NOT NULL DEFAULT 0,
    block_reason   TEXT NOT NULL DEFAULT '',
    active         BOOLEAN NOT NULL DEFAULT 1,
    updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS llm_config (
    id         INTEGER PRIMARY KEY CHECK (id = 1),
    provider   TEXT NOT NULL,
    model      TEXT NOT NULL,
    api_key    TEXT NOT NULL DEFAULT '',
    base_url   TEXT NOT NULL DEFAULT '',
    updated_at DATETIME NOT NULL
);
`,
	},
}

// sqliteStore is the SQLite-backed implementation of Store.
type sqliteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at the given path and
// runs all pending schema migrations. Pass ":memory:" for an in-memory store.
func NewSQLiteStore(path string) (Store, error) {
	database, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if _, err := database.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := database.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &sqliteStore{db: database}
	if err := s.migrate(); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// migrate applies any unapplied migrations in order.
func (s *sqliteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_versions (
        version    INTEGER PRIMARY KEY,
        applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    )`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_versions WHERE version = ?`, m.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}
		if count > 0 {
			continue
		}

		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := s.db.Exec(`INSERT INTO schema_versions(version) VALUES(?)`, m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func (s *sqliteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// ─── Flows ────────────────────────────────────────────────────────────────────

func (s *sqliteStore) ArchiveFlow(ctx context.Context, rec *FlowRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO interaction_flows(session_id, conversation_id, user_id, flow_data, created_at)
        VALUES(?,?,?,?,?)
        ON CONFLICT(session_id) DO UPDATE SET flow_data = excluded.flow_data
    `, rec.SessionID, rec.ConversationID, rec.UserID, rec.FlowDataJSON, rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("archive flow: %w", err)
	}
	return nil
}

func (s *sqliteStore) GetFlow(ctx context.Context, sessionID string) (*FlowRecord, error) {
	rec := &FlowRecord{}
	var ts string
	err := s.db.QueryRowContext(ctx, `
        SELECT session_id, conversation_id, user_id, flow_data, created_at
        FROM interaction_flows WHERE session_id = ?
    `, sessionID).Scan(&rec.SessionID, &rec.ConversationID, &rec.UserID, &rec.FlowDataJSON, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get flow: %w", err)
	}
	rec.CreatedAt, _ = parseTime(ts)
	return rec, nil
}

func (s *sqliteStore) ListFlowsForUser(ctx context.Context, userID string, limit int) ([]*FlowRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT session_id, conversation_id, user_id, flow_data, created_at
        FROM interaction_flows WHERE user_id = ? ORDER BY created_at DESC LIMIT ?
    `, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list flows: %w", err)
	}
	defer rows.Close()

	var out []*FlowRecord
	for rows.Next() {
		rec := &FlowRecord{}
		var ts string
		if err := rows.Scan(&rec.SessionID, &rec.ConversationID, &rec.UserID, &rec.FlowDataJSON, &ts); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = parseTime(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ─── Audit ────────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendAuditEvent(ctx context.Context, rec *AuditRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO audit_logs(correlation_id, event_type, description, user_id, conversation_id,
            session_id, source, input_tokens, output_tokens, cost_usd, tools_used, mcps_used,
            success, result, metadata, timestamp)
        VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
    `,
		rec.CorrelationID, rec.EventType, rec.Description, rec.UserID, rec.ConversationID,
		rec.SessionID, rec.Source, rec.InputTokens, rec.OutputTokens, rec.CostUSD,
		rec.ToolsUsedJSON, rec.MCPsUsedJSON, rec.Success, rec.Result, rec.Metadata, rec.Timestamp.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *sqliteStore) QueryAuditEvents(ctx context.Context, q AuditQuery) ([]*AuditRecord, error) {
	query := `SELECT id,correlation_id,event_type,description,user_id,conversation_id,session_id,
        source,input_tokens,output_tokens,cost_usd,tools_used,mcps_used,success,result,metadata,timestamp
        FROM audit_logs WHERE 1=1`
	args := []any{}

	if q.UserID != "" {
		query += ` AND user_id = ?`
		args = append(args, q.UserID)
	}
	if q.SessionID != "" {
		query += ` AND session_id = ?`
		args = append(args, q.SessionID)
	}
	if q.ConversationID != "" {
		query += ` AND conversation_id = ?`
		args = append(args, q.ConversationID)
	}
	if !q.From.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, q.From.UTC())
	}
	if !q.To.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, q.To.UTC())
	}
	query += ` ORDER BY timestamp DESC`
	if q.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d OFFSET %d`, q.Limit, q.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*AuditRecord
	for rows.Next() {
		rec := &AuditRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.CorrelationID, &rec.EventType, &rec.Description,
			&rec.UserID, &rec.ConversationID, &rec.SessionID, &rec.Source,
			&rec.InputTokens, &rec.OutputTokens, &rec.CostUSD, &rec.ToolsUsedJSON,
			&rec.MCPsUsedJSON, &rec.Success, &rec.Result, &rec.Metadata, &ts); err != nil {
			return nil, err
		}
		rec.Timestamp, _ = parseTime(ts)
		result = append(result, rec)
	}
	return result, rows.Err()
}

// ─── Budget ───────────────────────────────────────────────────────────────────

func (s *sqliteStore) AppendBudgetRecord(ctx context.Context, rec *BudgetRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO token_usage(user_id, session_id, provider, input_tokens, output_tokens, cost_usd, recorded_at)
        VALUES(?,?,?,?,?,?,?)
    `, rec.UserID, rec.SessionID, rec.Provider, rec.InputTokens, rec.OutputTokens, rec.CostUSD, rec.RecordedAt.UTC())
	if err != nil {
		return fmt.Errorf("append budget record: %w", err)
	}
	return nil
}

func (s *sqliteStore) QueryBudgetRecords(ctx context.Context, userID string, from, to time.Time) ([]*BudgetRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, user_id, session_id, provider, input_tokens, output_tokens, cost_usd, recorded_at
        FROM token_usage WHERE user_id = ? AND recorded_at >= ? AND recorded_at <= ?
        ORDER BY recorded_at ASC
    `, userID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("query budget records: %w", err)
	}
	defer rows.Close()

	var out []*BudgetRecord
	for rows.Next() {
		rec := &BudgetRecord{}
		var ts string
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.SessionID, &rec.Provider,
			&rec.InputTokens, &rec.OutputTokens, &rec.CostUSD, &ts); err != nil {
			return nil, err
		}
		rec.RecordedAt, _ = parseTime(ts)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqliteStore) TodayCostUSD(ctx context.Context, userID string) (float64, error) {
	now := time.Now().UTC()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
        SELECT SUM(cost_usd) FROM token_usage WHERE user_id = ? AND recorded_at >= ?
    `, userID, start).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("sum today cost: %w", err)
	}
	return total.Float64, nil
}

func (s *sqliteStore) GetUserBudget(ctx context.Context, userID string) (float64, error) {
	var limit float64
	err := s.db.QueryRowContext(ctx, `SELECT limit_usd FROM budget_limits WHERE user_id = ?`, userID).Scan(&limit)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get user budget: %w", err)
	}
	return limit, nil
}

func (s *sqliteStore) SetUserBudget(ctx context.Context, userID string, limitUSD float64) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO budget_limits(user_id, limit_usd, updated_at) VALUES(?,?,CURRENT_TIMESTAMP)
        ON CONFLICT(user_id) DO UPDATE SET limit_usd = excluded.limit_usd, updated_at = CURRENT_TIMESTAMP
    `, userID, limitUSD)
	if err != nil {
		return fmt.Errorf("set user budget: %w", err)
	}
	return nil
}

// ─── User status ──────────────────────────────────────────────────────────────

func (s *sqliteStore) IsBlocked(ctx context.Context, userID string) (bool, error) {
	var blocked bool
	err := s.db.QueryRowContext(ctx, `SELECT blocked FROM user_status WHERE user_id = ?`, userID).Scan(&blocked)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("is blocked: %w", err)
	}
	return blocked, nil
}

func (s *sqliteStore) IsActive(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := s.db.QueryRowContext(ctx, `SELECT active FROM user_status WHERE user_id = ?`, userID).Scan(&active)
	if err == sql.ErrNoRows {
		return true, nil // no row yet means never deactivated
	}
	if err != nil {
		return false, fmt.Errorf("is active: %w", err)
	}
	return active, nil
}

func (s *sqliteStore) BlockUser(ctx context.Context, userID, reason string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO user_status(user_id, blocked, block_reason, active, updated_at)
        VALUES(?,1,?,1,CURRENT_TIMESTAMP)
        ON CONFLICT(user_id) DO UPDATE SET blocked = 1, block_reason = excluded.block_reason, updated_at = CURRENT_TIMESTAMP
    `, userID, reason)
	if err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	return nil
}

func (s *sqliteStore) UnblockUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO user_status(user_id, blocked, block_reason, active, updated_at)
        VALUES(?,0,'',1,CURRENT_TIMESTAMP)
        ON CONFLICT(user_id) DO UPDATE SET blocked = 0, block_reason = '', updated_at = CURRENT_TIMESTAMP
    `, userID)
	if err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

func (s *sqliteStore) SetActive(ctx context.Context, userID string, active bool) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO user_status(user_id, blocked, block_reason, active, updated_at)
        VALUES(?,0,'',?,CURRENT_TIMESTAMP)
        ON CONFLICT(user_id) DO UPDATE SET active = excluded.active, updated_at = CURRENT_TIMESTAMP
    `, userID, active)
	if err != nil {
		return fmt.Errorf("set active: %w", err)
	}
	return nil
}

// ─── LLM config ────────────────────────────────────────────────────────────────

func (s *sqliteStore) SaveLLMConfig(ctx context.Context, rec *LLMConfigRecord) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO llm_config(id, provider, model, api_key, base_url, updated_at)
        VALUES(1,?,?,?,?,?)
        ON CONFLICT(id) DO UPDATE SET provider=excluded.provider, model=excluded.model,
            api_key=excluded.api_key, base_url=excluded.base_url, updated_at=excluded.updated_at
    `, rec.Provider, rec.Model, rec.APIKey, rec.BaseURL, rec.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("save llm config: %w", err)
	}
	return nil
}

func (s *sqliteStore) LoadLLMConfig(ctx context.Context) (*LLMConfigRecord, error) {
	rec := &LLMConfigRecord{}
	var ts string
	err := s.db.QueryRowContext(ctx, `
        SELECT provider, model, api_key, base_url, updated_at FROM llm_config WHERE id = 1
    `).Scan(&rec.Provider, &rec.Model, &rec.APIKey, &rec.BaseURL, &ts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load llm config: %w", err)
	}
	rec.UpdatedAt, _ = parseTime(ts)
	return rec, nil
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func parseTime(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02T15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05.999999999Z07:00",
		"2006-01-02 15:04:05Z07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse time %q", s)
}
