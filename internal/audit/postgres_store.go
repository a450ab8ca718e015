package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/guestdesk/pkg/models"
)

// Querier is satisfied by *sql.DB and *sql.Tx so records can be written
// inside a caller's transaction.
type Querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) RecordAudit(ctx context.Context, e *models.AuditLog) error {
	return InsertAudit(ctx, s.db, e)
}

func (s *PostgresStore) RecordSendLog(ctx context.Context, l *models.SendLog) error {
	return InsertSendLog(ctx, s.db, l)
}

// InsertAudit writes e through q and fills its id and timestamp
func InsertAudit(ctx context.Context, q Querier, e *models.AuditLog) error {
	var meta []byte
	if e.Meta != nil {
		var err error
		if meta, err = json.Marshal(e.Meta); err != nil {
			return err
		}
	}
	return q.QueryRowContext(ctx, `
        INSERT INTO audit_logs (actor_user_id, action, entity_type, entity_id, meta)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at
    `, e.ActorUserID, e.Action, e.EntityType, e.EntityID, meta).Scan(&e.ID, &e.CreatedAt)
}

// InsertSendLog writes l through q and fills its id and timestamp
func InsertSendLog(ctx context.Context, q Querier, l *models.SendLog) error {
	return q.QueryRowContext(ctx, `
        INSERT INTO send_logs (message_id, thread_id, final_reply, channel, sent_by_user_id, approval_id)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at
    `, l.MessageID, l.ThreadID, l.FinalReply, l.Channel, l.SentByUserID, nullIfEmpty(l.ApprovalID)).Scan(&l.ID, &l.CreatedAt)
}

type whereBuilder struct {
	clauses []string
	args    []any
}

func (w *whereBuilder) add(clause string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		clause = strings.Replace(clause, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.clauses = append(w.clauses, clause)
}

func (w *whereBuilder) addRange(col string, from, to time.Time) {
	if !from.IsZero() {
		w.add(col+" >= ?", from)
	}
	if !to.IsZero() {
		w.add(col+" <= ?", to)
	}
}

func (w *whereBuilder) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func (s *PostgresStore) ListAudit(ctx context.Context, f AuditFilter) ([]*models.AuditLog, PageInfo, error) {
	var w whereBuilder
	if f.ActorUserID != "" {
		w.add("actor_user_id = ?", f.ActorUserID)
	}
	if f.Action != "" {
		w.add("action = ?", f.Action)
	}
	if f.EntityType != "" {
		w.add("entity_type = ?", f.EntityType)
	}
	w.addRange("created_at", f.From, f.To)
	if f.Search != "" {
		pattern := "%" + f.Search + "%"
		w.add("(action ILIKE ? OR entity_type ILIKE ? OR entity_id ILIKE ?)", pattern, pattern, pattern)
	}

	p := f.Pagination.Normalize()
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM audit_logs`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, PageInfo{}, err
	}

	args := append(w.args, p.Limit, p.Offset())
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, actor_user_id, action, entity_type, entity_id, meta, created_at
        FROM audit_logs`+w.sql()+`
        ORDER BY created_at DESC
        LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, PageInfo{}, err
	}
	defer rows.Close()

	out := make([]*models.AuditLog, 0)
	for rows.Next() {
		var e models.AuditLog
		var meta []byte
		if err := rows.Scan(&e.ID, &e.ActorUserID, &e.Action, &e.EntityType, &e.EntityID, &meta, &e.CreatedAt); err != nil {
			return nil, PageInfo{}, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &e.Meta); err != nil {
				return nil, PageInfo{}, err
			}
		}
		out = append(out, &e)
	}
	return out, NewPageInfo(p, total), rows.Err()
}

func (s *PostgresStore) ListSendLogs(ctx context.Context, f SendLogFilter) ([]*models.SendLog, PageInfo, error) {
	var w whereBuilder
	if f.ThreadID != "" {
		w.add("thread_id = ?", f.ThreadID)
	}
	if f.SentByUserID != "" {
		w.add("sent_by_user_id = ?", f.SentByUserID)
	}
	if f.Channel != "" {
		w.add("channel = ?", f.Channel)
	}
	w.addRange("created_at", f.From, f.To)
	if f.Search != "" {
		w.add("final_reply ILIKE ?", "%"+f.Search+"%")
	}

	p := f.Pagination.Normalize()
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM send_logs`+w.sql(), w.args...).Scan(&total); err != nil {
		return nil, PageInfo{}, err
	}

	args := append(w.args, p.Limit, p.Offset())
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, message_id, thread_id, final_reply, channel, sent_by_user_id, coalesce(approval_id::text,''), created_at, dispatched_at
        FROM send_logs`+w.sql()+`
        ORDER BY created_at DESC
        LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, PageInfo{}, err
	}
	defer rows.Close()

	out := make([]*models.SendLog, 0)
	for rows.Next() {
		var l models.SendLog
		var dispatchedAt sql.NullTime
		if err := rows.Scan(&l.ID, &l.MessageID, &l.ThreadID, &l.FinalReply, &l.Channel, &l.SentByUserID, &l.ApprovalID, &l.CreatedAt, &dispatchedAt); err != nil {
			return nil, PageInfo{}, err
		}
		if dispatchedAt.Valid {
			l.DispatchedAt = &dispatchedAt.Time
		}
		out = append(out, &l)
	}
	return out, NewPageInfo(p, total), rows.Err()
}

// MarkDispatched stamps the first successful dispatch; later calls keep it
func (s *PostgresStore) MarkDispatched(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE send_logs SET dispatched_at = coalesce(dispatched_at, $2) WHERE id = $1
    `, id, at)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSendLogNotFound
	}
	return nil
}

func (s *PostgresStore) Undispatched(ctx context.Context, createdBefore time.Time, limit int) ([]*models.SendLog, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, message_id, thread_id, final_reply, channel, sent_by_user_id, coalesce(approval_id::text,''), created_at
        FROM send_logs
        WHERE dispatched_at IS NULL AND created_at < $1
        ORDER BY created_at
        LIMIT $2
    `, createdBefore, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*models.SendLog, 0)
	for rows.Next() {
		var l models.SendLog
		if err := rows.Scan(&l.ID, &l.MessageID, &l.ThreadID, &l.FinalReply, &l.Channel, &l.SentByUserID, &l.ApprovalID, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
