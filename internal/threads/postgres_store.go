package threads

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"github.com/guestdesk/pkg/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

// isForeignKeyViolation reports a missing parent row (SQLSTATE 23503)
func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func (s *PostgresStore) CreateProperty(ctx context.Context, p *models.Property) error {
	return s.db.QueryRowContext(ctx, `
        INSERT INTO properties (client_id, name, address)
        VALUES ($1,$2,$3)
        RETURNING id, created_at
    `, p.ClientID, p.Name, p.Address).Scan(&p.ID, &p.CreatedAt)
}

func (s *PostgresStore) GetProperty(ctx context.Context, id string) (*models.Property, error) {
	var p models.Property
	err := s.db.QueryRowContext(ctx, `
        SELECT id, client_id, name, coalesce(address,''), created_at FROM properties WHERE id=$1
    `, id).Scan(&p.ID, &p.ClientID, &p.Name, &p.Address, &p.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

const threadColumns = `id, client_id, property_id, guest_name, coalesce(guest_email,''), status, last_received_at, created_at, updated_at`

func scanThread(scanner interface{ Scan(dest ...any) error }) (*models.Thread, error) {
	var t models.Thread
	var status string
	if err := scanner.Scan(&t.ID, &t.ClientID, &t.PropertyID, &t.GuestName, &t.GuestEmail, &status, &t.LastReceivedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = models.ThreadStatus(status)
	return &t, nil
}

func (s *PostgresStore) CreateThread(ctx context.Context, t *models.Thread) error {
	if t.Status == "" {
		t.Status = models.ThreadPending
	}
	return s.db.QueryRowContext(ctx, `
        INSERT INTO threads (client_id, property_id, guest_name, guest_email, status)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, last_received_at, created_at, updated_at
    `, t.ClientID, t.PropertyID, t.GuestName, t.GuestEmail, string(t.Status),
	).Scan(&t.ID, &t.LastReceivedAt, &t.CreatedAt, &t.UpdatedAt)
}

func (s *PostgresStore) GetThread(ctx context.Context, id string) (*models.Thread, error) {
	t, err := scanThread(s.db.QueryRowContext(ctx, `SELECT `+threadColumns+` FROM threads WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return t, nil
}

func (s *PostgresStore) ListThreads(ctx context.Context, f Filter) ([]*models.Thread, int, error) {
	var where []string
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, col+" = $"+strconv.Itoa(len(args)))
	}
	if f.ClientID != "" {
		add("client_id", f.ClientID)
	}
	if f.PropertyID != "" {
		add("property_id", f.PropertyID)
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	cond := ""
	if len(where) > 0 {
		cond = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM threads`+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)
	rows, err := s.db.QueryContext(ctx, `SELECT `+threadColumns+` FROM threads`+cond+
		` ORDER BY last_received_at DESC LIMIT $`+strconv.Itoa(len(args)-1)+` OFFSET $`+strconv.Itoa(len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	out := make([]*models.Thread, 0)
	for rows.Next() {
		t, err := scanThread(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) SetStatus(ctx context.Context, id string, status models.ThreadStatus) error {
	return s.execOne(ctx, `UPDATE threads SET status=$1, updated_at=now() WHERE id=$2`, string(status), id)
}

func (s *PostgresStore) TouchLastReceived(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, `UPDATE threads SET last_received_at=$1, updated_at=now() WHERE id=$2`, at, id)
}

func (s *PostgresStore) execOne(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CreateMessage(ctx context.Context, m *models.Message) error {
	var receivedAt any
	if !m.ReceivedAt.IsZero() {
		receivedAt = m.ReceivedAt
	}
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO messages (thread_id, sender_type, text, received_at)
        VALUES ($1,$2,$3,coalesce($4, now()))
        RETURNING id, received_at
    `, m.ThreadID, string(m.SenderType), m.Text, receivedAt).Scan(&m.ID, &m.ReceivedAt)
	if isForeignKeyViolation(err) {
		return ErrNotFound
	}
	return err
}

const messageColumns = `id, thread_id, sender_type, text, received_at`

func scanMessage(scanner interface{ Scan(dest ...any) error }) (*models.Message, error) {
	var m models.Message
	var sender string
	if err := scanner.Scan(&m.ID, &m.ThreadID, &sender, &m.Text, &m.ReceivedAt); err != nil {
		return nil, err
	}
	m.SenderType = models.SenderType(sender)
	return &m, nil
}

func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	m, err := scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return m, nil
}

func (s *PostgresStore) ListMessages(ctx context.Context, threadID string) ([]*models.Message, error) {
	return s.queryMessages(ctx, `SELECT `+messageColumns+` FROM messages WHERE thread_id=$1 ORDER BY received_at ASC`, threadID)
}

func (s *PostgresStore) RecentMessages(ctx context.Context, threadID, beforeMessageID string, limit int) ([]*models.Message, error) {
	if limit <= 0 {
		limit = 5
	}
	return s.queryMessages(ctx, `
        SELECT `+messageColumns+` FROM (
            SELECT `+messageColumns+` FROM messages
            WHERE thread_id=$1 AND id <> $2
              AND received_at <= coalesce((SELECT received_at FROM messages WHERE id=$2), now())
            ORDER BY received_at DESC
            LIMIT $3
        ) recent ORDER BY received_at ASC
    `, threadID, beforeMessageID, limit)
}

func (s *PostgresStore) queryMessages(ctx context.Context, q string, args ...any) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveAnalysis(ctx context.Context, a *models.Analysis) error {
	err := s.db.QueryRowContext(ctx, `
        INSERT INTO analyses (message_id, thread_id, intent, risk, urgency, suggested_reply, thread_summary, confidence)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
        RETURNING created_at
    `, a.MessageID, a.ThreadID, a.Intent, string(a.Risk), a.Urgency, a.SuggestedReply, a.ThreadSummary, a.Confidence).Scan(&a.CreatedAt)
	switch {
	case isUniqueViolation(err):
		return ErrAlreadyAnalyzed
	case isForeignKeyViolation(err):
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) GetAnalysis(ctx context.Context, messageID string) (*models.Analysis, error) {
	var a models.Analysis
	var risk string
	err := s.db.QueryRowContext(ctx, `
        SELECT message_id, thread_id, intent, risk, urgency, suggested_reply, thread_summary, confidence, created_at
        FROM analyses WHERE message_id=$1
    `, messageID).Scan(&a.MessageID, &a.ThreadID, &a.Intent, &risk, &a.Urgency, &a.SuggestedReply, &a.ThreadSummary, &a.Confidence, &a.CreatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	a.Risk = models.RiskLevel(risk)
	return &a, nil
}
