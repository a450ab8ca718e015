package kb

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/guestdesk/pkg/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const entryColumns = `id, client_id, coalesce(property_id::text,''), title, content, tags, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, e *models.KbEntry) error {
	return s.db.QueryRowContext(ctx, `
        INSERT INTO kb_entries (client_id, property_id, title, content, tags)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at
    `, e.ClientID, nullIfEmpty(e.PropertyID), e.Title, e.Content, pq.Array(e.Tags)).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.KbEntry, error) {
	e, err := scanEntry(s.db.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM kb_entries WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*models.KbEntry, error) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if f.ClientID != "" {
		add("client_id::text = ?", f.ClientID)
	}
	if f.PropertyID != "" {
		add("property_id::text = ?", f.PropertyID)
	}
	if f.Tag != "" {
		add("? = ANY(tags)", f.Tag)
	}
	if q := strings.TrimSpace(f.Query); q != "" {
		add("(title ILIKE ? OR content ILIKE ?)", "%"+q+"%")
	}

	query := `SELECT ` + entryColumns + ` FROM kb_entries`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += ` LIMIT $` + strconv.Itoa(len(args))
	}
	return s.query(ctx, query, args...)
}

func (s *PostgresStore) ForScope(ctx context.Context, clientID, propertyID string, limit int) ([]*models.KbEntry, error) {
	return s.query(ctx, `
        SELECT `+entryColumns+`
        FROM kb_entries
        WHERE client_id::text = $1 AND (property_id IS NULL OR property_id::text = $2)
        ORDER BY created_at DESC
        LIMIT $3
    `, clientID, propertyID, limit)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*models.KbEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.KbEntry, 0)
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntry(scanner interface{ Scan(dest ...any) error }) (*models.KbEntry, error) {
	var e models.KbEntry
	var tags pq.StringArray
	if err := scanner.Scan(&e.ID, &e.ClientID, &e.PropertyID, &e.Title, &e.Content, &tags, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.Tags = []string(tags)
	if e.Tags == nil {
		e.Tags = []string{}
	}
	return &e, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
