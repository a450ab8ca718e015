package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	"github.com/guestdesk/pkg/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const ruleColumns = `id, client_id, coalesce(property_id,''), coalesce(intent,''), coalesce(risk_max,''), conditions, action, enabled, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, r *models.AutoRule) error {
	conds, err := json.Marshal(ensureMap(r.Conditions))
	if err != nil {
		return err
	}
	return s.db.QueryRowContext(ctx, `
        INSERT INTO auto_rules (client_id, property_id, intent, risk_max, conditions, action, enabled)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at, updated_at
    `, r.ClientID, nullIfEmpty(r.PropertyID), nullIfEmpty(r.Intent), nullIfEmpty(string(r.RiskMax)), conds, string(r.Action), r.Enabled,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
}

func (s *PostgresStore) Update(ctx context.Context, r *models.AutoRule) error {
	conds, err := json.Marshal(ensureMap(r.Conditions))
	if err != nil {
		return err
	}
	err = s.db.QueryRowContext(ctx, `
        UPDATE auto_rules
        SET property_id=$1, intent=$2, risk_max=$3, conditions=$4, action=$5, enabled=$6, updated_at=now()
        WHERE id=$7
        RETURNING created_at, updated_at
    `, nullIfEmpty(r.PropertyID), nullIfEmpty(r.Intent), nullIfEmpty(string(r.RiskMax)), conds, string(r.Action), r.Enabled, r.ID,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM auto_rules WHERE id=$1`, id)
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

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.AutoRule, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ruleColumns+` FROM auto_rules WHERE id=$1`, id)
	r, err := scanRule(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]*models.AutoRule, error) {
	var where []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		where = append(where, strings.Replace(cond, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.ClientID != "" {
		add("client_id = ?", f.ClientID)
	}
	if f.PropertyID != "" {
		add("property_id = ?", f.PropertyID)
	}
	if f.EnabledOnly {
		where = append(where, "enabled = true")
	}

	q := `SELECT ` + ruleColumns + ` FROM auto_rules`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY created_at DESC, id`
	return s.query(ctx, q, args...)
}

func (s *PostgresStore) ListEnabledForScope(ctx context.Context, clientID, propertyID string) ([]*models.AutoRule, error) {
	return s.query(ctx, `
        SELECT `+ruleColumns+`
        FROM auto_rules
        WHERE enabled = true AND client_id = $1 AND (property_id IS NULL OR property_id = $2)
        ORDER BY created_at DESC, id
    `, clientID, propertyID)
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...interface{}) ([]*models.AutoRule, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.AutoRule, 0)
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRule(scanner interface{ Scan(dest ...any) error }) (*models.AutoRule, error) {
	var r models.AutoRule
	var riskMax, action string
	var conds []byte
	if err := scanner.Scan(&r.ID, &r.ClientID, &r.PropertyID, &r.Intent, &riskMax, &conds, &action, &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.RiskMax = models.RiskLevel(riskMax)
	r.Action = models.RuleAction(action)
	r.Conditions = map[string]interface{}{}
	if len(conds) > 0 {
		if err := json.Unmarshal(conds, &r.Conditions); err != nil {
			return nil, err
		}
	}
	return &r, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func ensureMap(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
