package approvals

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/guestdesk/internal/audit"
	"github.com/guestdesk/internal/threads"
	"github.com/guestdesk/pkg/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

const approvalColumns = `a.id, a.message_id, a.thread_id, coalesce(a.rule_id::text,''), a.status, coalesce(a.reviewer_id,''), coalesce(a.notes,''), a.created_at, a.updated_at`

func scanApproval(scanner interface{ Scan(dest ...any) error }) (*models.ApprovalRequest, error) {
	var a models.ApprovalRequest
	var status string
	if err := scanner.Scan(&a.ID, &a.MessageID, &a.ThreadID, &a.RuleID, &status, &a.ReviewerID, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Status = models.ApprovalStatus(status)
	return &a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *models.ApprovalRequest) error {
	if a.Status == "" {
		a.Status = models.ApprovalPending
	}
	return s.db.QueryRowContext(ctx, `
        INSERT INTO approval_requests (message_id, thread_id, rule_id, status, notes)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id, created_at, updated_at
    `, a.MessageID, a.ThreadID, nullIfEmpty(a.RuleID), string(a.Status), a.Notes).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.ApprovalRequest, error) {
	a, err := scanApproval(s.db.QueryRowContext(ctx, `SELECT `+approvalColumns+` FROM approval_requests a WHERE a.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) List(ctx context.Context, f ListFilter) ([]*models.ApprovalRequest, error) {
	status := f.Status
	if status == "" {
		status = models.ApprovalPending
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	return s.query(ctx, `
        SELECT `+approvalColumns+`
        FROM approval_requests a
        JOIN threads t ON t.id = a.thread_id
        WHERE a.status = $1 AND ($2 = '' OR t.client_id::text = $2)
        ORDER BY a.created_at DESC
        LIMIT $3
    `, string(status), f.ClientID, limit)
}

func (s *PostgresStore) PendingForMessages(ctx context.Context, messageIDs []string) ([]*models.ApprovalRequest, error) {
	return s.query(ctx, `
        SELECT `+approvalColumns+`
        FROM approval_requests a
        WHERE a.status = 'pending' AND a.message_id::text = ANY($1)
        ORDER BY a.created_at ASC
    `, pq.Array(messageIDs))
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*models.ApprovalRequest, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]*models.ApprovalRequest, 0)
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Transition(ctx context.Context, t Transition) (*models.ApprovalRequest, error) {
	var out *models.ApprovalRequest
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := scanApproval(tx.QueryRowContext(ctx, `
            UPDATE approval_requests a
            SET status=$1, reviewer_id=$2, notes=$3, updated_at=now()
            WHERE a.id=$4 AND a.status='pending'
            RETURNING `+approvalColumns, string(t.To), t.ReviewerID, t.Notes, t.ApprovalID))
		if errors.Is(err, sql.ErrNoRows) {
			var exists bool
			if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM approval_requests WHERE id=$1)`, t.ApprovalID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return ErrNotFound
			}
			return ErrConflict
		}
		if err != nil {
			return err
		}

		if err := writeRecords(ctx, tx, t.ThreadID, t.To, t.SendLog, t.Audit); err != nil {
			return err
		}
		out = a
		return nil
	})
	return out, err
}

func (s *PostgresStore) RecordDirectSend(ctx context.Context, d DirectSend) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		err := tx.QueryRowContext(ctx, `SELECT status FROM threads WHERE id=$1 FOR UPDATE`, d.ThreadID).Scan(&status)
		if errors.Is(err, sql.ErrNoRows) {
			return threads.ErrNotFound
		}
		if err != nil {
			return err
		}
		if !threads.AcceptsReply(models.ThreadStatus(status)) {
			return ErrThreadClosed
		}
		return writeRecords(ctx, tx, d.ThreadID, models.ApprovalApproved, d.SendLog, d.Audit)
	})
}

func (s *PostgresStore) RecordAudit(ctx context.Context, e *models.AuditLog) error {
	return audit.InsertAudit(ctx, s.db, e)
}

func writeRecords(ctx context.Context, tx *sql.Tx, threadID string, decision models.ApprovalStatus, sendLog *models.SendLog, entry *models.AuditLog) error {
	if sendLog != nil {
		if err := audit.InsertSendLog(ctx, tx, sendLog); err != nil {
			return fmt.Errorf("record send log: %w", err)
		}
	}
	if status, ok := threads.StatusForDecision(decision); ok {
		res, err := tx.ExecContext(ctx, `UPDATE threads SET status=$1, updated_at=now() WHERE id=$2`, string(status), threadID)
		if err != nil {
			return fmt.Errorf("set thread status: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("set thread status: %w", threads.ErrNotFound)
		}
	}
	if entry != nil {
		if err := audit.InsertAudit(ctx, tx, entry); err != nil {
			return fmt.Errorf("record audit: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
