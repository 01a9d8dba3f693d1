package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/kestrelworks/engram/internal/core"
)

// ConflictRepo persists the conflict audit trail.
type ConflictRepo struct {
	db *sql.DB
}

func NewConflictRepo(db *sql.DB) *ConflictRepo {
	return &ConflictRepo{db: db}
}

func (r *ConflictRepo) Save(ctx context.Context, c *core.Conflict) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conflicts
			(id, memory_id, other_memory_id, relation, confidence, reasoning, suggested_action, status, scanned_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO NOTHING`,
		c.ID, c.MemoryID, c.OtherMemoryID, string(c.Relation), c.Confidence,
		c.Reasoning, c.SuggestedAction, string(c.Status), c.ScannedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert conflict: %w", err)
	}
	return nil
}

func (r *ConflictRepo) Get(ctx context.Context, id string) (*core.Conflict, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, memory_id, other_memory_id, relation, confidence, reasoning, suggested_action, status, scanned_at
		FROM conflicts WHERE id = ?`, id)

	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("conflict %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load conflict: %w", err)
	}
	return c, nil
}

func (r *ConflictRepo) SetStatus(ctx context.Context, id string, status core.ConflictStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE conflicts SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update conflict status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("conflict %s not found", id)
	}
	return nil
}

func (r *ConflictRepo) ListPending(ctx context.Context, limit int) ([]core.Conflict, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, memory_id, other_memory_id, relation, confidence, reasoning, suggested_action, status, scanned_at
		FROM conflicts WHERE status = ?
		ORDER BY scanned_at ASC
		LIMIT ?`, string(core.ConflictPending), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []core.Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, *c)
	}
	return conflicts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConflict(row rowScanner) (*core.Conflict, error) {
	var c core.Conflict
	var relation, status string
	if err := row.Scan(
		&c.ID, &c.MemoryID, &c.OtherMemoryID, &relation, &c.Confidence,
		&c.Reasoning, &c.SuggestedAction, &status, &c.ScannedAt,
	); err != nil {
		return nil, err
	}
	c.Relation = core.Relation(relation)
	c.Status = core.ConflictStatus(status)
	return &c, nil
}
