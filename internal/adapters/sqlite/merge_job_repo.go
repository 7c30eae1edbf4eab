package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/core/ledger"
)

type mergeJobRow struct {
	ID          int64     `db:"id"`
	ParentType  string    `db:"parent_type"`
	ChildType   string    `db:"child_type"`
	ParentIDs   string    `db:"parent_ids"`
	CompletedAt time.Time `db:"completed_at"`
}

func (r mergeJobRow) toEntry() *ledger.Entry {
	var ids []string
	if r.ParentIDs != "" {
		ids = strings.Split(r.ParentIDs, "-")
	}
	return &ledger.Entry{
		ID: r.ID,
		Key: ledger.Key{
			ParentType: r.ParentType,
			ChildType:  r.ChildType,
			ParentIDs:  ids,
		},
		CompletedAt: r.CompletedAt.UTC(),
	}
}

// MergeJobRepository implements secondary.MergeJobRepository with SQLite.
type MergeJobRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewMergeJobRepository creates a new SQLite merge-job repository.
func NewMergeJobRepository(db *sql.DB) *MergeJobRepository {
	return &MergeJobRepository{
		db:  sqlx.NewDb(db, "sqlite3"),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Record inserts a completed job.
func (r *MergeJobRepository) Record(ctx context.Context, key ledger.Key) error {
	if key.Empty() {
		return fmt.Errorf("merge job %s: %w", key, asset.ErrNoCandidates)
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("merge_jobs")
	ib.Cols("parent_type", "child_type", "parent_ids", "completed_at")
	ib.Values(key.ParentType, key.ChildType, key.Canonical(), r.now())
	query, args := ib.Build()

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("merge job %s: %w", key, asset.ErrDuplicate)
		}
		return fmt.Errorf("failed to record merge job: %w", err)
	}
	return nil
}

// Upsert inserts a job or refreshes its completion time.
func (r *MergeJobRepository) Upsert(ctx context.Context, key ledger.Key) error {
	err := r.Record(ctx, key)
	if !errors.Is(err, asset.ErrDuplicate) {
		return err
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("merge_jobs")
	ub.Set(ub.Assign("completed_at", r.now()))
	ub.Where(keyWhere(&ub.Cond, key)...)
	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to refresh merge job: %w", err)
	}
	return nil
}

// IsComplete reports whether the key has been recorded.
func (r *MergeJobRepository) IsComplete(ctx context.Context, key ledger.Key) (bool, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("COUNT(*)").From("merge_jobs").Where(keyWhere(&sb.Cond, key)...)
	query, args := sb.Build()

	var n int
	if err := r.db.GetContext(ctx, &n, query, args...); err != nil {
		return false, fmt.Errorf("failed to check merge job: %w", err)
	}
	return n > 0, nil
}

// List returns all entries, newest first.
func (r *MergeJobRepository) List(ctx context.Context) ([]*ledger.Entry, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id", "parent_type", "child_type", "parent_ids", "completed_at").
		From("merge_jobs").
		OrderBy("completed_at").Desc()
	query, args := sb.Build()

	var found []mergeJobRow
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list merge jobs: %w", err)
	}
	out := make([]*ledger.Entry, len(found))
	for i, row := range found {
		out[i] = row.toEntry()
	}
	return out, nil
}

// Delete removes an entry.
func (r *MergeJobRepository) Delete(ctx context.Context, key ledger.Key) error {
	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom("merge_jobs").Where(keyWhere(&db.Cond, key)...)
	query, args := db.Build()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete merge job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("merge job %s %w", key, asset.ErrNotFound)
	}
	return nil
}

func keyWhere(c *sqlbuilder.Cond, key ledger.Key) []string {
	return []string{
		c.Equal("parent_type", key.ParentType),
		c.Equal("child_type", key.ChildType),
		c.Equal("parent_ids", key.Canonical()),
	}
}
