// Package sqlite contains SQLite implementations of repository interfaces.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/example/sfg/internal/core/asset"
	"github.com/example/sfg/internal/ports/secondary"
)

var assetColumns = []string{
	"id", "network", "station", "campaign", "type",
	"local_path", "remote_path", "remote_type",
	"timestamp_data_start", "timestamp_data_end", "timestamp_created",
	"parent_id", "is_processed",
}

type assetRow struct {
	ID         int64          `db:"id"`
	Network    string         `db:"network"`
	Station    string         `db:"station"`
	Campaign   string         `db:"campaign"`
	Type       string         `db:"type"`
	LocalPath  sql.NullString `db:"local_path"`
	RemotePath sql.NullString `db:"remote_path"`
	RemoteType sql.NullString `db:"remote_type"`
	Start      sql.NullTime   `db:"timestamp_data_start"`
	End        sql.NullTime   `db:"timestamp_data_end"`
	Created    time.Time      `db:"timestamp_created"`
	ParentID   sql.NullInt64  `db:"parent_id"`
	Processed  bool           `db:"is_processed"`
}

func (r assetRow) toRecord() *asset.Record {
	rec := &asset.Record{
		ID:         r.ID,
		Type:       asset.Type(r.Type),
		LocalPath:  r.LocalPath.String,
		RemotePath: r.RemotePath.String,
		RemoteType: asset.RemoteType(r.RemoteType.String),
		Network:    r.Network,
		Station:    r.Station,
		Campaign:   r.Campaign,
		CreatedAt:  r.Created.UTC(),
		Processed:  r.Processed,
	}
	if r.Start.Valid {
		t := r.Start.Time.UTC()
		rec.TimeStart = &t
	}
	if r.End.Valid {
		t := r.End.Time.UTC()
		rec.TimeEnd = &t
	}
	if r.ParentID.Valid {
		id := r.ParentID.Int64
		rec.ParentID = &id
	}
	return rec
}

// AssetRepository implements secondary.AssetRepository with SQLite.
type AssetRepository struct {
	db *sqlx.DB
}

// NewAssetRepository creates a new SQLite asset repository.
func NewAssetRepository(db *sql.DB) *AssetRepository {
	return &AssetRepository{db: sqlx.NewDb(db, "sqlite3")}
}

// Add inserts a record. A uniqueness violation on a path returns false, nil.
func (r *AssetRepository) Add(ctx context.Context, rec *asset.Record) (bool, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	ib := sqlbuilder.SQLite.NewInsertBuilder()
	ib.InsertInto("assets")
	ib.Cols(assetColumns[1:]...)
	ib.Values(
		rec.Network, rec.Station, rec.Campaign, string(rec.Type),
		nullString(rec.LocalPath), nullString(rec.RemotePath), nullString(string(rec.RemoteType)),
		nullTime(rec.TimeStart), nullTime(rec.TimeEnd), rec.CreatedAt,
		nullInt(rec.ParentID), rec.Processed,
	)
	query, args := ib.Build()

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to add asset: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read asset id: %w", err)
	}
	rec.ID = id
	return true, nil
}

// AddOrUpdate inserts a record, or refreshes the row sharing its path.
func (r *AssetRepository) AddOrUpdate(ctx context.Context, rec *asset.Record) (bool, error) {
	added, err := r.Add(ctx, rec)
	if err != nil || added {
		return added, err
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("assets")
	assigns := []string{
		ub.Assign("type", string(rec.Type)),
		ub.Assign("timestamp_data_start", nullTime(rec.TimeStart)),
		ub.Assign("timestamp_data_end", nullTime(rec.TimeEnd)),
	}
	if rec.ParentID != nil {
		assigns = append(assigns, ub.Assign("parent_id", *rec.ParentID))
	}
	if rec.Processed {
		assigns = append(assigns, ub.Assign("is_processed", true))
	}
	ub.Set(assigns...)
	ub.Where(pathMatch(&ub.Cond, rec))
	query, args := ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("failed to update asset by path: %w", err)
	}

	existing, err := r.getByPath(ctx, rec)
	if err != nil {
		return false, err
	}
	rec.ID = existing.ID
	return false, nil
}

// Upsert updates storage references and the processed flag in place.
func (r *AssetRepository) Upsert(ctx context.Context, rec *asset.Record) error {
	if rec.ID == 0 {
		_, err := r.AddOrUpdate(ctx, rec)
		return err
	}

	ub := sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("assets")
	ub.Set(
		ub.Assign("local_path", nullString(rec.LocalPath)),
		ub.Assign("remote_path", nullString(rec.RemotePath)),
		ub.Assign("remote_type", nullString(string(rec.RemoteType))),
		ub.Assign("timestamp_data_start", nullTime(rec.TimeStart)),
		ub.Assign("timestamp_data_end", nullTime(rec.TimeEnd)),
		ub.Assign("is_processed", rec.Processed),
	)
	ub.Where(ub.Equal("id", rec.ID))
	query, args := ub.Build()

	_, err := r.db.ExecContext(ctx, query, args...)
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return fmt.Errorf("failed to upsert asset %d: %w", rec.ID, err)
	}

	// Another row already owns the path: update that one instead.
	ub = sqlbuilder.SQLite.NewUpdateBuilder()
	ub.Update("assets")
	ub.Set(ub.Assign("is_processed", rec.Processed))
	ub.Where(pathMatch(&ub.Cond, rec))
	query, args = ub.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert asset by path: %w", err)
	}
	return nil
}

// GetByID retrieves a record by its ID.
func (r *AssetRepository) GetByID(ctx context.Context, id int64) (*asset.Record, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(assetColumns...).From("assets").Where(sb.Equal("id", id))
	query, args := sb.Build()

	var row assetRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %d %w", id, asset.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset: %w", err)
	}
	return row.toRecord(), nil
}

// GetAssets retrieves records matching the filter.
func (r *AssetRepository) GetAssets(ctx context.Context, filter secondary.AssetFilter) ([]*asset.Record, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(assetColumns...).From("assets")
	where := scopeWhere(&sb.Cond, "", asset.Scope{Network: filter.Network, Station: filter.Station, Campaign: filter.Campaign})
	if len(filter.Types) > 0 {
		where = append(where, sb.In("type", typeArgs(filter.Types)...))
	}
	if filter.Processed != nil {
		where = append(where, sb.Equal("is_processed", *filter.Processed))
	}
	if filter.ParentID != nil {
		where = append(where, sb.Equal("parent_id", *filter.ParentID))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("id")
	return r.selectRecords(ctx, sb, "failed to list assets")
}

// GetUnprocessed returns parents still awaiting a child.
func (r *AssetRepository) GetUnprocessed(ctx context.Context, scope asset.Scope, parentType, childType asset.Type, override bool) ([]*asset.Record, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	cols := make([]string, len(assetColumns))
	for i, c := range assetColumns {
		cols[i] = "p." + c
	}
	sb.Select(cols...).From(sb.As("assets", "p"))
	where := scopeWhere(&sb.Cond, "p.", scope)
	where = append(where, sb.Equal("p.type", string(parentType)))
	if !override {
		if childType == "" {
			where = append(where, sb.Equal("p.is_processed", false))
		} else {
			where = append(where, fmt.Sprintf(
				"NOT EXISTS (SELECT 1 FROM assets c WHERE c.parent_id = p.id AND c.type = %s)",
				sb.Var(string(childType)),
			))
		}
	}
	sb.Where(where...)
	sb.OrderBy("p.id")
	return r.selectRecords(ctx, sb, "failed to get unprocessed assets")
}

// Counts returns the number of records per type in scope.
func (r *AssetRepository) Counts(ctx context.Context, scope asset.Scope) (map[asset.Type]int, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("type", "COUNT(*) AS n").From("assets")
	if where := scopeWhere(&sb.Cond, "", scope); len(where) > 0 {
		sb.Where(where...)
	}
	sb.GroupBy("type")
	query, args := sb.Build()

	var counts []struct {
		Type string `db:"type"`
		N    int    `db:"n"`
	}
	if err := r.db.SelectContext(ctx, &counts, query, args...); err != nil {
		return nil, fmt.Errorf("failed to count assets: %w", err)
	}
	out := make(map[asset.Type]int, len(counts))
	for _, c := range counts {
		out[asset.Type(c.Type)] = c.N
	}
	return out, nil
}

// RemoteExists reports whether a record with the remote path exists.
func (r *AssetRepository) RemoteExists(ctx context.Context, remotePath string) (bool, error) {
	var n int
	err := r.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM assets WHERE remote_path = ?", remotePath)
	if err != nil {
		return false, fmt.Errorf("failed to check remote path: %w", err)
	}
	return n > 0, nil
}

// UpdateLocalPath sets the local path of the record with the remote path.
func (r *AssetRepository) UpdateLocalPath(ctx context.Context, remotePath, localPath string) error {
	res, err := r.db.ExecContext(ctx, "UPDATE assets SET local_path = ? WHERE remote_path = ?", localPath, remotePath)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("local path %s: %w", localPath, asset.ErrDuplicate)
		}
		return fmt.Errorf("failed to update local path: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("asset with remote path %s %w", remotePath, asset.ErrNotFound)
	}
	return nil
}

// Delete removes records by ID. It fails with ErrInUse and deletes nothing
// when a record outside ids still names one of them as parent.
func (r *AssetRepository) Delete(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback()

	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select("id").From("assets").Where(sb.In("parent_id", args...), sb.NotIn("id", args...))
	query, qargs := sb.Build()
	var children []int64
	if err := tx.SelectContext(ctx, &children, query, qargs...); err != nil {
		return fmt.Errorf("failed to look up children: %w", err)
	}
	if len(children) > 0 {
		return fmt.Errorf("assets %v %w by children %v", ids, asset.ErrInUse, children)
	}

	db := sqlbuilder.SQLite.NewDeleteBuilder()
	db.DeleteFrom("assets").Where(db.In("id", args...))
	query, qargs = db.Build()
	if _, err := tx.ExecContext(ctx, query, qargs...); err != nil {
		return fmt.Errorf("failed to delete assets: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// ListAll returns every record.
func (r *AssetRepository) ListAll(ctx context.Context) ([]*asset.Record, error) {
	return r.GetAssets(ctx, secondary.AssetFilter{})
}

func (r *AssetRepository) getByPath(ctx context.Context, rec *asset.Record) (*asset.Record, error) {
	sb := sqlbuilder.SQLite.NewSelectBuilder()
	sb.Select(assetColumns...).From("assets").Where(pathMatch(&sb.Cond, rec))
	query, args := sb.Build()

	var row assetRow
	err := r.db.GetContext(ctx, &row, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("asset %s %w", rec.StorageRef(), asset.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get asset by path: %w", err)
	}
	return row.toRecord(), nil
}

func (r *AssetRepository) selectRecords(ctx context.Context, sb *sqlbuilder.SelectBuilder, msg string) ([]*asset.Record, error) {
	query, args := sb.Build()
	var found []assetRow
	if err := r.db.SelectContext(ctx, &found, query, args...); err != nil {
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	out := make([]*asset.Record, len(found))
	for i, row := range found {
		out[i] = row.toRecord()
	}
	return out, nil
}

func scopeWhere(c *sqlbuilder.Cond, prefix string, s asset.Scope) []string {
	var where []string
	if s.Network != "" {
		where = append(where, c.Equal(prefix+"network", s.Network))
	}
	if s.Station != "" {
		where = append(where, c.Equal(prefix+"station", s.Station))
	}
	if s.Campaign != "" {
		where = append(where, c.Equal(prefix+"campaign", s.Campaign))
	}
	return where
}

func pathMatch(c *sqlbuilder.Cond, rec *asset.Record) string {
	if rec.LocalPath != "" {
		return c.Equal("local_path", rec.LocalPath)
	}
	return c.Equal("remote_path", rec.RemotePath)
}

func typeArgs(ts []asset.Type) []any {
	out := make([]any, len(ts))
	for i, t := range ts {
		out[i] = string(t)
	}
	return out
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrConstraint && se.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return false
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func nullInt(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}
