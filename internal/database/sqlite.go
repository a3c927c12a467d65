package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tourist-go/internal/database/migrations"
	"tourist-go/internal/database/sqlc"
	"tourist-go/internal/model"
	"tourist-go/internal/tourist"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteDatabase implements the tourist.Database interface using SQLite.
type SQLiteDatabase struct {
	db      *sql.DB
	queries *sqlc.Queries
	path    string
	clock   tourist.Clock
}

// NewSQLiteDatabase creates a new SQLite database connection.
// path can be a file path or ":memory:" for in-memory database.
func NewSQLiteDatabase(path string) (*SQLiteDatabase, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}

	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    path,
		clock:   tourist.RealClock{},
	}, nil
}

// NewSQLiteDatabaseFromDB wraps an existing database connection.
// The caller is responsible for ensuring the connection is properly configured.
func NewSQLiteDatabaseFromDB(db *sql.DB) *SQLiteDatabase {
	return &SQLiteDatabase{
		db:      db,
		queries: sqlc.New(db),
		path:    "",
		clock:   tourist.RealClock{},
	}
}

// WithClock sets the clock used to timestamp operations.
func (s *SQLiteDatabase) WithClock(clock tourist.Clock) *SQLiteDatabase {
	s.clock = clock
	return s
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// This is exported for use in tools and tests that need a properly configured SQLite connection.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// PRAGMAs are per connection, and ":memory:" databases are per connection too.
	db.SetMaxOpenConns(1)

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// Pin operations

func (s *SQLiteDatabase) FindPin(id string) (*model.Pin, error) {
	row, err := s.queries.GetPinByID(context.Background(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding pin: %w", err)
	}
	return pinFromRow(row), nil
}

func (s *SQLiteDatabase) QueryPins(q tourist.Query) ([]*model.Pin, error) {
	query, args, err := buildSelect(q, "pins", pinColumns)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying pins: %w", err)
	}
	defer rows.Close()

	var result []*model.Pin
	for rows.Next() {
		var r sqlc.Pin
		if err := rows.Scan(&r.ID, &r.Latitude, &r.Longitude, &r.Name, &r.Page, &r.Pages, &r.Revision, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning pin: %w", err)
		}
		result = append(result, pinFromRow(r))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying pins: %w", err)
	}
	return result, nil
}

// Photo operations

func (s *SQLiteDatabase) FindPhoto(id string) (*model.Photo, error) {
	row, err := s.queries.GetPhotoByID(context.Background(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("finding photo: %w", err)
	}
	return photoFromRow(row), nil
}

func (s *SQLiteDatabase) QueryPhotos(q tourist.Query) ([]*model.Photo, error) {
	query, args, err := buildSelect(q, "photos", photoColumns)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(context.Background(), query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying photos: %w", err)
	}
	defer rows.Close()

	var result []*model.Photo
	for rows.Next() {
		var r sqlc.Photo
		if err := rows.Scan(&r.ID, &r.PinID, &r.RemoteImageUrl, &r.ImageBytes, &r.Revision, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning photo: %w", err)
		}
		result = append(result, photoFromRow(r))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("querying photos: %w", err)
	}
	return result, nil
}

// CountPhotos returns the number of photos stored for a pin.
func (s *SQLiteDatabase) CountPhotos(pinID string) (int64, error) {
	n, err := s.queries.CountPhotosByPinID(context.Background(), pinID)
	if err != nil {
		return 0, fmt.Errorf("counting photos: %w", err)
	}
	return n, nil
}

// Apply writes a change batch in a single transaction. Inserts run first, in
// batch order, so rowid preserves creation order; pin deletes run last and
// cascade to their photos.
func (s *SQLiteDatabase) Apply(batch *tourist.ChangeBatch) error {
	if batch.Empty() {
		return nil
	}
	ctx := context.Background()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := s.queries.WithTx(tx)

	for _, p := range batch.InsertPins {
		err := qtx.InsertPin(ctx, sqlc.InsertPinParams{
			ID:        p.ID,
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Name:      p.Name,
			Page:      int64(p.Page),
			Pages:     int64(p.Pages),
			Revision:  p.Revision,
			CreatedAt: p.CreatedAt.UTC(),
		})
		if err != nil {
			return fmt.Errorf("inserting pin %s: %w", p.ID, err)
		}
	}

	for _, p := range batch.InsertPhotos {
		err := qtx.InsertPhoto(ctx, sqlc.InsertPhotoParams{
			ID:             p.ID,
			PinID:          p.PinID,
			RemoteImageUrl: p.RemoteImageURL,
			ImageBytes:     p.ImageBytes,
			Revision:       p.Revision,
			CreatedAt:      p.CreatedAt.UTC(),
		})
		if err != nil {
			return fmt.Errorf("inserting photo %s: %w", p.ID, err)
		}
	}

	// Updates of rows that no longer exist are dropped.
	for _, p := range batch.UpdatePins {
		_, err := qtx.UpdatePin(ctx, sqlc.UpdatePinParams{
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
			Name:      p.Name,
			Page:      int64(p.Page),
			Pages:     int64(p.Pages),
			Revision:  p.Revision,
			ID:        p.ID,
		})
		if err != nil {
			return fmt.Errorf("updating pin %s: %w", p.ID, err)
		}
	}

	for _, p := range batch.UpdatePhotos {
		_, err := qtx.UpdatePhoto(ctx, sqlc.UpdatePhotoParams{
			RemoteImageUrl: p.RemoteImageURL,
			ImageBytes:     p.ImageBytes,
			Revision:       p.Revision,
			ID:             p.ID,
		})
		if err != nil {
			return fmt.Errorf("updating photo %s: %w", p.ID, err)
		}
	}

	for _, id := range batch.DeletePhotos {
		if err := qtx.DeletePhotoByID(ctx, id); err != nil {
			return fmt.Errorf("deleting photo %s: %w", id, err)
		}
	}

	for _, id := range batch.DeletePins {
		if err := qtx.DeletePinByID(ctx, id); err != nil {
			return fmt.Errorf("deleting pin %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Operation tracking

func (s *SQLiteDatabase) CreateOperation(operation string, parameters string) (*model.Operation, error) {
	op, err := s.queries.InsertOperation(context.Background(), sqlc.InsertOperationParams{
		Operation:  operation,
		Parameters: parameters,
		StartedAt:  s.clock.Now().UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating operation: %w", err)
	}
	return operationFromRow(op), nil
}

func (s *SQLiteDatabase) FinishOperation(id int64, status string) error {
	err := s.queries.UpdateOperationFinished(context.Background(), sqlc.UpdateOperationFinishedParams{
		FinishedAt: sql.NullTime{Time: s.clock.Now().UTC(), Valid: true},
		Status:     status,
		ID:         id,
	})
	if err != nil {
		return fmt.Errorf("finishing operation: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) ListOperations(limit int) ([]*model.Operation, error) {
	ops, err := s.queries.GetOperations(context.Background(), int64(limit))
	if err != nil {
		return nil, fmt.Errorf("listing operations: %w", err)
	}

	result := make([]*model.Operation, len(ops))
	for i := range ops {
		result[i] = operationFromRow(ops[i])
	}
	return result, nil
}

func (s *SQLiteDatabase) MaxOperationID() (int64, error) {
	id, err := s.queries.GetMaxOperationID(context.Background())
	if err != nil {
		return 0, fmt.Errorf("getting max operation ID: %w", err)
	}
	return id, nil
}

// Path returns the database file path (or ":memory:" for in-memory databases).
func (s *SQLiteDatabase) Path() string {
	return s.path
}

// CheckMigrations verifies the database schema is up-to-date.
func (s *SQLiteDatabase) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

// Migrate brings the schema to the latest version.
func (s *SQLiteDatabase) Migrate() error {
	return migrations.MigrateUp(s.db)
}

// BackupTo creates a complete copy of the database at destPath using VACUUM INTO.
func (s *SQLiteDatabase) BackupTo(destPath string) error {
	_, err := s.db.Exec("VACUUM INTO ?", destPath)
	if err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Row conversion

func pinFromRow(r sqlc.Pin) *model.Pin {
	return &model.Pin{
		ID:        r.ID,
		Latitude:  r.Latitude,
		Longitude: r.Longitude,
		Name:      r.Name,
		Page:      int16(r.Page),
		Pages:     int16(r.Pages),
		Revision:  r.Revision,
		CreatedAt: r.CreatedAt.UTC(),
	}
}

func photoFromRow(r sqlc.Photo) *model.Photo {
	return &model.Photo{
		ID:             r.ID,
		PinID:          r.PinID,
		RemoteImageURL: r.RemoteImageUrl,
		ImageBytes:     r.ImageBytes,
		Revision:       r.Revision,
		CreatedAt:      r.CreatedAt.UTC(),
	}
}

func operationFromRow(r sqlc.Operation) *model.Operation {
	op := &model.Operation{
		ID:         r.ID,
		Operation:  r.Operation,
		Parameters: r.Parameters,
		Status:     r.Status,
		StartedAt:  r.StartedAt.UTC(),
	}
	if r.FinishedAt.Valid {
		t := r.FinishedAt.Time.UTC()
		op.FinishedAt = &t
	}
	return op
}

// Dynamic queries

var (
	pinColumns   = []string{"id", "latitude", "longitude", "name", "page", "pages", "revision", "created_at"}
	photoColumns = []string{"id", "pin_id", "remote_image_url", "image_bytes", "revision", "created_at"}
)

// buildSelect renders a validated Query as SQL. Field names come from the
// query whitelist and are never taken from values. Ties in the sort field
// fall back to rowid, which is insertion order.
func buildSelect(q tourist.Query, table string, columns []string) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(columns, ", "))
	b.WriteString(" FROM ")
	b.WriteString(table)

	args := make([]any, 0, len(q.Where))
	for i, c := range q.Where {
		if i == 0 {
			b.WriteString(" WHERE ")
		} else {
			b.WriteString(" AND ")
		}
		b.WriteString(c.Field)
		b.WriteString(" = ?")
		args = append(args, normalizeArg(c.Value))
	}

	b.WriteString(" ORDER BY ")
	if q.OrderBy.Field != "" {
		b.WriteString(q.OrderBy.Field)
		if q.OrderBy.Descending {
			b.WriteString(" DESC")
		}
		b.WriteString(", ")
	}
	b.WriteString("rowid")
	if q.OrderBy.Descending {
		b.WriteString(" DESC")
	}

	return b.String(), args, nil
}

// normalizeArg matches the storage form of time values.
func normalizeArg(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC()
	}
	return v
}

// Compile-time check that SQLiteDatabase implements tourist.Database interface
var _ tourist.Database = (*SQLiteDatabase)(nil)
