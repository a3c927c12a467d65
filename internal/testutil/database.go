package testutil

import (
	"errors"
	"sync"
	"testing"

	"tourist-go/internal/database"
	"tourist-go/internal/tourist"
)

// NewTestDatabase creates a new in-memory SQLite database with schema applied.
// The database is automatically closed when the test completes.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if _, err := sqlDB.Exec(database.Schema); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	db := database.NewSQLiteDatabaseFromDB(sqlDB).WithClock(FixedClock())

	t.Cleanup(func() {
		db.Close()
	})

	return db
}

// ErrInjected is returned by FlakyDatabase when a failure is armed.
var ErrInjected = errors.New("injected database failure")

// FlakyDatabase wraps a Database and fails Apply on demand.
type FlakyDatabase struct {
	tourist.Database

	mu       sync.Mutex
	failNext int
	applies  int
}

func NewFlakyDatabase(db tourist.Database) *FlakyDatabase {
	return &FlakyDatabase{Database: db}
}

// FailNextApplies makes the next n calls to Apply return ErrInjected.
func (f *FlakyDatabase) FailNextApplies(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = n
}

// Applies returns the number of successful Apply calls.
func (f *FlakyDatabase) Applies() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.applies
}

func (f *FlakyDatabase) Apply(batch *tourist.ChangeBatch) error {
	f.mu.Lock()
	if f.failNext > 0 {
		f.failNext--
		f.mu.Unlock()
		return ErrInjected
	}
	f.mu.Unlock()

	if err := f.Database.Apply(batch); err != nil {
		return err
	}

	f.mu.Lock()
	f.applies++
	f.mu.Unlock()
	return nil
}
