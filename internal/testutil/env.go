package testutil

import (
	"sync"
	"testing"

	"tourist-go/internal/encryption"
	"tourist-go/internal/store"
	"tourist-go/internal/tourist"
	"tourist-go/internal/vault"
)

// Env is a synchronizer wired to an in-memory database and stub remotes.
type Env struct {
	DB     *FlakyDatabase
	Store  *store.EntityStore
	Loop   *tourist.Loop
	Photos *StubPhotoService
	Images *StubImageFetcher
	Random *StubRandom
	Sync   *tourist.Synchronizer
}

// NewEnv creates an Env whose photo service reports 5 pages of 3 photos.
// Workers and the loop are shut down when the test completes.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	db := NewFlakyDatabase(NewTestDatabase(t))
	st := store.New(db, FixedClock(), NewStubIDGenerator(), tourist.NewNopLogger())
	loop := tourist.NewLoop()
	env := &Env{
		DB:     db,
		Store:  st,
		Loop:   loop,
		Photos: NewStubPhotoService(5, 3),
		Images: NewStubImageFetcher(),
		Random: NewStubRandom(),
	}
	env.Sync = tourist.NewSynchronizer(loop, st, env.Photos, env.Images, tourist.NewNopLogger(), env.Random)

	t.Cleanup(func() {
		env.Sync.Wait()
		loop.Close()
	})
	return env
}

// NewTestVault creates a new in-memory vault for testing.
func NewTestVault() tourist.Vault {
	return vault.NewMemoryVault("test-vault")
}

// NewTestEncryptor creates a new test encryptor for testing.
func NewTestEncryptor() tourist.Encryptor {
	return encryption.NewTestEncryptor()
}

// RecordingView keeps every AlbumUpdate it receives.
type RecordingView struct {
	mu      sync.Mutex
	updates []tourist.AlbumUpdate
}

func NewRecordingView() *RecordingView {
	return &RecordingView{}
}

func (v *RecordingView) Render(u tourist.AlbumUpdate) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updates = append(v.updates, u)
}

// Updates returns all updates received so far.
func (v *RecordingView) Updates() []tourist.AlbumUpdate {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]tourist.AlbumUpdate(nil), v.updates...)
}

// Last returns the most recent update. It fails the test if there is none.
func (v *RecordingView) Last(t *testing.T) tourist.AlbumUpdate {
	t.Helper()
	v.mu.Lock()
	defer v.mu.Unlock()
	if len(v.updates) == 0 {
		t.Fatal("no album updates rendered")
	}
	return v.updates[len(v.updates)-1]
}

// Reset forgets recorded updates.
func (v *RecordingView) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.updates = nil
}
