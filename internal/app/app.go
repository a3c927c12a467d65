package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"

	"tourist-go/internal/config"
	"tourist-go/internal/database"
	"tourist-go/internal/encryption"
	"tourist-go/internal/flickr"
	"tourist-go/internal/imagefetch"
	"tourist-go/internal/model"
	"tourist-go/internal/prefs"
	"tourist-go/internal/store"
	"tourist-go/internal/tourist"
	"tourist-go/internal/vault"
)

// snapshotName is the vault item holding the database snapshot.
const snapshotName = "db"

// Option overrides a dependency NewTouristApp would otherwise build from config.
type Option func(*options)

type options struct {
	fs        afero.Fs
	stderr    io.Writer
	photos    tourist.PhotoService
	images    tourist.ImageFetcher
	vault     tourist.Vault
	encryptor tourist.Encryptor
	random    tourist.Random
}

// WithFs sets the filesystem used for logs, preferences, keys and filesystem vaults.
func WithFs(fs afero.Fs) Option { return func(o *options) { o.fs = fs } }

// WithStderr sets the second log destination. nil disables it.
func WithStderr(w io.Writer) Option { return func(o *options) { o.stderr = w } }

// WithPhotoService replaces the Flickr client.
func WithPhotoService(s tourist.PhotoService) Option { return func(o *options) { o.photos = s } }

// WithImageFetcher replaces the HTTP image fetcher.
func WithImageFetcher(f tourist.ImageFetcher) Option { return func(o *options) { o.images = f } }

// WithVault replaces the first configured vault.
func WithVault(v tourist.Vault) Option { return func(o *options) { o.vault = v } }

// WithEncryptor replaces the configured encryptor.
func WithEncryptor(e tourist.Encryptor) Option { return func(o *options) { o.encryptor = e } }

// WithRandom replaces the refresh page picker.
func WithRandom(r tourist.Random) Option { return func(o *options) { o.random = r } }

func applyOptions(opts []Option) *options {
	o := &options{
		fs:     afero.NewOsFs(),
		stderr: os.Stderr,
		random: tourist.RealRandom{},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// TouristApp is the application layer between the CLI and the Synchronizer.
// It constructs all dependencies from config, records mutating commands in
// the operation log, and snapshots the database to the vault on Close.
type TouristApp struct {
	cfg       *config.Config
	fs        afero.Fs
	db        *database.SQLiteDatabase
	vault     tourist.Vault // nil when no vault is configured
	encryptor tourist.Encryptor
	loop      *tourist.Loop
	sync      *tourist.Synchronizer
	prefs     *prefs.File
	albumOpts tourist.AlbumOptions
	logger    tourist.Logger
	op        *Operation
	logFile   io.Closer
}

// NewTouristApp creates a fully wired TouristApp from the given config.
// operation identifies the CLI command being run (e.g. "DropPin", "RefreshPhotos").
// The caller must call Close when done.
func NewTouristApp(ctx context.Context, cfg *config.Config, operation string, opts ...Option) (*TouristApp, error) {
	o := applyOptions(opts)

	v, err := openVault(ctx, o, cfg)
	if err != nil {
		return nil, err
	}

	db, err := database.NewDatabaseFromConfig(cfg.Database, cfg.HostID)
	if err != nil {
		return nil, fmt.Errorf("creating database: %w", err)
	}

	if err := db.CheckMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("database schema out of date: %w", err)
	}

	// Check local DB version against remote vault version.
	if v != nil {
		remoteVersion, err := v.GetMetadataVersion(cfg.HostID, snapshotName)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking remote snapshot version: %w", err)
		}
		localMax, err := db.MaxOperationID()
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("checking local database version: %w", err)
		}
		if remoteVersion > localMax {
			db.Close()
			return nil, fmt.Errorf("local database is behind vault (local=%d, remote=%d): run restore", localMax, remoteVersion)
		}
	}

	enc := o.encryptor
	if enc == nil {
		enc, err = encryption.NewEncryptorFromConfig(o.fs, cfg.Encryption)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("creating encryptor: %w", err)
		}
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	slogger, logFile, err := newLogger(o.fs, cfg.LogDir, opID, cfg.LogLevel, o.stderr)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := &slogAdapter{l: slogger}

	photos := o.photos
	if photos == nil {
		photos = flickr.NewClient(cfg.Flickr, cfg.Images.Size, nil)
	}
	images := o.images
	if images == nil {
		images = imagefetch.NewHTTPFetcher(cfg.Images, nil)
	}

	loop := tourist.NewLoop()
	st := store.New(db, tourist.RealClock{}, tourist.UUIDGenerator{}, logger)
	syncer := tourist.NewSynchronizer(loop, st, photos, images, logger, o.random)

	albumOpts := tourist.AlbumOptions{Unlock: tourist.UnlockOnHydrated}
	if cfg.Album.RefreshUnlock == "populated" {
		albumOpts.Unlock = tourist.UnlockOnPopulated
	}

	return &TouristApp{
		cfg:       cfg,
		fs:        o.fs,
		db:        db,
		vault:     v,
		encryptor: enc,
		loop:      loop,
		sync:      syncer,
		prefs:     prefs.NewFile(o.fs, cfg.Preferences.Path),
		albumOpts: albumOpts,
		logger:    logger,
		op:        NewOperation(operation, ""),
		logFile:   logFile,
	}, nil
}

// openVault returns the first configured vault, or nil if there is none.
func openVault(ctx context.Context, o *options, cfg *config.Config) (tourist.Vault, error) {
	if o.vault != nil {
		return o.vault, nil
	}
	if len(cfg.Vaults) == 0 {
		return nil, nil
	}
	v, err := vault.NewVaultFromConfig(ctx, o.fs, cfg.Vaults[0])
	if err != nil {
		return nil, fmt.Errorf("creating vault: %w", err)
	}
	return v, nil
}

// ValidateVault checks that the first configured vault is reachable.
func ValidateVault(ctx context.Context, cfg *config.Config, opts ...Option) error {
	v, err := openVault(ctx, applyOptions(opts), cfg)
	if err != nil {
		return err
	}
	if v == nil {
		return fmt.Errorf("no vaults configured")
	}
	if err := v.ValidateSetup(); err != nil {
		return fmt.Errorf("validating vault: %w", err)
	}
	return nil
}

// persistOperation saves the operation to the database, giving it an auto-increment ID.
// This should only be called for DB-mutating commands.
func (a *TouristApp) persistOperation(ctx context.Context, parameters string) error {
	if a.op.Persisted() {
		return nil
	}
	a.op.Parameters = parameters
	return a.loop.Do(ctx, func() error {
		dbOp, err := a.db.CreateOperation(a.op.Operation, a.op.Parameters)
		if err != nil {
			return fmt.Errorf("persisting operation: %w", err)
		}
		a.op.ID = dbOp.ID
		return nil
	})
}

// mutate runs fn as part of the recorded operation and marks it failed on error.
func (a *TouristApp) mutate(ctx context.Context, parameters string, fn func() error) error {
	if err := a.persistOperation(ctx, parameters); err != nil {
		return err
	}
	if err := fn(); err != nil {
		a.op.Fail()
		return err
	}
	return nil
}

func coordinateParams(latitude, longitude float64) string {
	return strconv.FormatFloat(latitude, 'f', -1, 64) + "," + strconv.FormatFloat(longitude, 'f', -1, 64)
}

// AddPin saves a pin without fetching photos.
func (a *TouristApp) AddPin(ctx context.Context, latitude, longitude float64, name string) (*model.Pin, error) {
	var pin *model.Pin
	err := a.mutate(ctx, coordinateParams(latitude, longitude), func() error {
		var err error
		pin, err = a.sync.AddPin(ctx, latitude, longitude, name)
		return err
	})
	return pin, err
}

// DropPin saves a pin and fetches its first page of photos.
// The pin is returned even when only the photo fetch failed.
func (a *TouristApp) DropPin(ctx context.Context, latitude, longitude float64, name string) (*model.Pin, error) {
	var pin *model.Pin
	err := a.mutate(ctx, coordinateParams(latitude, longitude), func() error {
		var err error
		pin, err = a.sync.DropPin(ctx, latitude, longitude, name)
		return err
	})
	return pin, err
}

// Pins returns all pins, newest first.
func (a *TouristApp) Pins(ctx context.Context) ([]*model.Pin, error) {
	return a.sync.Pins(ctx)
}

// Pin returns one pin.
func (a *TouristApp) Pin(ctx context.Context, pinID string) (*model.Pin, error) {
	return a.sync.Pin(ctx, pinID)
}

// DeletePin removes a pin and its photos.
func (a *TouristApp) DeletePin(ctx context.Context, pinID string) error {
	return a.mutate(ctx, pinID, func() error {
		return a.sync.DeletePin(ctx, pinID)
	})
}

// Photos returns the photos of a pin in display order.
func (a *TouristApp) Photos(ctx context.Context, pinID string) ([]*model.Photo, error) {
	return a.sync.Photos(ctx, pinID)
}

// RefreshPhotos replaces the photos of a pin with a new page and returns them.
func (a *TouristApp) RefreshPhotos(ctx context.Context, pinID string) ([]*model.Photo, error) {
	var photos []*model.Photo
	err := a.mutate(ctx, pinID, func() error {
		if err := a.sync.Refresh(ctx, pinID); err != nil {
			return err
		}
		var err error
		photos, err = a.sync.Photos(ctx, pinID)
		return err
	})
	return photos, err
}

// DeletePhoto removes a single photo.
func (a *TouristApp) DeletePhoto(ctx context.Context, photoID string) error {
	return a.mutate(ctx, photoID, func() error {
		return a.sync.DeletePhoto(ctx, photoID)
	})
}

// HydratePhotos opens the album of a pin, displays every item, and waits
// until each one is either hydrated or failed. It returns the final items.
func (a *TouristApp) HydratePhotos(ctx context.Context, pinID string) ([]tourist.AlbumItem, error) {
	var items []tourist.AlbumItem
	err := a.mutate(ctx, pinID, func() error {
		var err error
		items, err = a.hydrateAlbum(ctx, pinID)
		return err
	})
	return items, err
}

func (a *TouristApp) hydrateAlbum(ctx context.Context, pinID string) ([]tourist.AlbumItem, error) {
	view := newSettleView()
	album, err := tourist.OpenAlbum(ctx, a.sync, pinID, view, a.albumOpts)
	if err != nil {
		return nil, err
	}
	defer album.Close()

	n, err := album.Len(ctx)
	if err != nil {
		return nil, err
	}
	for i := 0; i < n; i++ {
		if err := album.Display(ctx, i); err != nil {
			return nil, err
		}
	}

	for {
		items, err := album.Items(ctx)
		if err != nil {
			return nil, err
		}
		if settled(items) {
			return items, nil
		}
		select {
		case <-view.changed:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func settled(items []tourist.AlbumItem) bool {
	for _, it := range items {
		if it.State == tourist.PhotoPlaceholder || it.State == tourist.PhotoHydrating {
			return false
		}
	}
	return true
}

// settleView signals every render without blocking the loop.
type settleView struct {
	changed chan struct{}
}

func newSettleView() *settleView {
	return &settleView{changed: make(chan struct{}, 1)}
}

func (v *settleView) Render(tourist.AlbumUpdate) {
	select {
	case v.changed <- struct{}{}:
	default:
	}
}

// ExportPhotos writes the image bytes of each hydrated photo of a pin to
// dir/<photoID>.jpg and returns the number of files written.
func (a *TouristApp) ExportPhotos(ctx context.Context, pinID, dir string) (int, error) {
	photos, err := a.sync.Photos(ctx, pinID)
	if err != nil {
		return 0, err
	}
	if err := a.fs.MkdirAll(dir, 0755); err != nil {
		return 0, fmt.Errorf("creating export directory: %w", err)
	}

	n := 0
	for _, p := range photos {
		if !p.Hydrated() {
			continue
		}
		path := filepath.Join(dir, p.ID+".jpg")
		if err := afero.WriteFile(a.fs, path, p.ImageBytes, 0644); err != nil {
			return n, fmt.Errorf("writing %s: %w", path, err)
		}
		n++
	}
	a.logger.Info("photos exported", "pin", pinID, "dir", dir, "count", n)
	return n, nil
}

// Region returns the last saved map region, if any.
func (a *TouristApp) Region() (model.Region, bool, error) {
	return a.prefs.LoadRegion()
}

// SetRegion saves the map region for the next launch.
func (a *TouristApp) SetRegion(region model.Region) error {
	return a.prefs.SaveRegion(region)
}

// History returns the most recent operations, newest first.
func (a *TouristApp) History(ctx context.Context, limit int) ([]*model.Operation, error) {
	var ops []*model.Operation
	err := a.loop.Do(ctx, func() error {
		var err error
		ops, err = a.db.ListOperations(limit)
		return err
	})
	return ops, err
}

// Close finalizes the operation and closes all resources.
// For persisted operations: finishes the operation record, snapshots the DB,
// encrypts the snapshot and uploads it to the vault.
// For non-persisted operations: just closes the database.
func (a *TouristApp) Close() error {
	var errs []error

	a.sync.Wait()
	a.loop.Close()

	if a.op.Persisted() {
		if err := a.db.FinishOperation(a.op.ID, a.op.Status); err != nil {
			errs = append(errs, fmt.Errorf("finishing operation: %w", err))
		}

		var snapshotPath string
		if a.vault != nil {
			path, err := a.snapshot()
			if err != nil {
				errs = append(errs, err)
			} else {
				snapshotPath = path
				defer os.Remove(path)
			}
		}

		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}

		// Upload DB snapshot to vault with version = operation ID
		if snapshotPath != "" {
			if err := a.upload(snapshotPath, a.op.ID); err != nil {
				errs = append(errs, err)
			}
		}
	} else {
		if err := a.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing database: %w", err))
		}
	}

	if a.logFile != nil {
		a.logFile.Close()
	}

	return errors.Join(errs...)
}

// snapshot copies the database to a new temp file and returns its path.
func (a *TouristApp) snapshot() (string, error) {
	tmpFile, err := os.CreateTemp("", "tourist-db-snapshot-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for db snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()

	if err := a.db.BackupTo(tmpPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("snapshotting database: %w", err)
	}
	return tmpPath, nil
}

// upload encrypts the snapshot at path and stores it in the vault.
func (a *TouristApp) upload(path string, version int64) error {
	if !a.encryptor.IsConfigured() {
		return fmt.Errorf("encryption keys are not set up: run 'tourist config init'")
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening db snapshot: %w", err)
	}
	defer src.Close()

	enc, err := os.CreateTemp("", "tourist-db-snapshot-*.age")
	if err != nil {
		return fmt.Errorf("creating temp file for encrypted snapshot: %w", err)
	}
	defer os.Remove(enc.Name())
	defer enc.Close()

	if err := a.encryptor.Encrypt(src, enc); err != nil {
		return fmt.Errorf("encrypting db snapshot: %w", err)
	}
	size, err := enc.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("sizing encrypted snapshot: %w", err)
	}
	if _, err := enc.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding encrypted snapshot: %w", err)
	}

	if err := a.vault.PutMetadata(a.cfg.HostID, snapshotName, enc, size, version); err != nil {
		return fmt.Errorf("uploading snapshot to vault: %w", err)
	}
	a.logger.Info("snapshot uploaded", "version", version, "bytes", size)
	return nil
}

// Restore replaces the local database with the latest snapshot in the first
// vault. An existing database is only replaced when force is set.
// It returns the version of the restored snapshot.
func Restore(ctx context.Context, cfg *config.Config, passphrase string, force bool, opts ...Option) (int64, error) {
	o := applyOptions(opts)

	if cfg.Database.Type != "sqlite" {
		return 0, fmt.Errorf("restore requires a sqlite database, got %q", cfg.Database.Type)
	}
	v, err := openVault(ctx, o, cfg)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("no vaults configured")
	}

	version, err := v.GetMetadataVersion(cfg.HostID, snapshotName)
	if err != nil {
		return 0, fmt.Errorf("checking snapshot version: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("no database snapshot for host %s in vault", cfg.HostID)
	}

	dbPath := database.DatabasePath(cfg.Database, cfg.HostID)
	if _, err := os.Stat(dbPath); err == nil && !force {
		return 0, fmt.Errorf("database already exists at %s: use --force to replace it", dbPath)
	}

	enc := o.encryptor
	if enc == nil {
		enc, err = encryption.NewEncryptorFromConfig(o.fs, cfg.Encryption)
		if err != nil {
			return 0, fmt.Errorf("creating encryptor: %w", err)
		}
	}
	dc, err := enc.Unlock(passphrase)
	if err != nil {
		return 0, fmt.Errorf("unlocking private key: %w", err)
	}

	if err := os.MkdirAll(cfg.Database.DataDir, 0755); err != nil {
		return 0, fmt.Errorf("creating data directory: %w", err)
	}
	restored, err := fetchSnapshot(v, dc, cfg.HostID, cfg.Database.DataDir)
	if err != nil {
		return 0, err
	}
	defer os.Remove(restored)

	if err := checkSnapshot(restored, version); err != nil {
		return 0, err
	}
	if err := os.Rename(restored, dbPath); err != nil {
		return 0, fmt.Errorf("replacing database: %w", err)
	}
	return version, nil
}

// fetchSnapshot downloads and decrypts the snapshot into a temp file in dir.
func fetchSnapshot(v tourist.Vault, dc tourist.DecryptionContext, hostID, dir string) (string, error) {
	encFile, err := os.CreateTemp(dir, ".restore-*.age")
	if err != nil {
		return "", fmt.Errorf("creating temp file for snapshot: %w", err)
	}
	defer os.Remove(encFile.Name())
	defer encFile.Close()

	if err := v.GetMetadata(hostID, snapshotName, encFile); err != nil {
		return "", fmt.Errorf("downloading snapshot: %w", err)
	}
	if _, err := encFile.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding snapshot: %w", err)
	}

	plain, err := os.CreateTemp(dir, ".restore-*.db")
	if err != nil {
		return "", fmt.Errorf("creating temp file for database: %w", err)
	}
	if err := dc.Decrypt(encFile, plain); err != nil {
		plain.Close()
		os.Remove(plain.Name())
		return "", fmt.Errorf("decrypting snapshot: %w", err)
	}
	if err := plain.Close(); err != nil {
		os.Remove(plain.Name())
		return "", fmt.Errorf("writing database: %w", err)
	}
	return plain.Name(), nil
}

// checkSnapshot opens a restored database and verifies its schema and that
// it ends with the operation the snapshot was taken after.
func checkSnapshot(path string, version int64) error {
	db, err := database.NewSQLiteDatabase(path)
	if err != nil {
		return fmt.Errorf("opening restored database: %w", err)
	}
	defer db.Close()

	if err := db.CheckMigrations(); err != nil {
		return fmt.Errorf("restored database schema: %w", err)
	}
	maxID, err := db.MaxOperationID()
	if err != nil {
		return fmt.Errorf("reading restored database: %w", err)
	}
	if maxID != version {
		return fmt.Errorf("restored database is at operation %d, snapshot version is %d", maxID, version)
	}
	return nil
}
