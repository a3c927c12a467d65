package tourist

import (
	"context"
	"errors"
	"fmt"

	"tourist-go/internal/model"
)

// ErrRefreshDisabled is returned by Album.Refresh while the refresh control is disabled.
var ErrRefreshDisabled = errors.New("refresh is disabled")

// AlbumState is the overall display state of an album.
type AlbumState int

const (
	AlbumLoading   AlbumState = iota // a photo page fetch is in flight
	AlbumEmpty                       // no photos and nothing loading
	AlbumPopulated                   // at least one photo
	AlbumFailed                      // no photos because the last fetch failed
)

func (s AlbumState) String() string {
	switch s {
	case AlbumLoading:
		return "loading"
	case AlbumEmpty:
		return "empty"
	case AlbumPopulated:
		return "populated"
	case AlbumFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PhotoState is the display state of a single album item.
type PhotoState int

const (
	PhotoPlaceholder PhotoState = iota
	PhotoHydrating
	PhotoHydrated
	PhotoFailed
)

func (s PhotoState) String() string {
	switch s {
	case PhotoPlaceholder:
		return "placeholder"
	case PhotoHydrating:
		return "hydrating"
	case PhotoHydrated:
		return "hydrated"
	case PhotoFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// UnlockPolicy decides when the refresh control is re-enabled after a fetch.
type UnlockPolicy int

const (
	// UnlockOnHydrated waits until no item is waiting for or downloading its image.
	UnlockOnHydrated UnlockPolicy = iota
	// UnlockOnPopulated re-enables as soon as the photo records are stored.
	UnlockOnPopulated
)

// AlbumOptions configures an Album.
type AlbumOptions struct {
	Unlock UnlockPolicy
}

// AlbumItem is one displayed photo.
type AlbumItem struct {
	Photo *model.Photo
	State PhotoState
	Err   error // set when State is PhotoFailed
}

// AlbumUpdate is one atomic update for the view.
//
// If Reset is set the view should redisplay Items entirely. Otherwise it
// applies Changes (deletes, then inserts, then updates) and then reloads the
// positions in Reloads. Items is the album contents after the update.
type AlbumUpdate struct {
	Reset          bool
	Changes        ChangeSet
	Reloads        []int
	Items          []AlbumItem
	State          AlbumState
	Err            error
	RefreshEnabled bool
}

// AlbumView receives album updates. Render is called on the loop and must not
// call back into the Album or Synchronizer synchronously.
type AlbumView interface {
	Render(update AlbumUpdate)
}

// AlbumViewFunc adapts a function to AlbumView.
type AlbumViewFunc func(AlbumUpdate)

func (f AlbumViewFunc) Render(u AlbumUpdate) { f(u) }

// Album observes the photos of one pin and turns store changes into ordered
// view updates. It tracks per-photo hydration explicitly.
type Album struct {
	sync  *Synchronizer
	pinID string
	view  AlbumView
	opts  AlbumOptions

	// Owned by the loop.
	items          []AlbumItem
	sub            Subscription
	cancelWatch    func()
	fetching       bool
	fetchErr       error
	state          AlbumState
	refreshEnabled bool
	closed         bool
}

// OpenAlbum subscribes to the photos of pinID and renders the initial state.
func OpenAlbum(ctx context.Context, s *Synchronizer, pinID string, view AlbumView, opts AlbumOptions) (*Album, error) {
	a := &Album{
		sync:  s,
		pinID: pinID,
		view:  view,
		opts:  opts,
	}

	err := s.onLoop(ctx, func() error {
		if _, err := s.store.Pin(pinID); err != nil {
			return err
		}
		sub, err := s.store.Subscribe(PhotosForPin(pinID), a.onChange)
		if err != nil {
			return fmt.Errorf("subscribing to photos: %w", err)
		}
		a.sub = sub
		for _, e := range sub.Snapshot() {
			a.items = append(a.items, newAlbumItem(e.(*model.Photo)))
		}
		a.fetching = s.Fetching(pinID)
		a.cancelWatch = s.WatchFetch(pinID, a.onFetch)
		a.render(ChangeSet{}, nil, true)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

func newAlbumItem(p *model.Photo) AlbumItem {
	if p.Hydrated() {
		return AlbumItem{Photo: p, State: PhotoHydrated}
	}
	return AlbumItem{Photo: p, State: PhotoPlaceholder}
}

// onChange applies a store change batch. Runs on the loop.
func (a *Album) onChange(cs ChangeSet) {
	if a.closed {
		return
	}
	// A fetch releases its flag before the save that delivers its photos.
	a.fetching = a.sync.Fetching(a.pinID)
	for _, d := range cs.Deletes {
		a.items = append(a.items[:d.Position], a.items[d.Position+1:]...)
	}
	for _, ins := range cs.Inserts {
		a.items = append(a.items, AlbumItem{})
		copy(a.items[ins.Position+1:], a.items[ins.Position:])
		a.items[ins.Position] = newAlbumItem(ins.Item.(*model.Photo))
	}
	for _, u := range cs.Updates {
		it := &a.items[u.Position]
		it.Photo = u.Item.(*model.Photo)
		if it.Photo.Hydrated() {
			it.State = PhotoHydrated
			it.Err = nil
		}
	}
	a.render(cs, nil, false)
}

// onFetch tracks fetch progress for the pin. Runs on the loop.
func (a *Album) onFetch(st FetchStatus) {
	if a.closed {
		return
	}
	switch st.State {
	case FetchStarted:
		a.fetching = true
		a.fetchErr = nil
	case FetchSucceeded:
		a.fetching = false
		a.fetchErr = nil
	case FetchFailed:
		a.fetching = false
		a.fetchErr = st.Err
	}
	a.render(ChangeSet{}, nil, false)
}

// onHydrated records the outcome of a download started by Display. Runs on the loop.
func (a *Album) onHydrated(photoID string, err error) {
	if a.closed {
		return
	}
	i := a.indexOf(photoID)
	if i < 0 {
		return
	}
	it := &a.items[i]
	prev := it.State
	switch {
	case err != nil:
		it.State = PhotoFailed
		it.Err = err
	case it.Photo.Hydrated():
		it.State = PhotoHydrated
		it.Err = nil
	default:
		it.State = PhotoPlaceholder
	}
	if it.State != prev {
		a.render(ChangeSet{}, []int{i}, false)
	}
}

func (a *Album) indexOf(photoID string) int {
	for i := range a.items {
		if a.items[i].Photo.ID == photoID {
			return i
		}
	}
	return -1
}

func (a *Album) computeState() AlbumState {
	switch {
	case a.fetching:
		return AlbumLoading
	case len(a.items) > 0:
		return AlbumPopulated
	case a.fetchErr != nil:
		return AlbumFailed
	default:
		return AlbumEmpty
	}
}

func (a *Album) computeRefreshEnabled() bool {
	if a.fetching {
		return false
	}
	if a.opts.Unlock == UnlockOnPopulated {
		return true
	}
	for _, it := range a.items {
		if it.State == PhotoPlaceholder || it.State == PhotoHydrating {
			return false
		}
	}
	return true
}

// render delivers one update, skipping it when nothing visible changed.
func (a *Album) render(cs ChangeSet, reloads []int, reset bool) {
	state := a.computeState()
	enabled := a.computeRefreshEnabled()
	if !reset && cs.Empty() && len(reloads) == 0 && state == a.state && enabled == a.refreshEnabled {
		return
	}
	a.state = state
	a.refreshEnabled = enabled

	var err error
	if state == AlbumFailed {
		err = a.fetchErr
	}
	a.view.Render(AlbumUpdate{
		Reset:          reset,
		Changes:        cs,
		Reloads:        reloads,
		Items:          a.snapshot(),
		State:          state,
		Err:            err,
		RefreshEnabled: enabled,
	})
}

func (a *Album) snapshot() []AlbumItem {
	out := make([]AlbumItem, len(a.items))
	copy(out, a.items)
	return out
}

// Display is called when item i becomes visible. An item without image bytes
// starts downloading; a failed item is retried.
func (a *Album) Display(ctx context.Context, i int) error {
	return a.sync.onLoop(ctx, func() error {
		if a.closed {
			return nil
		}
		if i < 0 || i >= len(a.items) {
			return fmt.Errorf("album index %d out of range [0, %d)", i, len(a.items))
		}
		it := &a.items[i]
		if it.State == PhotoHydrated || it.State == PhotoHydrating {
			return nil
		}
		it.State = PhotoHydrating
		it.Err = nil
		id := it.Photo.ID
		a.render(ChangeSet{}, []int{i}, false)

		a.sync.HydrateAsync(id, func(err error) { a.onHydrated(id, err) })
		return nil
	})
}

// Refresh replaces the album contents with a new page of photos.
// It returns ErrRefreshDisabled while the refresh control is disabled.
func (a *Album) Refresh(ctx context.Context) error {
	err := a.sync.onLoop(ctx, func() error {
		if !a.refreshEnabled {
			return ErrRefreshDisabled
		}
		return nil
	})
	if err != nil {
		return err
	}
	return a.sync.Refresh(ctx, a.pinID)
}

// DeleteAt deletes the photo at index i.
func (a *Album) DeleteAt(ctx context.Context, i int) error {
	return a.sync.onLoop(ctx, func() error {
		if i < 0 || i >= len(a.items) {
			return fmt.Errorf("album index %d out of range [0, %d)", i, len(a.items))
		}
		return a.sync.deletePhoto(a.items[i].Photo.ID)
	})
}

// Len returns the number of photos in the album.
func (a *Album) Len(ctx context.Context) (int, error) {
	var n int
	err := a.sync.onLoop(ctx, func() error {
		n = len(a.items)
		return nil
	})
	return n, err
}

// Item returns the photo at index i.
func (a *Album) Item(ctx context.Context, i int) (AlbumItem, error) {
	var item AlbumItem
	err := a.sync.onLoop(ctx, func() error {
		if i < 0 || i >= len(a.items) {
			return fmt.Errorf("album index %d out of range [0, %d)", i, len(a.items))
		}
		item = a.items[i]
		return nil
	})
	return item, err
}

// Items returns a copy of the album contents.
func (a *Album) Items(ctx context.Context) ([]AlbumItem, error) {
	var items []AlbumItem
	err := a.sync.onLoop(ctx, func() error {
		items = a.snapshot()
		return nil
	})
	return items, err
}

// State returns the album state and whether refresh is enabled.
func (a *Album) State(ctx context.Context) (AlbumState, bool, error) {
	var state AlbumState
	var enabled bool
	err := a.sync.onLoop(ctx, func() error {
		state = a.state
		enabled = a.refreshEnabled
		return nil
	})
	return state, enabled, err
}

// Close stops delivering updates. Downloads already started still store
// their results.
func (a *Album) Close() error {
	return a.sync.onLoop(context.Background(), func() error {
		if a.closed {
			return nil
		}
		a.closed = true
		a.sub.Cancel()
		a.cancelWatch()
		return nil
	})
}
