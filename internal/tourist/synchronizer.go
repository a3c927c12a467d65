package tourist

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/singleflight"

	"tourist-go/internal/model"
)

// FetchState is the progress of a photo page fetch for one pin.
type FetchState int

const (
	FetchStarted FetchState = iota
	FetchSucceeded
	FetchFailed
)

// FetchStatus is delivered to fetch watchers on the loop.
type FetchStatus struct {
	PinID string
	State FetchState
	Err   error
}

// Synchronizer keeps pins and their photos in the store in sync with the
// remote photo service and downloads photo images on demand.
//
// Remote calls run on the caller's goroutine (or a worker goroutine for
// HydrateAsync). Store access always runs on the loop.
type Synchronizer struct {
	loop     *Loop
	store    Store
	photos   PhotoService
	images   ImageFetcher
	logger   Logger
	rng      Random
	validate *validator.Validate

	// Owned by the loop.
	fetching    map[string]bool
	watchers    map[string]map[int]func(FetchStatus)
	nextWatcher int

	hydrations singleflight.Group
	workers    sync.WaitGroup
}

// NewSynchronizer creates a Synchronizer. store must be owned by loop.
func NewSynchronizer(loop *Loop, store Store, photos PhotoService, images ImageFetcher, logger Logger, rng Random) *Synchronizer {
	return &Synchronizer{
		loop:     loop,
		store:    store,
		photos:   photos,
		images:   images,
		logger:   logger,
		rng:      rng,
		validate: validator.New(),
		fetching: make(map[string]bool),
		watchers: make(map[string]map[int]func(FetchStatus)),
	}
}

// onLoop runs fn on the loop unless ctx is already done.
// Once queued, fn is waited for even if ctx ends, so loop-owned state stays
// consistent with what the caller observes.
func (s *Synchronizer) onLoop(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.loop.Do(context.WithoutCancel(ctx), fn)
}

// AddPin validates the coordinates and saves a new pin with no photos.
func (s *Synchronizer) AddPin(ctx context.Context, latitude, longitude float64, name string) (*model.Pin, error) {
	if err := s.validate.Struct(model.Coordinate{Latitude: latitude, Longitude: longitude}); err != nil {
		return nil, fmt.Errorf("invalid coordinate (%v, %v): %w", latitude, longitude, err)
	}

	var pin *model.Pin
	err := s.onLoop(ctx, func() error {
		p := s.store.NewPin(latitude, longitude, name)
		if err := s.store.Save(); err != nil {
			s.store.Discard()
			return fmt.Errorf("saving pin: %w", err)
		}
		pin = p
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pin added", "pin", pin.ID, "latitude", latitude, "longitude", longitude)
	return pin, nil
}

// DropPin adds a pin and fetches its first photo page.
// The returned pin is non-nil whenever the pin was saved, even if the photo
// fetch then failed; in that case the error is the fetch error.
func (s *Synchronizer) DropPin(ctx context.Context, latitude, longitude float64, name string) (*model.Pin, error) {
	pin, err := s.AddPin(ctx, latitude, longitude, name)
	if err != nil {
		return nil, err
	}
	if err := s.InitialFetch(ctx, pin.ID); err != nil {
		return pin, err
	}
	// The fetch stored page and pages on the store's copy.
	return s.Pin(ctx, pin.ID)
}

// InitialFetch requests the default photo page for a pin and stores one
// unhydrated photo per result. On failure the pin keeps page 0 of 0 and no
// photos; Refresh can be used to retry.
func (s *Synchronizer) InitialFetch(ctx context.Context, pinID string) error {
	var pin *model.Pin
	err := s.onLoop(ctx, func() error {
		p, err := s.store.Pin(pinID)
		if err != nil {
			return err
		}
		if err := s.beginFetch(pinID); err != nil {
			return err
		}
		pin = p
		return nil
	})
	if err != nil {
		return err
	}

	return s.populate(ctx, pin, 0)
}

// Refresh replaces all photos of a pin with a randomly chosen page of results.
// Only one fetch per pin runs at a time; a concurrent request gets ErrFetchInFlight.
func (s *Synchronizer) Refresh(ctx context.Context, pinID string) error {
	var pin *model.Pin
	err := s.onLoop(ctx, func() error {
		p, err := s.store.Pin(pinID)
		if err != nil {
			return err
		}
		if err := s.beginFetch(pinID); err != nil {
			return err
		}

		photos, err := s.store.QueryPhotos(PhotosForPin(pinID))
		if err != nil {
			s.endFetch(pinID, err)
			return fmt.Errorf("loading photos: %w", err)
		}
		for _, photo := range photos {
			s.store.Delete(photo)
		}
		if err := s.store.Save(); err != nil {
			s.store.Discard()
			s.endFetch(pinID, err)
			return fmt.Errorf("clearing photos: %w", err)
		}

		pin = p
		return nil
	})
	if err != nil {
		return err
	}

	page := RefreshPage(int(pin.Page), int(pin.Pages), s.rng)
	s.logger.Info("refreshing photo collection", "pin", pinID, "page", page, "pages", pin.Pages)
	return s.populate(ctx, pin, page)
}

// populate runs the remote search for a pin whose fetch flag is held, then
// stores the results and releases the flag.
func (s *Synchronizer) populate(ctx context.Context, pin *model.Pin, page int) error {
	result, err := s.photos.SearchPhotos(ctx, pin.Latitude, pin.Longitude, page)
	if err != nil {
		s.logger.Warn("photo search failed", "pin", pin.ID, "page", page, "error", err)
		// Do only fails once the loop has closed, and then no one is watching the flag.
		_ = s.loop.Do(context.WithoutCancel(ctx), func() error {
			s.endFetch(pin.ID, err)
			return nil
		})
		return fmt.Errorf("searching photos: %w", err)
	}

	return s.loop.Do(context.WithoutCancel(ctx), func() error {
		current, err := s.store.Pin(pin.ID)
		if err != nil {
			s.endFetch(pin.ID, err)
			return err
		}

		current.Page = clampInt16(result.Page)
		current.Pages = clampInt16(result.Pages)
		s.store.Update(current)
		for _, d := range result.Photos {
			s.store.NewPhoto(current.ID, s.photos.ImageURL(d))
		}

		// Release the flag before saving so subscribers see the settled state.
		delete(s.fetching, pin.ID)
		if err := s.store.Save(); err != nil {
			s.store.Discard()
			s.notifyFetch(FetchStatus{PinID: pin.ID, State: FetchFailed, Err: err})
			return fmt.Errorf("saving photos: %w", err)
		}
		s.notifyFetch(FetchStatus{PinID: pin.ID, State: FetchSucceeded})

		s.logger.Info("photo page stored", "pin", pin.ID, "page", result.Page, "pages", result.Pages, "count", len(result.Photos))
		return nil
	})
}

// Hydrate downloads and stores the image of a photo that has none.
// Concurrent calls for the same photo share one download and one write.
// A failed download leaves the photo unhydrated; calling Hydrate again retries.
// Cancelling ctx returns early but does not abort a download other callers share.
func (s *Synchronizer) Hydrate(ctx context.Context, photoID string) error {
	ch := s.hydrations.DoChan(photoID, func() (any, error) {
		return nil, s.hydrate(context.WithoutCancel(ctx), photoID)
	})
	select {
	case r := <-ch:
		return r.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Synchronizer) hydrate(ctx context.Context, photoID string) error {
	var url string
	var hydrated bool
	err := s.onLoop(ctx, func() error {
		p, err := s.store.Photo(photoID)
		if err != nil {
			return err
		}
		url = p.RemoteImageURL
		hydrated = p.Hydrated()
		return nil
	})
	if err != nil {
		return err
	}
	if hydrated {
		return nil
	}

	data, err := s.images.Fetch(ctx, url)
	if err != nil {
		s.logger.Warn("image download failed", "photo", photoID, "url", url, "error", err)
		return fmt.Errorf("downloading image: %w", err)
	}

	// The result is stored even if the requesting view has gone away.
	return s.loop.Do(context.WithoutCancel(ctx), func() error {
		p, err := s.store.Photo(photoID)
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("photo deleted before image was stored", "photo", photoID)
			return nil
		}
		if err != nil {
			return err
		}
		if p.Hydrated() {
			return nil
		}

		p.ImageBytes = data
		s.store.Update(p)
		if err := s.store.Save(); err != nil {
			s.store.Discard()
			return fmt.Errorf("saving image: %w", err)
		}
		s.logger.Debug("photo hydrated", "photo", photoID, "bytes", len(data))
		return nil
	})
}

// HydrateAsync runs Hydrate on a new worker goroutine. done, if not nil,
// is posted to the loop with the result. It is dropped if the loop has closed.
func (s *Synchronizer) HydrateAsync(photoID string, done func(error)) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		err := s.Hydrate(context.Background(), photoID)
		if done != nil {
			s.loop.Post(func() { done(err) })
		}
	}()
}

// Wait blocks until all HydrateAsync workers have finished.
func (s *Synchronizer) Wait() {
	s.workers.Wait()
}

// DeletePhoto removes a single photo.
func (s *Synchronizer) DeletePhoto(ctx context.Context, photoID string) error {
	return s.onLoop(ctx, func() error {
		return s.deletePhoto(photoID)
	})
}

func (s *Synchronizer) deletePhoto(photoID string) error {
	p, err := s.store.Photo(photoID)
	if err != nil {
		return err
	}
	s.store.Delete(p)
	if err := s.store.Save(); err != nil {
		s.store.Discard()
		return fmt.Errorf("deleting photo: %w", err)
	}
	s.logger.Info("photo deleted", "photo", photoID)
	return nil
}

// DeletePin removes a pin and all of its photos.
func (s *Synchronizer) DeletePin(ctx context.Context, pinID string) error {
	return s.onLoop(ctx, func() error {
		p, err := s.store.Pin(pinID)
		if err != nil {
			return err
		}
		s.store.Delete(p)
		if err := s.store.Save(); err != nil {
			s.store.Discard()
			return fmt.Errorf("deleting pin: %w", err)
		}
		s.logger.Info("pin deleted", "pin", pinID)
		return nil
	})
}

// Pin returns a single pin.
func (s *Synchronizer) Pin(ctx context.Context, pinID string) (*model.Pin, error) {
	var pin *model.Pin
	err := s.onLoop(ctx, func() error {
		p, err := s.store.Pin(pinID)
		pin = p
		return err
	})
	return pin, err
}

// Pins returns all pins, newest first.
func (s *Synchronizer) Pins(ctx context.Context) ([]*model.Pin, error) {
	var pins []*model.Pin
	err := s.onLoop(ctx, func() error {
		var err error
		pins, err = s.store.QueryPins(AllPins())
		return err
	})
	return pins, err
}

// Photos returns the photos of a pin, oldest first.
func (s *Synchronizer) Photos(ctx context.Context, pinID string) ([]*model.Photo, error) {
	var photos []*model.Photo
	err := s.onLoop(ctx, func() error {
		var err error
		photos, err = s.store.QueryPhotos(PhotosForPin(pinID))
		return err
	})
	return photos, err
}

// Fetching reports whether a photo page fetch is running for the pin.
// It must be called on the loop.
func (s *Synchronizer) Fetching(pinID string) bool {
	return s.fetching[pinID]
}

// WatchFetch registers fn for fetch progress of a pin and returns a function
// that unregisters it. Both must be called on the loop; fn runs on the loop.
func (s *Synchronizer) WatchFetch(pinID string, fn func(FetchStatus)) (cancel func()) {
	id := s.nextWatcher
	s.nextWatcher++
	if s.watchers[pinID] == nil {
		s.watchers[pinID] = make(map[int]func(FetchStatus))
	}
	s.watchers[pinID][id] = fn
	return func() {
		delete(s.watchers[pinID], id)
		if len(s.watchers[pinID]) == 0 {
			delete(s.watchers, pinID)
		}
	}
}

func (s *Synchronizer) beginFetch(pinID string) error {
	if s.fetching[pinID] {
		return ErrFetchInFlight
	}
	s.fetching[pinID] = true
	s.notifyFetch(FetchStatus{PinID: pinID, State: FetchStarted})
	return nil
}

func (s *Synchronizer) endFetch(pinID string, err error) {
	delete(s.fetching, pinID)
	s.notifyFetch(FetchStatus{PinID: pinID, State: FetchFailed, Err: err})
}

func (s *Synchronizer) notifyFetch(st FetchStatus) {
	for _, fn := range s.watchers[st.PinID] {
		fn(st)
	}
}

func clampInt16(v int) int16 {
	switch {
	case v > math.MaxInt16:
		return math.MaxInt16
	case v < 0:
		return 0
	default:
		return int16(v)
	}
}
