package testutil

import (
	"context"
	"fmt"
	"sync"

	"tourist-go/internal/model"
	"tourist-go/internal/tourist"
)

// SearchRequest records one call to StubPhotoService.SearchPhotos.
type SearchRequest struct {
	Latitude  float64
	Longitude float64
	Page      int
}

// StubPhotoService serves generated search results. Each page holds PerPage
// descriptors with IDs "<page>-<n>". A request with no page gets page 1.
type StubPhotoService struct {
	mu       sync.Mutex
	pages    int
	perPage  int
	errs     []error
	requests []SearchRequest
	gate     chan struct{}
	started  chan SearchRequest
}

// NewStubPhotoService creates a service reporting pages total pages of perPage photos.
func NewStubPhotoService(pages, perPage int) *StubPhotoService {
	return &StubPhotoService{
		pages:   pages,
		perPage: perPage,
		started: make(chan SearchRequest, 64),
	}
}

// FailNext queues errors returned by the next searches, in order.
func (s *StubPhotoService) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs = append(s.errs, errs...)
}

// Block makes searches wait until the returned release function is called.
func (s *StubPhotoService) Block() (release func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	gate := make(chan struct{})
	s.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gate == gate {
				s.gate = nil
			}
			s.mu.Unlock()
			close(gate)
		})
	}
}

// Started receives every request as it arrives, before any blocking.
func (s *StubPhotoService) Started() <-chan SearchRequest {
	return s.started
}

// Requests returns all search requests received so far.
func (s *StubPhotoService) Requests() []SearchRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SearchRequest(nil), s.requests...)
}

func (s *StubPhotoService) SearchPhotos(ctx context.Context, latitude, longitude float64, page int) (*model.PhotoPage, error) {
	req := SearchRequest{Latitude: latitude, Longitude: longitude, Page: page}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	gate := s.gate
	s.mu.Unlock()

	select {
	case s.started <- req:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, tourist.NetworkError("stub", ctx.Err())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.errs) > 0 {
		err := s.errs[0]
		s.errs = s.errs[1:]
		return nil, err
	}

	if page <= 0 {
		page = 1
	}
	result := &model.PhotoPage{
		Page:    page,
		Pages:   s.pages,
		PerPage: s.perPage,
		Total:   s.pages * s.perPage,
	}
	for i := 1; i <= s.perPage; i++ {
		result.Photos = append(result.Photos, model.PhotoDescriptor{
			ID:     fmt.Sprintf("%d-%d", page, i),
			Secret: "secret",
			Server: "server",
		})
	}
	return result, nil
}

func (s *StubPhotoService) ImageURL(d model.PhotoDescriptor) string {
	return fmt.Sprintf("https://images.test/%s/%s_%s.jpg", d.Server, d.ID, d.Secret)
}

// StubImageFetcher returns "image:<url>" as the bytes of every image.
type StubImageFetcher struct {
	mu       sync.Mutex
	failures map[string][]error
	calls    map[string]int
	gate     chan struct{}
	started  chan string
}

func NewStubImageFetcher() *StubImageFetcher {
	return &StubImageFetcher{
		failures: make(map[string][]error),
		calls:    make(map[string]int),
		started:  make(chan string, 256),
	}
}

// ImageBytes returns what Fetch returns for url.
func ImageBytes(url string) []byte {
	return []byte("image:" + url)
}

// FailNext queues errors for the next fetches of url.
func (f *StubImageFetcher) FailNext(url string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[url] = append(f.failures[url], errs...)
}

// Block makes fetches wait until the returned release function is called.
func (f *StubImageFetcher) Block() (release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	gate := make(chan struct{})
	f.gate = gate
	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Started receives the url of every fetch as it arrives.
func (f *StubImageFetcher) Started() <-chan string {
	return f.started
}

// Calls returns how many times url was fetched.
func (f *StubImageFetcher) Calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

// TotalCalls returns the number of fetches of any url.
func (f *StubImageFetcher) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *StubImageFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	f.mu.Lock()
	f.calls[url]++
	gate := f.gate
	f.mu.Unlock()

	select {
	case f.started <- url:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, tourist.NetworkError(url, ctx.Err())
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if errs := f.failures[url]; len(errs) > 0 {
		f.failures[url] = errs[1:]
		return nil, errs[0]
	}
	return ImageBytes(url), nil
}

var (
	_ tourist.PhotoService = (*StubPhotoService)(nil)
	_ tourist.ImageFetcher = (*StubImageFetcher)(nil)
)
