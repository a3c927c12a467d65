package tourist_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"tourist-go/internal/model"
	"tourist-go/internal/testutil"
	"tourist-go/internal/tourist"
)

func drain[T any](ch <-chan T) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func waitFor[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for remote call")
		panic("unreachable")
	}
}

func dropPin(t *testing.T, env *testutil.Env) *model.Pin {
	t.Helper()
	pin, err := env.Sync.DropPin(context.Background(), 10, 20, "")
	if err != nil {
		t.Fatalf("DropPin() error = %v", err)
	}
	return pin
}

func photos(t *testing.T, env *testutil.Env, pinID string) []*model.Photo {
	t.Helper()
	ps, err := env.Sync.Photos(context.Background(), pinID)
	if err != nil {
		t.Fatalf("Photos() error = %v", err)
	}
	return ps
}

func TestDropPin_StoresFirstPage(t *testing.T) {
	env := testutil.NewEnv(t)

	pin := dropPin(t, env)
	if pin.Page != 1 || pin.Pages != 5 {
		t.Errorf("returned pin page/pages = %d/%d, want 1/5", pin.Page, pin.Pages)
	}

	got, err := env.Sync.Pin(context.Background(), pin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Page != 1 || got.Pages != 5 {
		t.Errorf("stored pin page/pages = %d/%d, want 1/5", got.Page, got.Pages)
	}

	ps := photos(t, env, pin.ID)
	if len(ps) != 3 {
		t.Fatalf("got %d photos, want 3", len(ps))
	}
	for i, p := range ps {
		if p.Hydrated() {
			t.Errorf("photo %d hydrated after fetch", i)
		}
		if p.PinID != pin.ID {
			t.Errorf("photo %d belongs to %s", i, p.PinID)
		}
	}
	if ps[0].RemoteImageURL != "https://images.test/server/1-1_secret.jpg" {
		t.Errorf("first photo url = %s", ps[0].RemoteImageURL)
	}

	reqs := env.Photos.Requests()
	if len(reqs) != 1 || reqs[0].Page != 0 || reqs[0].Latitude != 10 || reqs[0].Longitude != 20 {
		t.Errorf("search requests = %+v, want one default-page search at (10, 20)", reqs)
	}
}

func TestAddPin_InvalidCoordinate(t *testing.T) {
	env := testutil.NewEnv(t)

	for _, c := range [][2]float64{{91, 0}, {-91, 0}, {0, 181}, {0, -180.5}} {
		if _, err := env.Sync.AddPin(context.Background(), c[0], c[1], ""); err == nil {
			t.Errorf("AddPin(%v, %v) succeeded", c[0], c[1])
		}
	}
	pins, err := env.Sync.Pins(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(pins) != 0 {
		t.Errorf("invalid pins stored: %d", len(pins))
	}
}

func TestDropPin_FetchFailureKeepsEmptyPin(t *testing.T) {
	env := testutil.NewEnv(t)
	env.Photos.FailNext(tourist.NetworkError("https://api.test", errors.New("offline")))

	pin, err := env.Sync.DropPin(context.Background(), 10, 20, "")
	if !errors.Is(err, tourist.ErrNetwork) {
		t.Fatalf("DropPin() error = %v, want network error", err)
	}
	if pin == nil {
		t.Fatal("DropPin() returned nil pin after saving it")
	}

	got, err := env.Sync.Pin(context.Background(), pin.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Page != 0 || got.Pages != 0 {
		t.Errorf("pin page/pages = %d/%d, want 0/0", got.Page, got.Pages)
	}
	if n := len(photos(t, env, pin.ID)); n != 0 {
		t.Errorf("got %d photos, want 0", n)
	}

	// Refresh is the retry path and requests page 1 for an unfetched pin.
	if err := env.Sync.Refresh(context.Background(), pin.ID); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	reqs := env.Photos.Requests()
	if last := reqs[len(reqs)-1]; last.Page != 1 {
		t.Errorf("retry requested page %d, want 1", last.Page)
	}
	if n := len(photos(t, env, pin.ID)); n != 3 {
		t.Errorf("got %d photos after retry, want 3", n)
	}
}

func TestRefresh_ReplacesCollection(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	before := photos(t, env, pin.ID)

	// Hydrate one so we can check the new set starts unhydrated.
	if err := env.Sync.Hydrate(context.Background(), before[0].ID); err != nil {
		t.Fatal(err)
	}

	if err := env.Sync.Refresh(context.Background(), pin.ID); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	after := photos(t, env, pin.ID)
	if len(after) != 3 {
		t.Fatalf("got %d photos after refresh, want 3", len(after))
	}
	old := make(map[string]bool)
	for _, p := range before {
		old[p.ID] = true
	}
	for _, p := range after {
		if old[p.ID] {
			t.Errorf("photo %s survived refresh", p.ID)
		}
		if p.Hydrated() {
			t.Errorf("photo %s hydrated after refresh", p.ID)
		}
	}
	for _, p := range before {
		if err := env.Sync.Hydrate(context.Background(), p.ID); !errors.Is(err, tourist.ErrNotFound) {
			t.Errorf("old photo %s still stored: %v", p.ID, err)
		}
	}
}

func TestRefresh_PageSelection(t *testing.T) {
	tests := []struct {
		name      string
		pages     int
		draw      int
		wantPage  int
		wantCalls []int
	}{
		{name: "single page", pages: 1, wantPage: 1},
		{name: "draw from range", pages: 5, draw: 3, wantPage: 4, wantCalls: []int{5}},
		{name: "highest page", pages: 5, draw: 4, wantPage: 5, wantCalls: []int{5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := testutil.NewEnv(t)
			stub := testutil.NewStubPhotoService(tt.pages, 2)
			rng := testutil.NewStubRandom(tt.draw)
			s := tourist.NewSynchronizer(env.Loop, env.Store, stub, env.Images, tourist.NewNopLogger(), rng)
			t.Cleanup(s.Wait)

			pin, err := s.DropPin(context.Background(), 1, 2, "")
			if err != nil {
				t.Fatal(err)
			}
			if err := s.Refresh(context.Background(), pin.ID); err != nil {
				t.Fatal(err)
			}

			reqs := stub.Requests()
			if got := reqs[len(reqs)-1].Page; got != tt.wantPage {
				t.Errorf("refresh requested page %d, want %d", got, tt.wantPage)
			}
			calls := rng.Calls()
			if len(calls) != len(tt.wantCalls) {
				t.Fatalf("IntN calls = %v, want %v", calls, tt.wantCalls)
			}
			for i := range calls {
				if calls[i] != tt.wantCalls[i] {
					t.Errorf("IntN calls = %v, want %v", calls, tt.wantCalls)
				}
			}

			got, err := s.Pin(context.Background(), pin.ID)
			if err != nil {
				t.Fatal(err)
			}
			if int(got.Page) != tt.wantPage || int(got.Pages) != tt.pages {
				t.Errorf("pin page/pages = %d/%d, want %d/%d", got.Page, got.Pages, tt.wantPage, tt.pages)
			}
		})
	}
}

func TestRefresh_InFlightRejected(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	drain(env.Photos.Started())

	release := env.Photos.Block()
	errc := make(chan error, 1)
	go func() { errc <- env.Sync.Refresh(context.Background(), pin.ID) }()
	waitFor(t, env.Photos.Started())

	if err := env.Sync.Refresh(context.Background(), pin.ID); !errors.Is(err, tourist.ErrFetchInFlight) {
		t.Errorf("concurrent Refresh() error = %v, want ErrFetchInFlight", err)
	}

	release()
	if err := <-errc; err != nil {
		t.Fatalf("first Refresh() error = %v", err)
	}
	if n := len(photos(t, env, pin.ID)); n != 3 {
		t.Errorf("got %d photos, want 3", n)
	}

	// The flag is released, so another refresh is allowed.
	if err := env.Sync.Refresh(context.Background(), pin.ID); err != nil {
		t.Errorf("Refresh() after completion error = %v", err)
	}
}

func TestRefresh_SearchFailureReleasesFlag(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)

	env.Photos.FailNext(tourist.DecodeError("https://api.test", errors.New("bad json")))
	if err := env.Sync.Refresh(context.Background(), pin.ID); !errors.Is(err, tourist.ErrDecode) {
		t.Fatalf("Refresh() error = %v, want decode error", err)
	}
	if n := len(photos(t, env, pin.ID)); n != 0 {
		t.Errorf("got %d photos after failed refresh, want 0", n)
	}
	if err := env.Sync.Refresh(context.Background(), pin.ID); err != nil {
		t.Errorf("Refresh() retry error = %v", err)
	}
}

func TestInitialFetch_SaveFailure(t *testing.T) {
	env := testutil.NewEnv(t)
	pin, err := env.Sync.AddPin(context.Background(), 10, 20, "")
	if err != nil {
		t.Fatal(err)
	}

	env.DB.FailNextApplies(1)
	if err := env.Sync.InitialFetch(context.Background(), pin.ID); !errors.Is(err, tourist.ErrPersistence) {
		t.Fatalf("InitialFetch() error = %v, want ErrPersistence", err)
	}
	if n := len(photos(t, env, pin.ID)); n != 0 {
		t.Errorf("got %d photos, want 0", n)
	}

	// Nothing is left pending and the fetch can run again.
	if err := env.Sync.InitialFetch(context.Background(), pin.ID); err != nil {
		t.Fatalf("InitialFetch() retry error = %v", err)
	}
	if n := len(photos(t, env, pin.ID)); n != 3 {
		t.Errorf("got %d photos, want 3", n)
	}
}

func TestInitialFetch_UnknownPin(t *testing.T) {
	env := testutil.NewEnv(t)
	if err := env.Sync.InitialFetch(context.Background(), "missing"); !errors.Is(err, tourist.ErrNotFound) {
		t.Errorf("InitialFetch() error = %v, want ErrNotFound", err)
	}
	if err := env.Sync.Refresh(context.Background(), "missing"); !errors.Is(err, tourist.ErrNotFound) {
		t.Errorf("Refresh() error = %v, want ErrNotFound", err)
	}
}

func TestHydrate_StoresImage(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	p := photos(t, env, pin.ID)[1]

	if err := env.Sync.Hydrate(context.Background(), p.ID); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	got := photos(t, env, pin.ID)[1]
	if string(got.ImageBytes) != string(testutil.ImageBytes(p.RemoteImageURL)) {
		t.Errorf("ImageBytes = %q", got.ImageBytes)
	}

	// Already hydrated: no second download.
	if err := env.Sync.Hydrate(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	if n := env.Images.Calls(p.RemoteImageURL); n != 1 {
		t.Errorf("image fetched %d times, want 1", n)
	}
}

func TestHydrate_ConcurrentCallsShareOneFetch(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	p := photos(t, env, pin.ID)[0]
	appliesBefore := env.DB.Applies()

	release := env.Images.Block()
	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = env.Sync.Hydrate(context.Background(), p.ID)
		}(i)
	}
	waitFor(t, env.Images.Started())
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("Hydrate() #%d error = %v", i, err)
		}
	}
	if n := env.Images.Calls(p.RemoteImageURL); n != 1 {
		t.Errorf("image fetched %d times, want 1", n)
	}
	if n := env.DB.Applies() - appliesBefore; n != 1 {
		t.Errorf("saved %d times, want 1", n)
	}
}

func TestHydrate_CancelledCallerDoesNotAbortSharedDownload(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	p := photos(t, env, pin.ID)[0]

	release := env.Images.Block()
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- env.Sync.Hydrate(ctx, p.ID) }()
	waitFor(t, env.Images.Started())

	second := make(chan error, 1)
	go func() { second <- env.Sync.Hydrate(context.Background(), p.ID) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	if err := waitFor(t, first); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Hydrate() error = %v, want context.Canceled", err)
	}

	release()
	if err := waitFor(t, second); err != nil {
		t.Fatalf("Hydrate() error = %v", err)
	}
	if n := env.Images.Calls(p.RemoteImageURL); n != 1 {
		t.Errorf("image fetched %d times, want 1", n)
	}
	got := photos(t, env, pin.ID)[0]
	if string(got.ImageBytes) != string(testutil.ImageBytes(p.RemoteImageURL)) {
		t.Errorf("image bytes = %q, want stored download", got.ImageBytes)
	}
}

func TestHydrate_FailureThenRetry(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	p := photos(t, env, pin.ID)[0]

	env.Images.FailNext(p.RemoteImageURL, tourist.NetworkError(p.RemoteImageURL, errors.New("timeout")))
	if err := env.Sync.Hydrate(context.Background(), p.ID); !errors.Is(err, tourist.ErrNetwork) {
		t.Fatalf("Hydrate() error = %v, want network error", err)
	}
	if photos(t, env, pin.ID)[0].Hydrated() {
		t.Fatal("photo hydrated after failed fetch")
	}

	if err := env.Sync.Hydrate(context.Background(), p.ID); err != nil {
		t.Fatalf("Hydrate() retry error = %v", err)
	}
	if !photos(t, env, pin.ID)[0].Hydrated() {
		t.Error("photo not hydrated after retry")
	}
	if n := env.Images.Calls(p.RemoteImageURL); n != 2 {
		t.Errorf("image fetched %d times, want 2", n)
	}
}

func TestHydrate_PhotoDeletedDuringFetch(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	p := photos(t, env, pin.ID)[0]

	release := env.Images.Block()
	errc := make(chan error, 1)
	go func() { errc <- env.Sync.Hydrate(context.Background(), p.ID) }()
	waitFor(t, env.Images.Started())

	if err := env.Sync.DeletePhoto(context.Background(), p.ID); err != nil {
		t.Fatal(err)
	}
	release()

	if err := <-errc; err != nil {
		t.Errorf("Hydrate() error = %v, want nil for deleted photo", err)
	}
	if n := len(photos(t, env, pin.ID)); n != 2 {
		t.Errorf("got %d photos, want 2", n)
	}
}

func TestHydrateAsync_ReportsOnLoop(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	p := photos(t, env, pin.ID)[2]

	done := make(chan error, 1)
	env.Sync.HydrateAsync(p.ID, func(err error) { done <- err })
	if err := waitFor(t, done); err != nil {
		t.Fatalf("HydrateAsync() error = %v", err)
	}
	if !photos(t, env, pin.ID)[2].Hydrated() {
		t.Error("photo not hydrated")
	}
}

func TestHydrate_OrderUnaffectedByCompletionOrder(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	ps := photos(t, env, pin.ID)

	for i := len(ps) - 1; i >= 0; i-- {
		if err := env.Sync.Hydrate(context.Background(), ps[i].ID); err != nil {
			t.Fatal(err)
		}
	}

	after := photos(t, env, pin.ID)
	for i := range ps {
		if after[i].ID != ps[i].ID {
			t.Errorf("position %d holds %s, want %s", i, after[i].ID, ps[i].ID)
		}
		if i > 0 && after[i].CreatedAt.Before(after[i-1].CreatedAt) {
			t.Errorf("photos not ordered by creation at %d", i)
		}
	}
}

func TestDeletePin_RemovesPhotos(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	ps := photos(t, env, pin.ID)

	if err := env.Sync.DeletePin(context.Background(), pin.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Sync.Pin(context.Background(), pin.ID); !errors.Is(err, tourist.ErrNotFound) {
		t.Errorf("Pin() error = %v, want ErrNotFound", err)
	}
	for _, p := range ps {
		if err := env.Sync.Hydrate(context.Background(), p.ID); !errors.Is(err, tourist.ErrNotFound) {
			t.Errorf("Hydrate(%s) error = %v, want ErrNotFound", p.ID, err)
		}
	}
	if err := env.Sync.DeletePin(context.Background(), pin.ID); !errors.Is(err, tourist.ErrNotFound) {
		t.Errorf("second DeletePin() error = %v, want ErrNotFound", err)
	}
}

func TestWatchFetch(t *testing.T) {
	env := testutil.NewEnv(t)
	pin, err := env.Sync.AddPin(context.Background(), 10, 20, "")
	if err != nil {
		t.Fatal(err)
	}

	var states []tourist.FetchState
	var cancel func()
	env.Loop.Do(context.Background(), func() error {
		cancel = env.Sync.WatchFetch(pin.ID, func(st tourist.FetchStatus) { states = append(states, st.State) })
		return nil
	})

	env.Photos.FailNext(tourist.NetworkError("x", errors.New("offline")))
	env.Sync.InitialFetch(context.Background(), pin.ID)
	env.Sync.InitialFetch(context.Background(), pin.ID)

	env.Loop.Do(context.Background(), func() error {
		cancel()
		return nil
	})
	env.Sync.Refresh(context.Background(), pin.ID)

	var got []tourist.FetchState
	env.Loop.Do(context.Background(), func() error {
		got = append(got, states...)
		return nil
	})
	want := []tourist.FetchState{tourist.FetchStarted, tourist.FetchFailed, tourist.FetchStarted, tourist.FetchSucceeded}
	if len(got) != len(want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("states = %v, want %v", got, want)
			break
		}
	}
}

func TestPins_NewestFirst(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	a, _ := env.Sync.AddPin(ctx, 1, 1, "a")
	b, _ := env.Sync.AddPin(ctx, 2, 2, "b")

	pins, err := env.Sync.Pins(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// Both pins share a creation time; newer insertion comes first.
	if len(pins) != 2 || pins[0].ID != b.ID || pins[1].ID != a.ID {
		t.Errorf("Pins() = %v", pins)
	}
}
