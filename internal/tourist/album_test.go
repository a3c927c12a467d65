package tourist_test

import (
	"context"
	"errors"
	"testing"

	"tourist-go/internal/model"
	"tourist-go/internal/testutil"
	"tourist-go/internal/tourist"
)

func openAlbum(t *testing.T, env *testutil.Env, pinID string, opts tourist.AlbumOptions) (*tourist.Album, *testutil.RecordingView) {
	t.Helper()
	view := testutil.NewRecordingView()
	album, err := tourist.OpenAlbum(context.Background(), env.Sync, pinID, view, opts)
	if err != nil {
		t.Fatalf("OpenAlbum() error = %v", err)
	}
	t.Cleanup(func() { album.Close() })
	return album, view
}

// settle waits for hydration workers and for their callbacks to run on the loop.
func settle(t *testing.T, env *testutil.Env, album *tourist.Album) {
	t.Helper()
	env.Sync.Wait()
	if _, err := album.Len(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func itemStates(items []tourist.AlbumItem) []tourist.PhotoState {
	out := make([]tourist.PhotoState, len(items))
	for i, it := range items {
		out[i] = it.State
	}
	return out
}

func TestOpenAlbum_InitialState(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)

	_, view := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})

	updates := view.Updates()
	if len(updates) != 1 {
		t.Fatalf("got %d updates, want 1", len(updates))
	}
	u := updates[0]
	if !u.Reset {
		t.Error("initial update is not a reset")
	}
	if u.State != tourist.AlbumPopulated {
		t.Errorf("State = %v, want populated", u.State)
	}
	if u.RefreshEnabled {
		t.Error("refresh enabled while photos are placeholders")
	}
	if len(u.Items) != 3 {
		t.Fatalf("got %d items, want 3", len(u.Items))
	}
	for i, it := range u.Items {
		if it.State != tourist.PhotoPlaceholder {
			t.Errorf("item %d state = %v, want placeholder", i, it.State)
		}
	}
}

func TestOpenAlbum_UnknownPin(t *testing.T) {
	env := testutil.NewEnv(t)
	_, err := tourist.OpenAlbum(context.Background(), env.Sync, "missing", testutil.NewRecordingView(), tourist.AlbumOptions{})
	if !errors.Is(err, tourist.ErrNotFound) {
		t.Errorf("OpenAlbum() error = %v, want ErrNotFound", err)
	}
}

func TestAlbum_DisplayHydratesAndUnlocksRefresh(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, view := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})
	ctx := context.Background()

	release := env.Images.Block()
	for i := 0; i < 3; i++ {
		if err := album.Display(ctx, i); err != nil {
			t.Fatalf("Display(%d) error = %v", i, err)
		}
	}
	items, err := album.Items(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i, st := range itemStates(items) {
		if st != tourist.PhotoHydrating {
			t.Errorf("item %d state = %v while downloading, want hydrating", i, st)
		}
	}
	if last := view.Last(t); len(last.Reloads) != 1 || last.Reloads[0] != 2 {
		t.Errorf("last reloads = %v, want [2]", last.Reloads)
	}

	release()
	settle(t, env, album)

	items, err = album.Items(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for i, it := range items {
		if it.State != tourist.PhotoHydrated || !it.Photo.Hydrated() {
			t.Errorf("item %d = %v (hydrated bytes %v), want hydrated", i, it.State, it.Photo.Hydrated())
		}
	}
	state, enabled, err := album.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != tourist.AlbumPopulated || !enabled {
		t.Errorf("State() = %v, %v; want populated, enabled", state, enabled)
	}
	if !view.Last(t).RefreshEnabled {
		t.Error("last update did not enable refresh")
	}
}

func TestAlbum_DisplaySkipsHydratedAndHydrating(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, _ := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})
	ctx := context.Background()

	release := env.Images.Block()
	album.Display(ctx, 0)
	album.Display(ctx, 0)
	release()
	settle(t, env, album)
	album.Display(ctx, 0)
	settle(t, env, album)

	item, err := album.Item(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if n := env.Images.Calls(item.Photo.RemoteImageURL); n != 1 {
		t.Errorf("image fetched %d times, want 1", n)
	}
}

func TestAlbum_DisplayFailureThenRetry(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, view := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})
	ctx := context.Background()

	first, err := album.Item(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	env.Images.FailNext(first.Photo.RemoteImageURL, tourist.DecodeError(first.Photo.RemoteImageURL, errors.New("not an image")))

	album.Display(ctx, 0)
	settle(t, env, album)

	item, err := album.Item(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if item.State != tourist.PhotoFailed || !errors.Is(item.Err, tourist.ErrDecode) {
		t.Errorf("item = %v (%v), want failed with decode error", item.State, item.Err)
	}
	if item.Photo.Hydrated() {
		t.Error("failed item has image bytes")
	}
	if last := view.Last(t); len(last.Reloads) != 1 || last.Reloads[0] != 0 {
		t.Errorf("last reloads = %v, want [0]", last.Reloads)
	}

	album.Display(ctx, 0)
	settle(t, env, album)
	item, _ = album.Item(ctx, 0)
	if item.State != tourist.PhotoHydrated || item.Err != nil {
		t.Errorf("item after retry = %v (%v), want hydrated", item.State, item.Err)
	}
}

func TestAlbum_DisplayOutOfRange(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, _ := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})

	if err := album.Display(context.Background(), 3); err == nil {
		t.Error("Display(3) on a 3-item album succeeded")
	}
	if err := album.DeleteAt(context.Background(), -1); err == nil {
		t.Error("DeleteAt(-1) succeeded")
	}
}

func TestAlbum_RefreshDisabledUntilHydrated(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, _ := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})

	if err := album.Refresh(context.Background()); !errors.Is(err, tourist.ErrRefreshDisabled) {
		t.Errorf("Refresh() error = %v, want ErrRefreshDisabled", err)
	}
	if n := len(env.Photos.Requests()); n != 1 {
		t.Errorf("search requests = %d, want 1", n)
	}
}

func TestAlbum_UnlockOnPopulated(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, view := openAlbum(t, env, pin.ID, tourist.AlbumOptions{Unlock: tourist.UnlockOnPopulated})

	if !view.Last(t).RefreshEnabled {
		t.Error("refresh disabled with populated policy")
	}
	if err := album.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if n := len(env.Photos.Requests()); n != 2 {
		t.Errorf("search requests = %d, want 2", n)
	}
}

func TestAlbum_RefreshLifecycle(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, view := openAlbum(t, env, pin.ID, tourist.AlbumOptions{Unlock: tourist.UnlockOnPopulated})
	ctx := context.Background()
	before, _ := album.Items(ctx)
	drain(env.Photos.Started())
	view.Reset()

	release := env.Photos.Block()
	errc := make(chan error, 1)
	go func() { errc <- album.Refresh(ctx) }()
	waitFor(t, env.Photos.Started())

	state, enabled, err := album.State(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if state != tourist.AlbumLoading || enabled {
		t.Errorf("State() during fetch = %v, %v; want loading, disabled", state, enabled)
	}
	if n, _ := album.Len(ctx); n != 0 {
		t.Errorf("album has %d items while refreshing, want 0", n)
	}
	if err := album.Refresh(ctx); !errors.Is(err, tourist.ErrRefreshDisabled) {
		t.Errorf("Refresh() during fetch error = %v, want ErrRefreshDisabled", err)
	}

	release()
	if err := <-errc; err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}

	last := view.Last(t)
	if last.State != tourist.AlbumPopulated || !last.RefreshEnabled {
		t.Errorf("final update = %v, enabled %v; want populated, enabled", last.State, last.RefreshEnabled)
	}
	if len(last.Items) != 3 {
		t.Fatalf("final update has %d items, want 3", len(last.Items))
	}
	for _, it := range last.Items {
		for _, old := range before {
			if it.Photo.ID == old.Photo.ID {
				t.Errorf("old photo %s still shown", it.Photo.ID)
			}
		}
	}

	// The clear and the new page each arrive as one batch.
	var deletes, inserts int
	for _, u := range view.Updates() {
		if len(u.Changes.Deletes) > 0 {
			deletes++
			if len(u.Changes.Deletes) != 3 {
				t.Errorf("delete batch has %d deletes, want 3", len(u.Changes.Deletes))
			}
		}
		if len(u.Changes.Inserts) > 0 {
			inserts++
			if len(u.Changes.Inserts) != 3 {
				t.Errorf("insert batch has %d inserts, want 3", len(u.Changes.Inserts))
			}
		}
	}
	if deletes != 1 || inserts != 1 {
		t.Errorf("got %d delete batches and %d insert batches, want 1 and 1", deletes, inserts)
	}
}

func TestAlbum_EmptyAndFailedStates(t *testing.T) {
	env := testutil.NewEnv(t)
	ctx := context.Background()
	pin, err := env.Sync.AddPin(ctx, 10, 20, "")
	if err != nil {
		t.Fatal(err)
	}
	album, view := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})

	if u := view.Last(t); u.State != tourist.AlbumEmpty || !u.RefreshEnabled {
		t.Errorf("initial = %v, enabled %v; want empty, enabled", u.State, u.RefreshEnabled)
	}

	env.Photos.FailNext(tourist.NetworkError("https://api.test", errors.New("offline")))
	if err := env.Sync.InitialFetch(ctx, pin.ID); err == nil {
		t.Fatal("InitialFetch() succeeded, want failure")
	}
	u := view.Last(t)
	if u.State != tourist.AlbumFailed || !errors.Is(u.Err, tourist.ErrNetwork) {
		t.Errorf("after failure = %v (%v), want failed with network error", u.State, u.Err)
	}
	if !u.RefreshEnabled {
		t.Error("refresh disabled after failed fetch")
	}

	if err := album.Refresh(ctx); err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	u = view.Last(t)
	if u.State != tourist.AlbumPopulated || u.Err != nil || len(u.Items) != 3 {
		t.Errorf("after retry = %v (%v) with %d items", u.State, u.Err, len(u.Items))
	}
}

func TestAlbum_DeleteAt(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, view := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})
	ctx := context.Background()

	second, _ := album.Item(ctx, 1)
	if err := album.DeleteAt(ctx, 1); err != nil {
		t.Fatalf("DeleteAt() error = %v", err)
	}

	u := view.Last(t)
	if len(u.Changes.Deletes) != 1 || u.Changes.Deletes[0].Position != 1 {
		t.Errorf("delete update = %+v, want one delete at 1", u.Changes)
	}
	items, _ := album.Items(ctx)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, it := range items {
		if it.Photo.ID == second.Photo.ID {
			t.Error("deleted photo still in album")
		}
	}
	if n := len(photos(t, env, pin.ID)); n != 2 {
		t.Errorf("store has %d photos, want 2", n)
	}
}

func TestAlbum_OrderStableAcrossHydrationOrder(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, view := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})
	ctx := context.Background()
	initial, _ := album.Items(ctx)

	for i := 2; i >= 0; i-- {
		album.Display(ctx, i)
		settle(t, env, album)
	}

	for _, u := range view.Updates() {
		if len(u.Items) != len(initial) {
			continue
		}
		for i := range u.Items {
			if u.Items[i].Photo.ID != initial[i].Photo.ID {
				t.Fatalf("update reordered items: position %d holds %s, want %s", i, u.Items[i].Photo.ID, initial[i].Photo.ID)
			}
		}
		if len(u.Changes.Inserts)+len(u.Changes.Deletes) != 0 {
			t.Errorf("hydration produced structural changes: %+v", u.Changes)
		}
	}
}

func TestAlbum_CloseStopsUpdatesButHydrationPersists(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, view := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})
	ctx := context.Background()
	item, _ := album.Item(ctx, 0)

	release := env.Images.Block()
	album.Display(ctx, 0)
	if err := album.Close(); err != nil {
		t.Fatal(err)
	}
	count := len(view.Updates())

	release()
	env.Sync.Wait()
	if err := env.Sync.DeletePhoto(ctx, item.Photo.ID); err != nil {
		t.Fatal(err)
	}

	if n := len(view.Updates()); n != count {
		t.Errorf("got %d updates after Close, want none", n-count)
	}
	if err := album.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestAlbum_HydrationAfterCloseIsStored(t *testing.T) {
	env := testutil.NewEnv(t)
	pin := dropPin(t, env)
	album, _ := openAlbum(t, env, pin.ID, tourist.AlbumOptions{})
	ctx := context.Background()

	release := env.Images.Block()
	album.Display(ctx, 1)
	album.Close()
	release()
	env.Sync.Wait()

	var stored *model.Photo
	for _, p := range photos(t, env, pin.ID) {
		if p.Hydrated() {
			stored = p
		}
	}
	if stored == nil {
		t.Error("image downloaded for a closed album was not stored")
	}
}
