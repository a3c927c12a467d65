package tourist

import "tourist-go/internal/model"

// Store is the entity store: a working set of pending changes over a Database,
// plus change notification for subscribed queries.
//
// A Store is not safe for concurrent use. All calls must come from the Loop
// that owns it.
type Store interface {
	// NewPin creates a pin with a store-assigned ID and creation time.
	// The pin is persisted on the next Save.
	NewPin(latitude, longitude float64, name string) *model.Pin

	// NewPhoto creates an unhydrated photo belonging to pinID.
	// The photo is persisted on the next Save.
	NewPhoto(pinID, remoteImageURL string) *model.Photo

	// Update marks a modified pin or photo for persistence on the next Save.
	Update(entity model.Entity)

	// Delete marks a pin or photo for removal on the next Save.
	// Deleting a pin removes its photos.
	Delete(entity model.Entity)

	// Save persists all pending changes atomically and notifies subscriptions.
	// On failure the error wraps ErrPersistence and pending changes are kept.
	Save() error

	// Discard drops all pending changes.
	Discard()

	// HasChanges reports whether there are pending changes.
	HasChanges() bool

	// Pin returns the persisted pin with the given ID, or ErrNotFound.
	Pin(id string) (*model.Pin, error)

	// Photo returns the persisted photo with the given ID, or ErrNotFound.
	Photo(id string) (*model.Photo, error)

	// QueryPins runs a pin query against persisted state.
	QueryPins(q Query) ([]*model.Pin, error)

	// QueryPhotos runs a photo query against persisted state.
	QueryPhotos(q Query) ([]*model.Photo, error)

	// Subscribe registers handler for changes to the result of q.
	// The handler is called after each Save that changes the result,
	// with all edits of that Save in a single ChangeSet.
	Subscribe(q Query, handler func(ChangeSet)) (Subscription, error)
}

// Subscription is a live query registered with a Store.
type Subscription interface {
	// Snapshot returns the last observed ordered result.
	Snapshot() []model.Entity

	// Refresh re-runs the query and returns the edits since the last observed result.
	// It does not call the handler.
	Refresh() (ChangeSet, error)

	// Cancel stops delivery. It is safe to call more than once.
	Cancel()
}
