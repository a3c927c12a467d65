package tourist

import "tourist-go/internal/model"

// Database provides durable storage for pins, photos and the operation log.
// Implementations must apply a ChangeBatch atomically.
type Database interface {
	// Pin operations

	// FindPin returns the pin with the given ID, or nil if it does not exist.
	FindPin(id string) (*model.Pin, error)

	// QueryPins returns the pins matching q, in q's order.
	QueryPins(q Query) ([]*model.Pin, error)

	// Photo operations

	// FindPhoto returns the photo with the given ID, or nil if it does not exist.
	FindPhoto(id string) (*model.Photo, error)

	// QueryPhotos returns the photos matching q, in q's order.
	// Ties in the sort field are broken by insertion order.
	QueryPhotos(q Query) ([]*model.Photo, error)

	// Apply persists all inserts, updates and deletes of the batch in a single transaction.
	// Deleting a pin also deletes its photos.
	Apply(batch *ChangeBatch) error

	// Operation log

	// CreateOperation records the start of a mutating command.
	CreateOperation(operation string, parameters string) (*model.Operation, error)

	// FinishOperation records the end of a mutating command.
	FinishOperation(id int64, status string) error

	// ListOperations returns the most recent operations, newest first.
	ListOperations(limit int) ([]*model.Operation, error)

	// MaxOperationID returns the highest recorded operation ID, 0 if none.
	MaxOperationID() (int64, error)

	// Close closes the database connection.
	Close() error
}

// ChangeBatch is the set of pending changes applied by one save.
type ChangeBatch struct {
	InsertPins   []*model.Pin
	UpdatePins   []*model.Pin
	DeletePins   []string
	InsertPhotos []*model.Photo
	UpdatePhotos []*model.Photo
	DeletePhotos []string
}

// Empty reports whether the batch contains no changes.
func (b *ChangeBatch) Empty() bool {
	return len(b.InsertPins) == 0 && len(b.UpdatePins) == 0 && len(b.DeletePins) == 0 &&
		len(b.InsertPhotos) == 0 && len(b.UpdatePhotos) == 0 && len(b.DeletePhotos) == 0
}
