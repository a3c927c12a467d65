package store

import (
	"fmt"

	"tourist-go/internal/model"
	"tourist-go/internal/tourist"
)

// pendingKind is what the next Save does with a pending entity.
type pendingKind int

const (
	pendingInsert pendingKind = iota
	pendingUpdate
	pendingDelete
)

// pendingChange is one entity waiting for the next Save.
type pendingChange struct {
	kind   pendingKind
	entity model.Entity
}

// EntityStore implements tourist.Store on top of a tourist.Database.
// Changes are staged in memory, in the order they were made, until Save
// applies them as one ChangeBatch.
//
// EntityStore is not safe for concurrent use; it is owned by a tourist.Loop.
type EntityStore struct {
	db     tourist.Database
	clock  tourist.Clock
	ids    tourist.IDGenerator
	logger tourist.Logger

	order   []string
	pending map[string]*pendingChange

	subs []*subscription
}

// New creates an EntityStore over db.
func New(db tourist.Database, clock tourist.Clock, ids tourist.IDGenerator, logger tourist.Logger) *EntityStore {
	return &EntityStore{
		db:      db,
		clock:   clock,
		ids:     ids,
		logger:  logger,
		pending: make(map[string]*pendingChange),
	}
}

func (s *EntityStore) NewPin(latitude, longitude float64, name string) *model.Pin {
	pin := &model.Pin{
		ID:        s.ids.New(),
		Latitude:  latitude,
		Longitude: longitude,
		Name:      name,
		CreatedAt: s.clock.Now().UTC(),
	}
	s.stage(pin.ID, pendingInsert, pin)
	return pin
}

func (s *EntityStore) NewPhoto(pinID, remoteImageURL string) *model.Photo {
	photo := &model.Photo{
		ID:             s.ids.New(),
		PinID:          pinID,
		RemoteImageURL: remoteImageURL,
		CreatedAt:      s.clock.Now().UTC(),
	}
	s.stage(photo.ID, pendingInsert, photo)
	return photo
}

func (s *EntityStore) Update(entity model.Entity) {
	id := entity.EntityID()
	if pc, ok := s.pending[id]; ok {
		switch pc.kind {
		case pendingDelete:
			return
		default:
			// An insert stays an insert; either way the latest value wins.
			pc.entity = entity
			return
		}
	}
	s.stage(id, pendingUpdate, entity)
}

func (s *EntityStore) Delete(entity model.Entity) {
	id := entity.EntityID()
	if pc, ok := s.pending[id]; ok {
		if pc.kind == pendingInsert {
			s.unstage(id)
			s.dropPhotosOf(entity)
			return
		}
		pc.kind = pendingDelete
		pc.entity = entity
		s.dropPhotosOf(entity)
		return
	}
	s.stage(id, pendingDelete, entity)
	s.dropPhotosOf(entity)
}

// dropPhotosOf removes staged photo changes of a pin being deleted.
// The database removes the persisted photos with the pin.
func (s *EntityStore) dropPhotosOf(entity model.Entity) {
	pin, ok := entity.(*model.Pin)
	if !ok {
		return
	}
	for _, id := range append([]string(nil), s.order...) {
		if photo, ok := s.pending[id].entity.(*model.Photo); ok && photo.PinID == pin.ID {
			s.unstage(id)
		}
	}
}

func (s *EntityStore) stage(id string, kind pendingKind, entity model.Entity) {
	s.order = append(s.order, id)
	s.pending[id] = &pendingChange{kind: kind, entity: entity}
}

func (s *EntityStore) unstage(id string) {
	delete(s.pending, id)
	for i, oid := range s.order {
		if oid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *EntityStore) HasChanges() bool {
	return len(s.order) > 0
}

func (s *EntityStore) Discard() {
	s.order = nil
	s.pending = make(map[string]*pendingChange)
}

// Save applies all staged changes in one transaction, then re-runs every
// subscribed query and delivers the differences.
func (s *EntityStore) Save() error {
	if !s.HasChanges() {
		return nil
	}

	batch, revisions := s.buildBatch()
	if err := s.db.Apply(batch); err != nil {
		s.logger.Error("save failed", "error", err, "pending", len(s.order))
		return fmt.Errorf("%w: %w", tourist.ErrPersistence, err)
	}

	for entity, rev := range revisions {
		setRevision(entity, rev)
	}
	s.Discard()

	s.notify()
	return nil
}

// buildBatch converts the staged changes into a ChangeBatch of copies carrying
// their new revisions. revisions maps each staged entity to the revision it
// gets once the batch is applied.
func (s *EntityStore) buildBatch() (*tourist.ChangeBatch, map[model.Entity]int64) {
	batch := &tourist.ChangeBatch{}
	revisions := make(map[model.Entity]int64)

	for _, id := range s.order {
		pc := s.pending[id]
		switch e := pc.entity.(type) {
		case *model.Pin:
			switch pc.kind {
			case pendingInsert:
				cp := *e
				cp.Revision = 1
				batch.InsertPins = append(batch.InsertPins, &cp)
				revisions[e] = cp.Revision
			case pendingUpdate:
				cp := *e
				cp.Revision = e.Revision + 1
				batch.UpdatePins = append(batch.UpdatePins, &cp)
				revisions[e] = cp.Revision
			case pendingDelete:
				batch.DeletePins = append(batch.DeletePins, e.ID)
			}
		case *model.Photo:
			switch pc.kind {
			case pendingInsert:
				cp := *e
				cp.Revision = 1
				batch.InsertPhotos = append(batch.InsertPhotos, &cp)
				revisions[e] = cp.Revision
			case pendingUpdate:
				cp := *e
				cp.Revision = e.Revision + 1
				batch.UpdatePhotos = append(batch.UpdatePhotos, &cp)
				revisions[e] = cp.Revision
			case pendingDelete:
				batch.DeletePhotos = append(batch.DeletePhotos, e.ID)
			}
		}
	}
	return batch, revisions
}

func setRevision(entity model.Entity, rev int64) {
	switch e := entity.(type) {
	case *model.Pin:
		e.Revision = rev
	case *model.Photo:
		e.Revision = rev
	}
}

func (s *EntityStore) Pin(id string) (*model.Pin, error) {
	pin, err := s.db.FindPin(id)
	if err != nil {
		return nil, fmt.Errorf("finding pin %s: %w", id, err)
	}
	if pin == nil {
		return nil, fmt.Errorf("pin %s: %w", id, tourist.ErrNotFound)
	}
	return pin, nil
}

func (s *EntityStore) Photo(id string) (*model.Photo, error) {
	photo, err := s.db.FindPhoto(id)
	if err != nil {
		return nil, fmt.Errorf("finding photo %s: %w", id, err)
	}
	if photo == nil {
		return nil, fmt.Errorf("photo %s: %w", id, tourist.ErrNotFound)
	}
	return photo, nil
}

func (s *EntityStore) QueryPins(q tourist.Query) ([]*model.Pin, error) {
	if q.Kind != tourist.KindPin {
		return nil, &tourist.QueryError{Kind: q.Kind, Reason: "not a pin query"}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.db.QueryPins(q)
}

func (s *EntityStore) QueryPhotos(q tourist.Query) ([]*model.Photo, error) {
	if q.Kind != tourist.KindPhoto {
		return nil, &tourist.QueryError{Kind: q.Kind, Reason: "not a photo query"}
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return s.db.QueryPhotos(q)
}

// query runs q and returns its result as entities.
func (s *EntityStore) query(q tourist.Query) ([]model.Entity, error) {
	switch q.Kind {
	case tourist.KindPin:
		pins, err := s.QueryPins(q)
		if err != nil {
			return nil, err
		}
		out := make([]model.Entity, len(pins))
		for i, p := range pins {
			out[i] = p
		}
		return out, nil
	case tourist.KindPhoto:
		photos, err := s.QueryPhotos(q)
		if err != nil {
			return nil, err
		}
		out := make([]model.Entity, len(photos))
		for i, p := range photos {
			out[i] = p
		}
		return out, nil
	default:
		return nil, q.Validate()
	}
}

// Compile-time check that EntityStore implements tourist.Store.
var _ tourist.Store = (*EntityStore)(nil)
