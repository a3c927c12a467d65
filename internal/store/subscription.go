package store

import (
	"tourist-go/internal/model"
	"tourist-go/internal/tourist"
)

type subscription struct {
	store     *EntityStore
	query     tourist.Query
	handler   func(tourist.ChangeSet)
	snapshot  []model.Entity
	cancelled bool
}

// Subscribe runs q once to establish the initial snapshot and then delivers
// the differences after every Save that changes the result.
func (s *EntityStore) Subscribe(q tourist.Query, handler func(tourist.ChangeSet)) (tourist.Subscription, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	initial, err := s.query(q)
	if err != nil {
		return nil, err
	}
	sub := &subscription{
		store:    s,
		query:    q,
		handler:  handler,
		snapshot: initial,
	}
	s.subs = append(s.subs, sub)
	return sub, nil
}

// notify refreshes every live subscription. Handlers may cancel any
// subscription, including their own.
func (s *EntityStore) notify() {
	for _, sub := range append([]*subscription(nil), s.subs...) {
		if sub.cancelled {
			continue
		}
		cs, err := sub.Refresh()
		if err != nil {
			s.logger.Error("refreshing subscription", "kind", sub.query.Kind, "error", err)
			continue
		}
		if cs.Empty() {
			continue
		}
		sub.handler(cs)
	}
}

func (sub *subscription) Snapshot() []model.Entity {
	out := make([]model.Entity, len(sub.snapshot))
	copy(out, sub.snapshot)
	return out
}

func (sub *subscription) Refresh() (tourist.ChangeSet, error) {
	current, err := sub.store.query(sub.query)
	if err != nil {
		return tourist.ChangeSet{}, err
	}
	cs := tourist.Diff(sub.snapshot, current)
	sub.snapshot = current
	return cs, nil
}

func (sub *subscription) Cancel() {
	if sub.cancelled {
		return
	}
	sub.cancelled = true
	subs := sub.store.subs
	for i, other := range subs {
		if other == sub {
			sub.store.subs = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}
