package tourist

import (
	"sort"

	"tourist-go/internal/model"
)

// ChangeType identifies a positional edit in a ChangeSet.
type ChangeType int

const (
	ChangeInsert ChangeType = iota
	ChangeDelete
	ChangeUpdate
)

func (t ChangeType) String() string {
	switch t {
	case ChangeInsert:
		return "insert"
	case ChangeDelete:
		return "delete"
	case ChangeUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// Change is one positional edit. For deletes, Position indexes the old
// sequence and Item is the removed entity. For inserts and updates,
// Position indexes the new sequence.
type Change struct {
	Type     ChangeType
	Item     model.Entity
	Position int
}

// ChangeSet describes how one ordered result differs from the previous one.
//
// Applying Deletes (descending old positions) and then Inserts (ascending new
// positions) to the old sequence yields the new sequence. Updates name items
// present in both whose revision changed.
type ChangeSet struct {
	Deletes []Change
	Inserts []Change
	Updates []Change
}

// Empty reports whether there are no edits.
func (c ChangeSet) Empty() bool {
	return len(c.Deletes) == 0 && len(c.Inserts) == 0 && len(c.Updates) == 0
}

// Changes flattens the set in application order: deletes, inserts, updates.
func (c ChangeSet) Changes() []Change {
	out := make([]Change, 0, len(c.Deletes)+len(c.Inserts)+len(c.Updates))
	out = append(out, c.Deletes...)
	out = append(out, c.Inserts...)
	out = append(out, c.Updates...)
	return out
}

// Diff computes the edits turning old into new. Entities are matched by ID.
// Matched entities whose relative order changed are reported as a delete
// followed by an insert, keeping the largest order-preserving subset in place.
func Diff(old, new []model.Entity) ChangeSet {
	oldIndex := make(map[string]int, len(old))
	for i, e := range old {
		oldIndex[e.EntityID()] = i
	}

	// Old positions of matched entities, in new order.
	type pair struct{ oldPos, newPos int }
	var matched []pair
	for j, e := range new {
		if i, ok := oldIndex[e.EntityID()]; ok {
			matched = append(matched, pair{oldPos: i, newPos: j})
		}
	}

	seq := make([]int, len(matched))
	for k, m := range matched {
		seq[k] = m.oldPos
	}
	keep := longestIncreasing(seq)

	keptOld := make(map[int]bool, len(keep))
	keptNew := make(map[int]bool, len(keep))
	var cs ChangeSet
	for _, k := range keep {
		m := matched[k]
		keptOld[m.oldPos] = true
		keptNew[m.newPos] = true
		if old[m.oldPos].EntityRevision() != new[m.newPos].EntityRevision() {
			cs.Updates = append(cs.Updates, Change{Type: ChangeUpdate, Item: new[m.newPos], Position: m.newPos})
		}
	}

	for i := len(old) - 1; i >= 0; i-- {
		if !keptOld[i] {
			cs.Deletes = append(cs.Deletes, Change{Type: ChangeDelete, Item: old[i], Position: i})
		}
	}
	for j, e := range new {
		if !keptNew[j] {
			cs.Inserts = append(cs.Inserts, Change{Type: ChangeInsert, Item: e, Position: j})
		}
	}
	sort.Slice(cs.Updates, func(a, b int) bool { return cs.Updates[a].Position < cs.Updates[b].Position })
	return cs
}

// Apply replays cs on old and returns the resulting sequence.
func (c ChangeSet) Apply(old []model.Entity) []model.Entity {
	out := make([]model.Entity, len(old))
	copy(out, old)
	for _, d := range c.Deletes {
		out = append(out[:d.Position], out[d.Position+1:]...)
	}
	for _, ins := range c.Inserts {
		out = append(out, nil)
		copy(out[ins.Position+1:], out[ins.Position:])
		out[ins.Position] = ins.Item
	}
	for _, u := range c.Updates {
		out[u.Position] = u.Item
	}
	return out
}

// longestIncreasing returns the indexes into seq of a longest strictly
// increasing subsequence, in ascending order.
func longestIncreasing(seq []int) []int {
	if len(seq) == 0 {
		return nil
	}
	// tails[l] is the index in seq of the smallest tail of an increasing run of length l+1.
	tails := make([]int, 0, len(seq))
	prev := make([]int, len(seq))
	for i, v := range seq {
		l := sort.Search(len(tails), func(k int) bool { return seq[tails[k]] >= v })
		if l > 0 {
			prev[i] = tails[l-1]
		} else {
			prev[i] = -1
		}
		if l == len(tails) {
			tails = append(tails, i)
		} else {
			tails[l] = i
		}
	}

	out := make([]int, len(tails))
	for k, i := len(tails)-1, tails[len(tails)-1]; k >= 0; k, i = k-1, prev[i] {
		out[k] = i
	}
	return out
}
