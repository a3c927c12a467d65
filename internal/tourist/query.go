package tourist

// Kind names an entity type that can be queried.
type Kind string

const (
	KindPin   Kind = "pin"
	KindPhoto Kind = "photo"
)

// Fields that may be used in a Query predicate or ordering, per kind.
// Image bytes are deliberately not filterable.
var queryFields = map[Kind]map[string]bool{
	KindPin: {
		"id":         true,
		"latitude":   true,
		"longitude":  true,
		"name":       true,
		"page":       true,
		"pages":      true,
		"created_at": true,
	},
	KindPhoto: {
		"id":               true,
		"pin_id":           true,
		"remote_image_url": true,
		"created_at":       true,
	},
}

// Cond is a single equality predicate.
type Cond struct {
	Field string
	Value any
}

// Order selects the sort field and direction.
// An empty Field sorts by insertion order.
type Order struct {
	Field      string
	Descending bool
}

// Query selects entities of one kind matching all conditions, in the given order.
type Query struct {
	Kind    Kind
	Where   []Cond
	OrderBy Order
}

// PhotosForPin selects the photos of a pin, oldest first.
func PhotosForPin(pinID string) Query {
	return Query{
		Kind:    KindPhoto,
		Where:   []Cond{{Field: "pin_id", Value: pinID}},
		OrderBy: Order{Field: "created_at"},
	}
}

// AllPins selects every pin, newest first.
func AllPins() Query {
	return Query{
		Kind:    KindPin,
		OrderBy: Order{Field: "created_at", Descending: true},
	}
}

// Validate checks the query kind, predicate fields and sort field.
func (q Query) Validate() error {
	fields, ok := queryFields[q.Kind]
	if !ok {
		return &QueryError{Kind: q.Kind, Reason: "unknown kind"}
	}
	for _, c := range q.Where {
		if !fields[c.Field] {
			return &QueryError{Kind: q.Kind, Field: c.Field, Reason: "unknown predicate field"}
		}
		if c.Value == nil {
			return &QueryError{Kind: q.Kind, Field: c.Field, Reason: "nil value"}
		}
	}
	if q.OrderBy.Field != "" && !fields[q.OrderBy.Field] {
		return &QueryError{Kind: q.Kind, Field: q.OrderBy.Field, Reason: "unknown sort field"}
	}
	return nil
}
