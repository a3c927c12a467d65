package tourist

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a pin or photo does not exist in the store.
	ErrNotFound = errors.New("not found")

	// ErrPersistence wraps failures of the durable store to accept a save.
	// Pending changes are kept so the save can be retried.
	ErrPersistence = errors.New("persistence failure")

	// ErrQuery marks malformed queries. These are programmer errors.
	ErrQuery = errors.New("invalid query")

	// ErrFetchInFlight is returned when a photo page fetch is already running for a pin.
	ErrFetchInFlight = errors.New("photo fetch already in progress")

	// ErrNetwork and ErrDecode classify FetchError values.
	ErrNetwork = errors.New("network error")
	ErrDecode  = errors.New("decode error")

	// ErrLoopClosed is returned when work is submitted to a closed Loop.
	ErrLoopClosed = errors.New("loop closed")
)

// FetchKind classifies a remote fetch failure.
type FetchKind int

const (
	KindNetwork FetchKind = iota
	KindDecode
)

func (k FetchKind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	default:
		return fmt.Sprintf("FetchKind(%d)", int(k))
	}
}

// FetchError reports a failed remote search or image download.
// Fetch errors are never fatal: the affected pin or photo is left as it was.
type FetchError struct {
	Kind FetchKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error fetching %s: %v", e.Kind, e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches ErrNetwork or ErrDecode according to Kind.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrDecode:
		return e.Kind == KindDecode
	}
	return false
}

// NetworkError builds a FetchError of kind KindNetwork.
func NetworkError(url string, err error) *FetchError {
	return &FetchError{Kind: KindNetwork, URL: url, Err: err}
}

// DecodeError builds a FetchError of kind KindDecode.
func DecodeError(url string, err error) *FetchError {
	return &FetchError{Kind: KindDecode, URL: url, Err: err}
}

// QueryError reports a malformed query: unknown kind, field or sort key.
type QueryError struct {
	Kind   Kind
	Field  string
	Reason string
}

func (e *QueryError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("invalid %s query: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("invalid %s query on field %q: %s", e.Kind, e.Field, e.Reason)
}

func (e *QueryError) Is(target error) bool { return target == ErrQuery }
