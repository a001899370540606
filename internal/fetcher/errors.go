package fetcher

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("account not found")
	ErrNotReady    = errors.New("account is not deployed")
	ErrSyncTimeout = errors.New("synchronization timed out")
	ErrProvider    = errors.New("provider error")
	ErrInvalidView = errors.New("invalid view")
)

// ProviderError wraps any remote fault. errors.Is(err, ErrProvider) holds
// for it, as well as for the wrapped cause.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: can't %s", e.Err, e.Op)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrProvider, e.Err}
}

func wrapProvider(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrProvider) {
		return err
	}
	return &ProviderError{Op: op, Err: err}
}

// Kind names the error class for API payloads and the journal.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrNotReady):
		return "NotReady"
	case errors.Is(err, ErrSyncTimeout):
		return "SyncTimeout"
	case errors.Is(err, ErrProvider):
		return "ProviderError"
	case errors.Is(err, ErrInvalidView):
		return "BadRequest"
	default:
		return "Internal"
	}
}
