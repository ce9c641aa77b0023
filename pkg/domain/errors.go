package domain

import "fmt"

// ErrInvalidControlValue is returned when a control setter receives a value
// outside its contract. The rejected mutation leaves the session unchanged.
type ErrInvalidControlValue struct {
	Control string
	Reason  string
}

func (e ErrInvalidControlValue) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Control, e.Reason)
}

// ErrDuplicateKey is returned by the merge when a source table carries the
// same (dataset, well) key more than once.
type ErrDuplicateKey struct {
	Table string
	Key   Key
}

func (e ErrDuplicateKey) Error() string {
	return fmt.Sprintf("duplicate %s key %s", e.Table, e.Key)
}

// ErrStoreUnavailable wraps a failure to reach or query the record store.
type ErrStoreUnavailable struct {
	Driver string
	Err    error
}

func (e ErrStoreUnavailable) Error() string {
	if e.Driver == "" {
		return fmt.Sprintf("record store unavailable: %v", e.Err)
	}
	return fmt.Sprintf("%s record store unavailable: %v", e.Driver, e.Err)
}

func (e ErrStoreUnavailable) Unwrap() error { return e.Err }
