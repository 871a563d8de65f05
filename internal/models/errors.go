package models

import (
	"errors"
	"fmt"
)

// Sentinel errors for upstream lookups. Not found means "not generated yet"
// rather than a fault.
var (
	ErrEventNotFound    = errors.New("event not found")
	ErrManifestNotFound = errors.New("manifest not found")
)

// Sentinel errors for cache and reconstruction outcomes.
var (
	ErrNotFound       = errors.New("not found")
	ErrNoBaseSnapshot = errors.New("payload has no base snapshot")
	ErrAborted        = errors.New("aborted")
	ErrInvalidKey     = errors.New("invalid cache key")
)

// CacheErrorKind classifies cache read failures.
type CacheErrorKind string

// Cache error kinds.
const (
	KindMiss    CacheErrorKind = "miss"
	KindExpired CacheErrorKind = "expired"
	KindCorrupt CacheErrorKind = "corrupt"
	KindBackend CacheErrorKind = "backend"
)

// CacheError describes why a cache read produced no value.
type CacheError struct {
	Kind CacheErrorKind
	Key  string
	Err  error
}

// Error implements the error interface.
func (e *CacheError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("cache %s for %q: %v", e.Kind, e.Key, e.Err)
	}

	return fmt.Sprintf("cache %s for %q", e.Kind, e.Key)
}

// Unwrap returns the underlying error.
func (e *CacheError) Unwrap() error { return e.Err }

// Is lets misses and expiries match ErrNotFound.
func (e *CacheError) Is(target error) bool {
	return target == ErrNotFound && (e.Kind == KindMiss || e.Kind == KindExpired || e.Kind == KindCorrupt)
}

// CacheErrorKindOf returns the kind of a *CacheError in err's chain, or "".
func CacheErrorKindOf(err error) CacheErrorKind {
	var ce *CacheError
	if errors.As(err, &ce) {
		return ce.Kind
	}

	return ""
}
