package catalog

import (
	"errors"

	"github.com/Sternrassler/manga-catalog/pkg/provider"
)

var (
	// ErrNotFound is returned when the upstream provider has no such title.
	ErrNotFound = errors.New("not found")

	// ErrInvalidQuery is returned for malformed operation parameters.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrProviderUnavailable is returned for unknown or disabled providers on
	// single-provider operations.
	ErrProviderUnavailable = provider.ErrProviderUnavailable

	// ErrUnsupported is returned when the provider lacks the capability.
	ErrUnsupported = provider.ErrUnsupported
)
