package datamgmt

import (
	"errors"
	"fmt"

	"github.com/ryanbastic/go-structdata/internal/storage"
	"github.com/ryanbastic/go-structdata/internal/table"
)

// Error kinds surfaced to callers. Each maps to one stable machine-readable
// kind string via Kind.
var (
	ErrNotFound           = errors.New("not found")
	ErrForbidden          = errors.New("forbidden")
	ErrInvalidFormat      = table.ErrInvalidFormat
	ErrRowIndexOutOfRange = table.ErrRowIndexOutOfRange
	ErrColumnNotFound     = errors.New("column not found")
	ErrColumnExists       = errors.New("column already exists")
	ErrConflict           = errors.New("conflict")
	ErrPersistence        = errors.New("persistence error")
)

// Kind names for the error taxonomy.
const (
	KindNotFound           = "not_found"
	KindForbidden          = "forbidden"
	KindInvalidFormat      = "invalid_format"
	KindRowIndexOutOfRange = "row_index_out_of_range"
	KindColumnNotFound     = "column_not_found"
	KindColumnExists       = "column_exists"
	KindConflict           = "conflict"
	KindPersistence        = "persistence"
)

// Kind classifies err. Unknown errors are reported as persistence failures.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrRowIndexOutOfRange):
		return KindRowIndexOutOfRange
	case errors.Is(err, ErrColumnNotFound):
		return KindColumnNotFound
	case errors.Is(err, ErrColumnExists):
		return KindColumnExists
	case errors.Is(err, ErrInvalidFormat):
		return KindInvalidFormat
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindPersistence
	}
}

// persistence wraps a storage failure. Version conflicts become ErrConflict
// and missing records become ErrNotFound.
func persistence(op string, err error) error {
	switch {
	case errors.Is(err, storage.ErrVersionConflict):
		return fmt.Errorf("%s: %w: %w", op, ErrConflict, err)
	case errors.Is(err, storage.ErrNotFound):
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrPersistence, err)
	}
}
