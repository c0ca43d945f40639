package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Failure taxonomy shared by every backend. Callers match with errors.Is and
// never see backend-native error types.
var (
	ErrUnknownID     = errors.New("unknown id")
	ErrDuplicateID   = errors.New("duplicate id")
	ErrSerialization = errors.New("serialization failure")
	ErrIO            = errors.New("storage failure")
)

// Record pairs a stored value with the identifier it is stored under.
type Record[T any] struct {
	ID    string
	Value T
}

// Store is the persistence contract for one entity type. Create mints the
// identifier itself; Update is a whole-record replace, callers do their own
// read-modify-write. ReadAll returns records in unspecified order.
type Store[T any] interface {
	Create(ctx context.Context, value T) (string, error)
	Read(ctx context.Context, id string) (T, error)
	ReadAll(ctx context.Context) ([]Record[T], error)
	Update(ctx context.Context, id string, value T) error
	Delete(ctx context.Context, id string) error
}

// SortByID orders records ascending by identifier text, which approximates
// creation order for ids minted by idgen.New.
func SortByID[T any](records []Record[T]) {
	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
}

func ioError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrIO, err)
}

func serializationError(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrSerialization, err)
}
