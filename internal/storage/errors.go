package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotConnected indicates that a repository was used before a user store was connected.
	ErrNotConnected = errors.New("storage: no user store connected")
	// ErrStoreIO indicates that the underlying store failed to read or write.
	ErrStoreIO = errors.New("storage: store i/o failure")
	// ErrNotFound indicates that a referenced record does not exist.
	ErrNotFound = errors.New("storage: record not found")
	// ErrValidation indicates that a caller-supplied value was rejected.
	ErrValidation = errors.New("storage: validation failed")
)

// Operation names a repository operation for error reporting.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationGet    Operation = "get"
	OperationList   Operation = "list"
	OperationQuery  Operation = "query"
)

// OperationError annotates a repository failure with the entity, operation and id or filter involved.
// Kind is one of the package sentinels and is matched by errors.Is alongside the cause.
type OperationError struct {
	Entity    string
	Operation Operation
	ID        string
	Filter    string
	Kind      error
	Err       error
}

func (e *OperationError) Error() string {
	var builder strings.Builder
	builder.WriteString(e.Entity)
	builder.WriteByte(' ')
	builder.WriteString(string(e.Operation))
	switch {
	case e.ID != "":
		fmt.Fprintf(&builder, " %q", e.ID)
	case e.Filter != "":
		fmt.Fprintf(&builder, " by %s", e.Filter)
	}
	builder.WriteString(" failed")
	if e.Err != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Err.Error())
	} else if e.Kind != nil {
		builder.WriteString(": ")
		builder.WriteString(e.Kind.Error())
	}
	return builder.String()
}

func (e *OperationError) Unwrap() []error {
	unwrapped := make([]error, 0, 2)
	if e.Kind != nil {
		unwrapped = append(unwrapped, e.Kind)
	}
	if e.Err != nil {
		unwrapped = append(unwrapped, e.Err)
	}
	return unwrapped
}

// Code returns a stable machine-readable code such as "goal.update_failed".
func (e *OperationError) Code() string {
	return fmt.Sprintf("%s.%s_failed", e.Entity, e.Operation)
}

// IOError wraps a raw storage failure as an ErrStoreIO operation error.
func IOError(entity string, operation Operation, id string, cause error) error {
	return &OperationError{Entity: entity, Operation: operation, ID: id, Kind: ErrStoreIO, Err: cause}
}

// QueryError wraps a failed indexed lookup, naming the filter that was evaluated.
func QueryError(entity, filter string, cause error) error {
	return &OperationError{Entity: entity, Operation: OperationQuery, Filter: filter, Kind: ErrStoreIO, Err: cause}
}

// NotFoundError reports a missing record.
func NotFoundError(entity string, operation Operation, id string) error {
	return &OperationError{Entity: entity, Operation: operation, ID: id, Kind: ErrNotFound}
}

// ValidationError reports an invalid payload.
func ValidationError(entity string, operation Operation, id, reason string) error {
	return &OperationError{Entity: entity, Operation: operation, ID: id, Kind: ErrValidation, Err: errors.New(reason)}
}

// Annotate passes through errors that already carry repository context and wraps everything else
// as an ErrStoreIO operation error, so raw driver errors never leave a repository un-annotated.
func Annotate(entity string, operation Operation, id string, err error) error {
	if err == nil {
		return nil
	}
	var opErr *OperationError
	if errors.As(err, &opErr) {
		return err
	}
	if errors.Is(err, ErrNotConnected) {
		return &OperationError{Entity: entity, Operation: operation, ID: id, Kind: ErrNotConnected}
	}
	return IOError(entity, operation, id, err)
}
