package store

import (
	"context"
	"fmt"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the generic interface for interacting with a key–value store.
// All write operations return only an error (nil on success),
// while read operations return the requested data along with an error (nil on success).
// Errors returned by implementations are of type *Error.
//
// Expiration and deletion offsets are counted in writes, not in time: every write
// operation advances the write index of the store by one.
type IStore interface {
	// Set inserts or updates a key–value pair.
	Set(ctx context.Context, key string, value []byte) (err error)
	// SetE inserts or updates a key–value pair with expiration and or deletion offsets.
	// A zero value for expireIn and deleteIn means no expiration or deletion.
	SetE(ctx context.Context, key string, value []byte, expireIn, deleteIn uint64) (err error)
	// SetEIfUnset inserts a key–value pair if the key does not exist.
	// If the key already exists, the old value is not updated, no matter the value of expireIn and deleteIn.
	// No error is returned if the key already exists.
	SetEIfUnset(ctx context.Context, key string, value []byte, expireIn, deleteIn uint64) (err error)
	// Expire expires the value for a key. The key is still findable with the Has() method.
	Expire(ctx context.Context, key string) (err error)
	// Delete deletes a key–value pair. The key is removed from the store.
	Delete(ctx context.Context, key string) (err error)
	// Get returns the value for a key. The boolean return value indicates whether a value for the key was found.
	Get(ctx context.Context, key string) (value []byte, loaded bool, err error)
	// Has returns whether a key exists in the store. It returns true even if the value for the key is expired.
	Has(ctx context.Context, key string) (loaded bool, err error)
	// GetDBInfo returns metadata about the database underlying the store.
	// It is not guaranteed that all fields are filled in or that the information is up-to-date!
	GetDBInfo(ctx context.Context) (info DatabaseInfo, err error)
}

// DatabaseInfo describes the database behind a store
type DatabaseInfo struct {
	SizeBytes int    `json:"size_bytes"`
	DbType    string `json:"db_type"`
	Metadata  any    `json:"metadata"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the error that caused it.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The underlying error (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("KVStoreError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the underlying error, so errors.Is and errors.As see through *Error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new KVStoreError with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new KVStoreError with the given code that wraps err.
// It returns nil if err is nil.
func WrapError(code RetCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf("%s: %v", op, err),
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying database.
	RetCInvalidOperation                    // 3: Invalid operation.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	default:
		return "Unknown"
	}
}
