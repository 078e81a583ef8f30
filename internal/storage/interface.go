package storage

import (
	"context"
	"io"
)

// Backend is the opaque put/get/delete-by-handle store that owns export
// artifact bytes. Handles are slash-separated keys generated by the export
// pipeline; backends treat them as opaque.
type Backend interface {
	// Put stores data under the handle, overwriting any previous object.
	Put(ctx context.Context, handle string, data []byte) error

	// Get retrieves the full content of an object.
	Get(ctx context.Context, handle string) ([]byte, error)

	// Open returns a streaming reader over the object so downloads do not
	// buffer whole files in memory. The caller must Close it.
	Open(ctx context.Context, handle string) (io.ReadCloser, error)

	// Delete removes an object. Deleting a missing handle is not an error:
	// retention sweeps must be idempotent.
	Delete(ctx context.Context, handle string) error

	// Provider returns the name of the storage provider (e.g., "s3", "fs").
	Provider() string
}
