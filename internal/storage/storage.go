// Package storage defines the blob sink used to mirror rendered images.
package storage

import (
	"context"
	"io"
)

// BlobStore uploads one artifact and returns a URI locating it. Mirroring
// is best effort; the pipeline logs upload failures and keeps going.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}
