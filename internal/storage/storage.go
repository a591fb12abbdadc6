package storage

import (
	"context"
	"errors"
	"io"
)

// ErrUnexpectedStatus is returned when a remote host answers with a non-2xx status
var ErrUnexpectedStatus = errors.New("unexpected download status")

// Reader provides read access to stored content
type Reader interface {
	// GetReader returns a reader for the content at the given key
	GetReader(ctx context.Context, key string) (io.ReadCloser, error)
}

var (
	_ Reader = (*HTTPImageReader)(nil)
	_ Reader = (*FilesystemStorage)(nil)
)
