package ports

import (
	"context"
	"io"
	"net/url"
	"time"
)

type PutObjectInput struct {
	// Container is the resolved destination location, credential included.
	Container   string
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
}

type PutObjectOutput struct {
	// ObjectKey is the key the store assigned. For gdrive it is the fileId.
	ObjectKey string
	Size      int64
}

type SignedURLOutput struct {
	URL       string
	ExpiresAt time.Time
}

// StorageProvider is implemented by each object store adapter
// (azblob, s3, gdrive, localfs) and selected by location scheme.
type StorageProvider interface {
	Provider() string

	// Signed reports whether u already carries an access signature.
	Signed(u *url.URL) bool
	// SignRead mints a read credential for a single object.
	SignRead(ctx context.Context, u *url.URL, ttl time.Duration) (SignedURLOutput, error)
	// SignWrite mints a write credential scoped to the container, since
	// object names are only known after the tool runs.
	SignWrite(ctx context.Context, container *url.URL, ttl time.Duration) (SignedURLOutput, error)

	// PutObject uploads in.Reader as in.ObjectKey, overwriting any
	// existing object with the same name.
	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
}
