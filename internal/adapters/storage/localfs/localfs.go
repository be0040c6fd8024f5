package localfs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"thumbnailer/internal/ports"
)

// LocalFS implements ports.StorageProvider for file:// locations.
// A location is its own credential, so every file URL counts as signed.
type LocalFS struct{}

func New() *LocalFS {
	return &LocalFS{}
}

func (l *LocalFS) Provider() string { return "localfs" }

func (l *LocalFS) Signed(u *url.URL) bool {
	return u != nil && u.Scheme == "file"
}

func (l *LocalFS) SignRead(ctx context.Context, u *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	return passThrough(u, ttl)
}

func (l *LocalFS) SignWrite(ctx context.Context, container *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	return passThrough(container, ttl)
}

func passThrough(u *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	if u == nil || u.Scheme != "file" {
		return ports.SignedURLOutput{}, fmt.Errorf("localfs: not a file location")
	}
	return ports.SignedURLOutput{URL: u.String(), ExpiresAt: time.Now().UTC().Add(ttl)}, nil
}

// PutObject writes the object under the directory named by in.Container,
// replacing any existing file.
func (l *LocalFS) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	root, err := Dir(in.Container)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	dst := filepath.Join(root, filepath.FromSlash(in.ObjectKey))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return ports.PutObjectOutput{}, err
	}

	outF, err := os.Create(dst)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	defer outF.Close()

	n, err := io.Copy(outF, in.Reader)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	return ports.PutObjectOutput{ObjectKey: in.ObjectKey, Size: n}, nil
}

// Dir returns the filesystem path of a file:// location.
func Dir(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", fmt.Errorf("localfs: unsupported scheme %q", u.Scheme)
	}
	if u.Path == "" {
		return "", fmt.Errorf("localfs: location has no path")
	}
	return filepath.FromSlash(u.Path), nil
}
