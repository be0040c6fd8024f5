package storage

import (
	"context"
	"net/url"
	"reflect"
	"strings"
	"testing"
	"time"

	"thumbnailer/internal/adapters/storage/localfs"
	"thumbnailer/internal/ports"
)

// markerProvider claims URLs whose query contains marker.
type markerProvider struct {
	name   string
	marker string
}

func (m markerProvider) Provider() string { return m.name }
func (m markerProvider) Signed(u *url.URL) bool {
	return m.marker != "" && strings.Contains(u.RawQuery, m.marker)
}
func (m markerProvider) SignRead(context.Context, *url.URL, time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, nil
}
func (m markerProvider) SignWrite(context.Context, *url.URL, time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, nil
}
func (m markerProvider) PutObject(context.Context, ports.PutObjectInput) (ports.PutObjectOutput, error) {
	return ports.PutObjectOutput{}, nil
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()
	blob := markerProvider{name: "blob", marker: "sig="}
	r.Register(blob, "https", "HTTP")
	r.Register(localfs.New(), "file")

	u, _ := url.Parse("HTTP://acct/container/in.mp4")
	p, err := r.Lookup(u)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Provider() != "blob" {
		t.Errorf("expected blob provider, got %s", p.Provider())
	}

	u, _ = url.Parse("ftp://host/in.mp4")
	if _, err := r.Lookup(u); err == nil {
		t.Error("expected error for unregistered scheme")
	}
	if _, err := r.Lookup(nil); err == nil {
		t.Error("expected error for nil location")
	}

	if got := r.Schemes(); !reflect.DeepEqual(got, []string{"file", "http", "https"}) {
		t.Errorf("unexpected schemes %v", got)
	}
}

func TestRegistrySignedAcrossProviders(t *testing.T) {
	r := NewRegistry()
	r.Register(markerProvider{name: "blob", marker: "sig="}, "https")
	r.Register(markerProvider{name: "s3", marker: "X-Amz-Signature"}, "s3")

	tests := []struct {
		raw    string
		signed bool
	}{
		{"https://acct/c/in.mp4?sig=abc", true},
		{"https://bucket.s3.amazonaws.com/in.mp4?X-Amz-Signature=abc", true},
		{"https://acct/c/in.mp4", false},
	}

	for _, tt := range tests {
		u, _ := url.Parse(tt.raw)
		if got := r.Signed(u); got != tt.signed {
			t.Errorf("Signed(%s) = %v, expected %v", tt.raw, got, tt.signed)
		}
	}

	if r.Signed(nil) {
		t.Error("expected nil location to be unsigned")
	}
}
