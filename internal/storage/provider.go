package storage

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"thumbnailer/internal/ports"
)

// Provider is the storage contract used across API and Worker.
// It is an alias to ports.StorageProvider to keep call-sites simple.
type Provider = ports.StorageProvider

// Registry maps location schemes to storage providers.
type Registry struct {
	byScheme map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{byScheme: make(map[string]Provider)}
}

// Register binds p to every given scheme. A later registration for the
// same scheme replaces the earlier one.
func (r *Registry) Register(p Provider, schemes ...string) {
	for _, s := range schemes {
		r.byScheme[strings.ToLower(s)] = p
	}
}

// Lookup returns the provider for the scheme of u.
func (r *Registry) Lookup(u *url.URL) (Provider, error) {
	if u == nil {
		return nil, fmt.Errorf("location is empty")
	}
	p, ok := r.byScheme[strings.ToLower(u.Scheme)]
	if !ok {
		return nil, fmt.Errorf("no storage provider for scheme %q", u.Scheme)
	}
	return p, nil
}

// Signed reports whether any registered provider recognizes a signature
// on u. A presigned S3 https URL is signed even though https is routed to
// the blob adapter.
func (r *Registry) Signed(u *url.URL) bool {
	if u == nil {
		return false
	}
	seen := make(map[Provider]bool, len(r.byScheme))
	for _, p := range r.byScheme {
		if seen[p] {
			continue
		}
		seen[p] = true
		if p.Signed(u) {
			return true
		}
	}
	return false
}

// Schemes lists the registered schemes, sorted.
func (r *Registry) Schemes() []string {
	out := make([]string, 0, len(r.byScheme))
	for s := range r.byScheme {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
