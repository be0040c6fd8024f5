package processor

import (
	"context"
	"net/url"
	"time"

	"thumbnailer/internal/pkg/errors"
	"thumbnailer/internal/storage"
)

// Access is the permission a location needs for the job.
type Access int

const (
	AccessRead Access = iota
	AccessWrite
)

func (a Access) String() string {
	if a == AccessWrite {
		return "write"
	}
	return "read"
}

// ResolvedLocation is a location the job can use as-is. Minted locations
// carry a credential created for this job only.
type ResolvedLocation struct {
	URL       string
	Provider  storage.Provider
	Minted    bool
	ExpiresAt time.Time
}

// CredentialResolver makes source and destination locations usable,
// passing through anything that is already signed.
type CredentialResolver struct {
	registry *storage.Registry
	ttl      time.Duration
}

func NewCredentialResolver(registry *storage.Registry, ttl time.Duration) *CredentialResolver {
	return &CredentialResolver{registry: registry, ttl: ttl}
}

// Resolve returns loc with a credential for the requested access. Every
// failure carries CodeAuthorizationFailure.
func (r *CredentialResolver) Resolve(ctx context.Context, loc string, access Access) (*ResolvedLocation, error) {
	op := "credentials." + access.String()

	u, err := url.Parse(loc)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeAuthorizationFailure, op, "location is not a valid URI")
	}

	provider, lookupErr := r.registry.Lookup(u)

	if r.registry.Signed(u) {
		// A signed source goes straight to the tool and needs no provider.
		if access == AccessWrite {
			if lookupErr != nil {
				return nil, errors.WrapWithCode(lookupErr, errors.CodeAuthorizationFailure, op, "no storage provider for destination")
			}
			// Uploads go through the provider routed by scheme, which must
			// own the signature it is handed.
			if !provider.Signed(u) {
				return nil, errors.New(errors.CodeAuthorizationFailure, "destination is signed for a different storage provider").
					WithField("provider", provider.Provider())
			}
		}
		return &ResolvedLocation{URL: loc, Provider: provider}, nil
	}

	if lookupErr != nil {
		return nil, errors.WrapWithCode(lookupErr, errors.CodeAuthorizationFailure, op, "no storage provider for location")
	}

	var signFn = provider.SignRead
	if access == AccessWrite {
		signFn = provider.SignWrite
	}

	out, err := signFn(ctx, u, r.ttl)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.CodeAuthorizationFailure, op, "could not mint access signature").
			WithField("provider", provider.Provider())
	}

	return &ResolvedLocation{
		URL:       out.URL,
		Provider:  provider,
		Minted:    true,
		ExpiresAt: out.ExpiresAt,
	}, nil
}

// Redact drops the query string so signatures never reach the logs.
func Redact(loc string) string {
	u, err := url.Parse(loc)
	if err != nil {
		return "<invalid location>"
	}
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil
	return u.String()
}
