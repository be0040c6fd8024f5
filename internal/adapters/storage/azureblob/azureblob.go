package azureblob

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"thumbnailer/internal/ports"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/service"
)

// SignatureMarker is the query fragment that identifies a SAS-bearing URL.
const SignatureMarker = "sig="

// clockSkew backdates the start of minted keys and signatures.
const clockSkew = 5 * time.Minute

// Client implements ports.StorageProvider for Azure Blob Storage.
// Unsigned locations get a SAS derived from a user delegation key that is
// requested with the service identity for every signing call.
type Client struct {
	cred azcore.TokenCredential
	now  func() time.Time
}

func NewClient(cred azcore.TokenCredential) *Client {
	return &Client{cred: cred, now: time.Now}
}

func (c *Client) Provider() string { return "azblob" }

func (c *Client) Signed(u *url.URL) bool {
	if u == nil || (u.Scheme != "https" && u.Scheme != "http") {
		return false
	}
	return strings.Contains(u.RawQuery, SignatureMarker)
}

// SignRead returns u with a read-only SAS for the blob it names.
func (c *Client) SignRead(ctx context.Context, u *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	parts, err := sas.ParseURL(u.String())
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("azblob: parse source: %w", err)
	}
	if parts.ContainerName == "" || parts.BlobName == "" {
		return ports.SignedURLOutput{}, fmt.Errorf("azblob: source %q does not name a blob", u.Redacted())
	}

	return c.sign(ctx, parts, ttl, sas.BlobSignatureValues{
		ContainerName: parts.ContainerName,
		BlobName:      parts.BlobName,
		Permissions:   (&sas.BlobPermissions{Read: true}).String(),
	})
}

// SignWrite returns container with a create/write SAS for the whole
// container. Any path below the container is kept as a name prefix.
func (c *Client) SignWrite(ctx context.Context, container *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	parts, err := sas.ParseURL(container.String())
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("azblob: parse destination: %w", err)
	}
	if parts.ContainerName == "" {
		return ports.SignedURLOutput{}, fmt.Errorf("azblob: destination %q does not name a container", container.Redacted())
	}

	return c.sign(ctx, parts, ttl, sas.BlobSignatureValues{
		ContainerName: parts.ContainerName,
		Permissions:   (&sas.ContainerPermissions{Create: true, Write: true}).String(),
	})
}

func (c *Client) sign(ctx context.Context, parts sas.URLParts, ttl time.Duration, values sas.BlobSignatureValues) (ports.SignedURLOutput, error) {
	if c.cred == nil {
		return ports.SignedURLOutput{}, fmt.Errorf("azblob: no service credential configured")
	}

	svc, err := service.NewClient(ServiceURL(parts), c.cred, nil)
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("azblob: service client: %w", err)
	}

	start := c.now().UTC().Add(-clockSkew)
	expiry := c.now().UTC().Add(ttl)

	udc, err := svc.GetUserDelegationCredential(ctx, service.KeyInfo{
		Start:  to.Ptr(start.Format(sas.TimeFormat)),
		Expiry: to.Ptr(expiry.Format(sas.TimeFormat)),
	}, nil)
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("azblob: user delegation key: %w", err)
	}

	values.StartTime = start
	values.ExpiryTime = expiry
	values.Protocol = sas.ProtocolHTTPS
	if parts.Scheme == "http" {
		values.Protocol = sas.ProtocolHTTPSandHTTP
	}

	qp, err := values.SignWithUserDelegation(udc)
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("azblob: sign: %w", err)
	}

	parts.SAS = qp
	return ports.SignedURLOutput{URL: parts.String(), ExpiresAt: expiry}, nil
}

// PutObject uploads into the signed container, replacing any blob with
// the same name.
func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	blobURL, name, err := BlobURL(in.Container, in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	bb, err := blockblob.NewClientWithNoCredential(blobURL, nil)
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("azblob: blob client: %w", err)
	}

	opts := &blockblob.UploadStreamOptions{}
	if in.ContentType != "" {
		opts.HTTPHeaders = &blob.HTTPHeaders{BlobContentType: to.Ptr(in.ContentType)}
	}

	if _, err := bb.UploadStream(ctx, in.Reader, opts); err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("azblob upload failed: %w", err)
	}

	return ports.PutObjectOutput{ObjectKey: name, Size: in.Size}, nil
}

// ServiceURL returns the account endpoint for a parsed blob location.
func ServiceURL(parts sas.URLParts) string {
	u := parts.Scheme + "://" + parts.Host + "/"
	if parts.IPEndpointStyleInfo.AccountName != "" {
		u += parts.IPEndpointStyleInfo.AccountName + "/"
	}
	return u
}

// BlobURL joins a container location and an object name, keeping the SAS
// and any name prefix carried by the container location.
func BlobURL(container, objectKey string) (string, string, error) {
	parts, err := sas.ParseURL(container)
	if err != nil {
		return "", "", fmt.Errorf("azblob: parse destination: %w", err)
	}
	if parts.ContainerName == "" {
		return "", "", fmt.Errorf("azblob: destination does not name a container")
	}

	name := objectKey
	if parts.BlobName != "" {
		name = path.Join(parts.BlobName, objectKey)
	}
	parts.BlobName = name

	return parts.String(), name, nil
}
