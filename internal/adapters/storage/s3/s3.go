package s3

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"thumbnailer/internal/ports"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// SignatureMarker identifies a SigV4 presigned URL.
const SignatureMarker = "X-Amz-Signature"

// Client implements ports.StorageProvider for s3://bucket/key locations.
// Sources are handed to the tool as presigned GET URLs; uploads go through
// the SDK with the process credential chain.
type Client struct {
	s3        *s3.Client
	presigner *s3.PresignClient
}

func NewClient(client *s3.Client) *Client {
	return &Client{s3: client, presigner: s3.NewPresignClient(client)}
}

func (c *Client) Provider() string { return "s3" }

func (c *Client) Signed(u *url.URL) bool {
	return u != nil && strings.Contains(u.RawQuery, SignatureMarker)
}

func (c *Client) SignRead(ctx context.Context, u *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	bucket, key, err := SplitLocation(u)
	if err != nil {
		return ports.SignedURLOutput{}, err
	}
	if key == "" {
		return ports.SignedURLOutput{}, fmt.Errorf("s3: source %q does not name an object", u.Redacted())
	}

	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("s3: presign: %w", err)
	}

	return ports.SignedURLOutput{URL: req.URL, ExpiresAt: time.Now().UTC().Add(ttl)}, nil
}

// SignWrite checks that credentials can be retrieved and returns the
// container unchanged. Writes are signed per request by the SDK.
func (c *Client) SignWrite(ctx context.Context, container *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	if _, _, err := SplitLocation(container); err != nil {
		return ports.SignedURLOutput{}, err
	}

	creds := c.s3.Options().Credentials
	if creds == nil {
		return ports.SignedURLOutput{}, fmt.Errorf("s3: no credentials configured")
	}
	v, err := creds.Retrieve(ctx)
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("s3: retrieve credentials: %w", err)
	}

	expires := time.Now().UTC().Add(ttl)
	if v.CanExpire && v.Expires.Before(expires) {
		expires = v.Expires
	}
	return ports.SignedURLOutput{URL: container.String(), ExpiresAt: expires}, nil
}

func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	u, err := url.Parse(in.Container)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}
	bucket, prefix, err := SplitLocation(u)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	key := ObjectKey(prefix, in.ObjectKey)
	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   in.Reader,
	}
	if in.ContentType != "" {
		input.ContentType = aws.String(in.ContentType)
	}
	if in.Size > 0 {
		input.ContentLength = aws.Int64(in.Size)
	}

	if _, err := c.s3.PutObject(ctx, input); err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("s3 upload failed: %w", err)
	}

	return ports.PutObjectOutput{ObjectKey: key, Size: in.Size}, nil
}

// SplitLocation splits s3://bucket/key into its bucket and key.
func SplitLocation(u *url.URL) (bucket, key string, err error) {
	if u == nil || u.Scheme != "s3" {
		return "", "", fmt.Errorf("s3: not an s3 location")
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("s3: location has no bucket")
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// ObjectKey joins a container prefix and a file name.
func ObjectKey(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return path.Join(prefix, name)
}
