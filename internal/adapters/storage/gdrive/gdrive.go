package gdrive

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"thumbnailer/internal/ports"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
)

// Client implements ports.StorageProvider backed by Google Drive.
// Locations look like gdrive://<folderId>; gdrive:/// uses the default
// folder. Drive is a destination only.
type Client struct {
	srv      *drive.Service
	tokens   oauth2.TokenSource
	folderID string
}

func NewClient(srv *drive.Service, tokens oauth2.TokenSource, folderID string) *Client {
	return &Client{srv: srv, tokens: tokens, folderID: folderID}
}

func (c *Client) Provider() string { return "gdrive" }

// Signed is always false; Drive access comes from the refresh token.
func (c *Client) Signed(u *url.URL) bool { return false }

func (c *Client) SignRead(ctx context.Context, u *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	return ports.SignedURLOutput{}, fmt.Errorf("gdrive: reading sources from Drive is not supported")
}

// SignWrite refreshes the access token so a revoked or invalid refresh
// token fails the job before the tool runs.
func (c *Client) SignWrite(ctx context.Context, container *url.URL, ttl time.Duration) (ports.SignedURLOutput, error) {
	if container == nil || container.Scheme != "gdrive" {
		return ports.SignedURLOutput{}, fmt.Errorf("gdrive: not a gdrive location")
	}
	if c.tokens == nil {
		return ports.SignedURLOutput{}, fmt.Errorf("gdrive: no token source configured")
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return ports.SignedURLOutput{}, fmt.Errorf("gdrive: refresh access token: %w", err)
	}

	expires := time.Now().UTC().Add(ttl)
	if !tok.Expiry.IsZero() && tok.Expiry.Before(expires) {
		expires = tok.Expiry
	}
	return ports.SignedURLOutput{URL: container.String(), ExpiresAt: expires}, nil
}

// PutObject uploads in.Reader with in.ObjectKey as the Drive file name.
// An existing file with the same name in the folder is updated in place.
func (c *Client) PutObject(ctx context.Context, in ports.PutObjectInput) (ports.PutObjectOutput, error) {
	if in.ObjectKey == "" {
		return ports.PutObjectOutput{}, fmt.Errorf("object_key is required")
	}

	folderID, err := c.folderFor(in.Container)
	if err != nil {
		return ports.PutObjectOutput{}, err
	}

	existing, err := c.findByName(ctx, folderID, in.ObjectKey)
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive lookup failed: %w", err)
	}

	media := []googleapi.MediaOption{}
	if in.ContentType != "" {
		media = append(media, googleapi.ContentType(in.ContentType))
	}

	var saved *drive.File
	if existing != "" {
		saved, err = c.srv.Files.Update(existing, &drive.File{}).
			Media(in.Reader, media...).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	} else {
		file := &drive.File{Name: in.ObjectKey}
		if folderID != "" {
			file.Parents = []string{folderID}
		}
		saved, err = c.srv.Files.Create(file).
			Media(in.Reader, media...).
			SupportsAllDrives(true).
			Context(ctx).
			Do()
	}
	if err != nil {
		return ports.PutObjectOutput{}, fmt.Errorf("gdrive upload failed: %w", err)
	}

	// We return the Drive fileId as ObjectKey.
	return ports.PutObjectOutput{ObjectKey: saved.Id, Size: in.Size}, nil
}

func (c *Client) findByName(ctx context.Context, folderID, name string) (string, error) {
	res, err := c.srv.Files.List().
		Q(NameQuery(folderID, name)).
		Fields("files(id)").
		PageSize(1).
		SupportsAllDrives(true).
		IncludeItemsFromAllDrives(true).
		Context(ctx).
		Do()
	if err != nil {
		return "", err
	}
	if len(res.Files) == 0 {
		return "", nil
	}
	return res.Files[0].Id, nil
}

func (c *Client) folderFor(location string) (string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", err
	}
	if u.Scheme != "gdrive" {
		return "", fmt.Errorf("gdrive: unsupported scheme %q", u.Scheme)
	}
	if u.Host != "" {
		return u.Host, nil
	}
	return c.folderID, nil
}

// NameQuery builds the Drive search expression for a file name in a folder.
func NameQuery(folderID, name string) string {
	q := fmt.Sprintf("name = '%s' and trashed = false", escapeQuery(name))
	if folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(folderID))
	}
	return q
}

func escapeQuery(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `'`, `\'`)
}
