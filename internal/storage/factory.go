package storage

import (
	"context"
	"fmt"

	"thumbnailer/internal/adapters/storage/azureblob"
	"thumbnailer/internal/adapters/storage/gdrive"
	"thumbnailer/internal/adapters/storage/localfs"
	s3adapter "thumbnailer/internal/adapters/storage/s3"
	"thumbnailer/internal/config"
	"thumbnailer/internal/pkg/logger"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

// FromConfig registers the providers enabled in cfg. file:// locations
// are always available.
func FromConfig(ctx context.Context, cfg config.StorageConfig, log *logger.Logger) (*Registry, error) {
	r := NewRegistry()
	r.Register(localfs.New(), "file")

	if cfg.AzureEnabled {
		cred, err := azidentity.NewDefaultAzureCredential(nil)
		if err != nil {
			return nil, fmt.Errorf("azure credential: %w", err)
		}
		r.Register(azureblob.NewClient(cred), "https", "http")
	}

	if cfg.S3Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		r.Register(s3adapter.NewClient(s3.NewFromConfig(awsCfg)), "s3")
	}

	if cfg.GDriveEnabled() {
		p, err := newGDriveProvider(ctx, cfg)
		if err != nil {
			return nil, err
		}
		r.Register(p, "gdrive")
	}

	log.Info("storage providers registered", "schemes", r.Schemes())
	return r, nil
}

func newGDriveProvider(ctx context.Context, cfg config.StorageConfig) (Provider, error) {
	conf := &oauth2.Config{
		ClientID:     cfg.GDriveClientID,
		ClientSecret: cfg.GDriveClientSecret,
		Endpoint:     google.Endpoint,
		Scopes:       []string{drive.DriveFileScope},
	}

	tokens := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: cfg.GDriveRefreshToken})
	httpClient := oauth2.NewClient(ctx, tokens)

	srv, err := drive.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("gdrive service: %w", err)
	}

	return gdrive.NewClient(srv, tokens, cfg.GDriveFolderID), nil
}
