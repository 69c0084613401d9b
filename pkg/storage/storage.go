// Package storage reads and writes blobs in one Azure Blob Storage
// container: dataset inputs and blob-backed checkpoints.
package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/JaimeStill/pairwise/pkg/lifecycle"
)

// System is a blob container bound to the lifecycle. Keys are
// slash-separated paths relative to the container.
type System interface {
	// Start creates the container on startup if it does not exist.
	Start(lc *lifecycle.Coordinator) error
	// Upload replaces the blob at key with the content of r.
	Upload(ctx context.Context, key string, r io.Reader, contentType string) error
	// Download opens the blob at key. The caller closes the reader.
	// A missing blob yields ErrNotFound.
	Download(ctx context.Context, key string) (io.ReadCloser, error)
}

type container struct {
	client *azblob.Client
	name   string
	logger *slog.Logger
}

// New builds the client without contacting the service. A connection
// string takes precedence over an account URL.
func New(cfg *Config, logger *slog.Logger) (System, error) {
	client, err := newClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}

	return &container{
		client: client,
		name:   cfg.ContainerName,
		logger: logger.With("system", "storage", "container", cfg.ContainerName),
	}, nil
}

func newClient(cfg *Config) (*azblob.Client, error) {
	opts := &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: cfg.MaxRetries},
		},
	}

	if cfg.ConnectionString != "" {
		return azblob.NewClientFromConnectionString(cfg.ConnectionString, opts)
	}

	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err != nil {
		return nil, fmt.Errorf("default credential: %w", err)
	}
	return azblob.NewClient(cfg.AccountURL, cred, opts)
}

func (c *container) Start(lc *lifecycle.Coordinator) error {
	lc.OnStartup(func() error {
		_, err := c.client.CreateContainer(lc.Context(), c.name, nil)
		switch {
		case err == nil:
			c.logger.Info("container created")
		case bloberror.HasCode(err, bloberror.ContainerAlreadyExists):
			c.logger.Debug("container exists")
		default:
			c.logger.Error("container unavailable", "error", err)
			return fmt.Errorf("create container %s: %w", c.name, err)
		}
		return nil
	})
	return nil
}

func (c *container) Upload(ctx context.Context, key string, r io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	_, err := c.client.UploadStream(ctx, c.name, key, r, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}

	c.logger.DebugContext(ctx, "blob uploaded", "key", key)
	return nil
}

func (c *container) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	resp, err := c.client.DownloadStream(ctx, c.name, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, fmt.Errorf("download %s: %w", key, err)
	}
	return resp.Body, nil
}

// validateKey rejects keys that are empty, absolute, or contain empty, "."
// or ".." segments.
func validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.ContainsRune(key, '\\') {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if slices.ContainsFunc(strings.Split(key, "/"), func(seg string) bool {
		return seg == "" || seg == "." || seg == ".."
	}) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
