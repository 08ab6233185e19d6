package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"go.uber.org/zap"
)

// AzureConfig locates the export container. ConnectionString wins over
// AccountURL; with only AccountURL the default Azure credential chain
// (managed identity, workload identity, CLI) authenticates.
type AzureConfig struct {
	ConnectionString string
	AccountURL       string
	Container        string
}

// AzureBlobStorage stores exports as block blobs in one container
type AzureBlobStorage struct {
	client    *azblob.Client
	container string
	logger    *zap.Logger
}

// NewAzureBlobStorage connects to the account and creates the container when
// it does not exist yet
func NewAzureBlobStorage(ctx context.Context, cfg AzureConfig, logger *zap.Logger) (*AzureBlobStorage, error) {
	if cfg.Container == "" {
		return nil, errors.New("azure storage requires a container name")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.AccountURL != "":
		var cred *azidentity.DefaultAzureCredential
		cred, err = azidentity.NewDefaultAzureCredential(nil)
		if err == nil {
			client, err = azblob.NewClient(cfg.AccountURL, cred, nil)
		}
	default:
		return nil, errors.New("azure storage requires a connection string or an account URL")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	if _, err := client.CreateContainer(ctx, cfg.Container, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return nil, fmt.Errorf("failed to create container %s: %w", cfg.Container, err)
	}

	logger.Info("azure blob storage initialized", zap.String("container", cfg.Container))
	return &AzureBlobStorage{client: client, container: cfg.Container, logger: logger}, nil
}

// Upload streams data to the blob named key and returns container/key
func (s *AzureBlobStorage) Upload(ctx context.Context, key string, contentType string, data io.Reader) (string, int64, error) {
	name, err := CleanKey(key)
	if err != nil {
		return "", 0, err
	}

	counter := &countingReader{r: data}
	_, err = s.client.UploadStream(ctx, s.container, name, counter, &azblob.UploadStreamOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", 0, fmt.Errorf("failed to upload blob %s: %w", name, err)
	}

	s.logger.Info("export uploaded",
		zap.String("backend", "azure"),
		zap.String("container", s.container),
		zap.String("blob", name),
		zap.Int64("size", counter.n),
	)
	return s.container + "/" + name, counter.n, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

func (s *AzureBlobStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	name, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.DownloadStream(ctx, s.container, name, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return nil, fmt.Errorf("file not found: %s", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to download blob %s: %w", name, err)
	}
	return resp.Body, nil
}

// Delete removes a blob. Missing blobs are not an error.
func (s *AzureBlobStorage) Delete(ctx context.Context, key string) error {
	name, err := CleanKey(key)
	if err != nil {
		return err
	}
	_, err = s.client.DeleteBlob(ctx, s.container, name, nil)
	switch {
	case bloberror.HasCode(err, bloberror.BlobNotFound):
		s.logger.Debug("blob already deleted", zap.String("blob", name))
		return nil
	case err != nil:
		return fmt.Errorf("failed to delete blob %s: %w", name, err)
	}
	s.logger.Info("export deleted", zap.String("backend", "azure"), zap.String("blob", name))
	return nil
}
