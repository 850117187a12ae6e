// Package storage archives rendered charts as blobs, keyed by run ID.
// Archival is strictly optional: the driver's contract is stdout-only
// unless a connection string is configured.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"go.uber.org/zap"
)

// ChartStore archives rendered charts for later retrieval.
type ChartStore interface {
	UploadChart(ctx context.Context, runID string, chart []byte, metadata map[string]string) (string, error)
	DownloadChart(ctx context.Context, runID string) ([]byte, error)
}

// AzureBlobStore implements ChartStore on Azure Blob Storage using shared
// keys. Connection handling is intentionally Azurite-friendly: an explicit
// http:// BlobEndpoint in the connection string is allowed for local
// development.
type AzureBlobStore struct {
	client        *azblob.Client
	serviceURL    string
	containerName string
	logger        *zap.Logger
	containerInit bool
}

// NewAzureBlobStore creates a chart store from a standard connection string.
func NewAzureBlobStore(connectionString, containerName string, logger *zap.Logger) (*AzureBlobStore, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if connectionString == "" {
		return nil, fmt.Errorf("connection string is required")
	}
	if containerName == "" {
		return nil, fmt.Errorf("container name is required")
	}

	params := ParseConnectionString(connectionString)
	accountName := params["AccountName"]
	accountKey := params["AccountKey"]
	serviceURL := params["BlobEndpoint"]
	if accountName == "" || accountKey == "" {
		return nil, fmt.Errorf("account name and key are required in the connection string")
	}
	if serviceURL == "" {
		serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", accountName)
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create shared key credential: %w", err)
	}

	var clientOpts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(serviceURL), "http://") {
		clientOpts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob client: %w", err)
	}

	return &AzureBlobStore{
		client:        client,
		serviceURL:    strings.TrimRight(serviceURL, "/"),
		containerName: containerName,
		logger:        logger,
	}, nil
}

// ChartBlobPath returns the blob path a run's chart is stored under.
func ChartBlobPath(runID string) string {
	return fmt.Sprintf("charts/%s.txt", runID)
}

// UploadChart uploads a rendered chart to the configured container.
func (a *AzureBlobStore) UploadChart(ctx context.Context, runID string, chart []byte, metadata map[string]string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run ID is required")
	}
	if err := a.ensureContainer(ctx); err != nil {
		return "", err
	}

	metadataPtr := make(map[string]*string, len(metadata)+1)
	for k, v := range metadata {
		metadataPtr[k] = to.Ptr(v)
	}
	metadataPtr["uploaded_at"] = to.Ptr(time.Now().UTC().Format(time.RFC3339))

	containerClient := a.client.ServiceClient().NewContainerClient(a.containerName)
	blobClient := containerClient.NewBlockBlobClient(ChartBlobPath(runID))

	_, err := blobClient.UploadBuffer(ctx, chart, &azblob.UploadBufferOptions{
		Metadata: metadataPtr,
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr("text/plain; charset=utf-8"),
		},
	})
	if err != nil {
		a.logger.Error("Failed to upload chart",
			zap.String("run_id", runID),
			zap.Int("size", len(chart)),
			zap.Error(err))
		return "", fmt.Errorf("chart upload failed: %w", err)
	}

	a.logger.Info("Successfully uploaded chart",
		zap.String("run_id", runID),
		zap.Int("size_bytes", len(chart)))

	return blobClient.URL(), nil
}

// DownloadChart fetches a previously archived chart by run ID.
func (a *AzureBlobStore) DownloadChart(ctx context.Context, runID string) ([]byte, error) {
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	containerClient := a.client.ServiceClient().NewContainerClient(a.containerName)
	blobClient := containerClient.NewBlobClient(ChartBlobPath(runID))

	resp, err := blobClient.DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to download chart: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read chart data: %w", err)
	}

	return data, nil
}

func (a *AzureBlobStore) ensureContainer(ctx context.Context) error {
	if a.containerInit {
		return nil
	}

	_, err := a.client.CreateContainer(ctx, a.containerName, nil)
	if err != nil {
		var respErr *azcore.ResponseError
		if strings.Contains(strings.ToLower(err.Error()), "containeralreadyexists") {
			a.containerInit = true
			return nil
		}
		if errors.As(err, &respErr) {
			if respErr.ErrorCode == "ContainerAlreadyExists" {
				a.containerInit = true
				return nil
			}
		}
		return fmt.Errorf("failed to ensure container: %w", err)
	}

	a.containerInit = true
	return nil
}

// ParseConnectionString splits an Azure storage connection string into its
// key/value parts.
func ParseConnectionString(connectionString string) map[string]string {
	parts := strings.Split(connectionString, ";")
	params := make(map[string]string, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		idx := strings.Index(part, "=")
		if idx <= 0 {
			continue
		}
		params[part[:idx]] = part[idx+1:]
	}
	return params
}
