// Package storage persists run reports to blob storage so they survive the
// process and can be fetched by id later.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"go.uber.org/zap"
)

// BlobStorageClient is the blob surface the report store needs.
type BlobStorageClient interface {
	Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error)
	Download(ctx context.Context, reference string) ([]byte, error)
}

// AzureBlobClient stores and fetches report documents in a single Azure
// container, addressed by container-relative path or by full blob URL.
type AzureBlobClient struct {
	container     *container.Client
	serviceURL    string
	containerName string
	logger        *zap.Logger
	ready         atomic.Bool
}

// blobEndpoint holds the pieces of a storage connection string the client
// needs.
type blobEndpoint struct {
	accountName string
	accountKey  string
	serviceURL  string
}

func endpointFromConnectionString(cs string) (blobEndpoint, error) {
	var ep blobEndpoint
	for _, field := range strings.Split(cs, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(field), "=")
		if !ok || key == "" {
			continue
		}
		switch key {
		case "AccountName":
			ep.accountName = value
		case "AccountKey":
			ep.accountKey = value
		case "BlobEndpoint":
			ep.serviceURL = value
		}
	}
	if ep.accountName == "" || ep.accountKey == "" {
		return ep, fmt.Errorf("connection string is missing AccountName or AccountKey")
	}
	if ep.serviceURL == "" {
		ep.serviceURL = fmt.Sprintf("https://%s.blob.core.windows.net", ep.accountName)
	}
	return ep, nil
}

// NewAzureBlobClient builds a shared-key client from a standard connection
// string. Plain-HTTP endpoints are accepted so local Azurite instances work
// without TLS.
func NewAzureBlobClient(connectionString, containerName string, logger *zap.Logger) (*AzureBlobClient, error) {
	switch {
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	case connectionString == "":
		return nil, fmt.Errorf("connection string is required")
	case containerName == "":
		return nil, fmt.Errorf("container name is required")
	}

	ep, err := endpointFromConnectionString(connectionString)
	if err != nil {
		return nil, err
	}

	cred, err := azblob.NewSharedKeyCredential(ep.accountName, ep.accountKey)
	if err != nil {
		return nil, fmt.Errorf("building shared key credential: %w", err)
	}

	var opts *azblob.ClientOptions
	if strings.HasPrefix(strings.ToLower(ep.serviceURL), "http://") {
		opts = &azblob.ClientOptions{
			ClientOptions: azcore.ClientOptions{
				InsecureAllowCredentialWithHTTP: true,
			},
		}
	}

	svc, err := azblob.NewClientWithSharedKeyCredential(ep.serviceURL, cred, opts)
	if err != nil {
		return nil, fmt.Errorf("building blob service client: %w", err)
	}

	return &AzureBlobClient{
		container:     svc.ServiceClient().NewContainerClient(containerName),
		serviceURL:    strings.TrimRight(ep.serviceURL, "/"),
		containerName: containerName,
		logger:        logger,
	}, nil
}

// Upload writes data to the configured container and returns the blob URL.
func (c *AzureBlobClient) Upload(ctx context.Context, blobPath string, data []byte, metadata map[string]string) (string, error) {
	if err := c.ensureContainer(ctx); err != nil {
		return "", err
	}

	md := make(map[string]*string, len(metadata))
	for k, v := range metadata {
		md[k] = to.Ptr(v)
	}

	bb := c.container.NewBlockBlobClient(blobPath)
	_, err := bb.UploadBuffer(ctx, data, &blockblob.UploadBufferOptions{
		Metadata: md,
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType: to.Ptr("application/json"),
		},
	})
	if err != nil {
		c.logger.Error("Failed to upload blob",
			zap.String("blob_path", blobPath),
			zap.Int("size_bytes", len(data)),
			zap.Error(err))
		return "", fmt.Errorf("uploading blob %q: %w", blobPath, err)
	}

	c.logger.Debug("Uploaded blob",
		zap.String("blob_path", blobPath),
		zap.Int("size_bytes", len(data)))

	return bb.URL(), nil
}

// Download fetches blob contents by path or full blob URL.
func (c *AzureBlobClient) Download(ctx context.Context, reference string) ([]byte, error) {
	path, err := c.blobPath(reference)
	if err != nil {
		return nil, err
	}

	resp, err := c.container.NewBlobClient(path).DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("downloading blob %q: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading blob %q: %w", path, err)
	}
	return data, nil
}

func (c *AzureBlobClient) ensureContainer(ctx context.Context) error {
	if c.ready.Load() {
		return nil
	}
	if _, err := c.container.Create(ctx, nil); err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("creating container %q: %w", c.containerName, err)
	}
	c.ready.Store(true)
	return nil
}

// blobPath reduces a reference to a container-relative path. Full URLs may
// carry the service endpoint (path-style for Azurite) and a SAS query string;
// both are stripped.
func (c *AzureBlobClient) blobPath(reference string) (string, error) {
	ref := strings.TrimSpace(reference)
	if ref == "" {
		return "", fmt.Errorf("empty blob reference")
	}

	if strings.HasPrefix(strings.ToLower(ref), strings.ToLower(c.serviceURL)) {
		ref = ref[len(c.serviceURL):]
	} else if u, err := url.Parse(ref); err == nil && u.Host != "" {
		ref = u.Path
	}
	if i := strings.IndexByte(ref, '?'); i >= 0 {
		ref = ref[:i]
	}
	if decoded, err := url.PathUnescape(ref); err == nil && decoded != "" {
		ref = decoded
	}
	ref = strings.TrimPrefix(strings.TrimPrefix(ref, "/"), c.containerName+"/")

	if ref == "" {
		return "", fmt.Errorf("blob reference %q has no path", reference)
	}
	return ref, nil
}
