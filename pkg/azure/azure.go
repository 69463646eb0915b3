// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of carwatch.
//
// carwatch is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package azure stores snapshots in an Azure Blob Storage container.
package azure

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/Azure/azure-storage-blob-go/azblob"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

// Small internal interfaces for testability without network.
type BlobAPI interface {
	Upload(ctx context.Context, r io.Reader, contentType string, metadata map[string]string) error
	NewReader(ctx context.Context) (io.ReadCloser, error)
	Properties(ctx context.Context) (*common.Metadata, error)
}

type ContainerAPI interface {
	NewBlockBlob(name string) BlobAPI
	ListBlobsFlat(ctx context.Context, prefix string) ([]*common.ObjectInfo, error)
}

type containerWrapper struct{ azblob.ContainerURL }
type blobWrapper struct{ azblob.BlockBlobURL }

// Function variables to enable unit testing without real network I/O.
var (
	azureUploadFn = func(ctx context.Context, r io.Reader, b azblob.BlockBlobURL, opts azblob.UploadStreamToBlockBlobOptions) error {
		_, err := azblob.UploadStreamToBlockBlob(ctx, r, b, opts)
		return err
	}
	azureDownloadFn = func(ctx context.Context, b azblob.BlockBlobURL) (io.ReadCloser, error) {
		resp, err := b.Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
		if err != nil {
			return nil, err
		}
		return resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 3}), nil
	}
	azureGetPropertiesFn = func(ctx context.Context, b azblob.BlockBlobURL) (*common.Metadata, error) {
		props, err := b.GetProperties(ctx, azblob.BlobAccessConditions{}, azblob.ClientProvidedKeyOptions{})
		if err != nil {
			return nil, err
		}
		return &common.Metadata{
			ContentType:  props.ContentType(),
			Size:         props.ContentLength(),
			CreatedAt:    props.CreationTime(),
			LastModified: props.LastModified(),
			ETag:         string(props.ETag()),
			Custom:       props.NewMetadata(),
		}, nil
	}
	azureListFn = func(ctx context.Context, c azblob.ContainerURL, prefix string) ([]*common.ObjectInfo, error) {
		objects := []*common.ObjectInfo{}
		for marker := (azblob.Marker{}); marker.NotDone(); {
			listBlob, err := c.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
				Prefix:  prefix,
				Details: azblob.BlobListingDetails{Metadata: true},
			})
			if err != nil {
				return nil, err
			}

			for _, blob := range listBlob.Segment.BlobItems {
				objects = append(objects, &common.ObjectInfo{Key: blob.Name, Metadata: blobItemMetadata(blob)})
			}
			marker = listBlob.NextMarker
		}
		return objects, nil
	}
)

func blobItemMetadata(blob azblob.BlobItemInternal) *common.Metadata {
	p := blob.Properties
	meta := &common.Metadata{
		LastModified: p.LastModified,
		ETag:         string(p.Etag),
		Custom:       blob.Metadata,
	}
	if p.CreationTime != nil {
		meta.CreatedAt = *p.CreationTime
	}
	if p.ContentLength != nil {
		meta.Size = *p.ContentLength
	}
	if p.ContentType != nil {
		meta.ContentType = *p.ContentType
	}
	return meta
}

func (c containerWrapper) NewBlockBlob(name string) BlobAPI {
	return blobWrapper{c.ContainerURL.NewBlockBlobURL(name)}
}

func (c containerWrapper) ListBlobsFlat(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	return azureListFn(ctx, c.ContainerURL, prefix)
}

func (b blobWrapper) Upload(ctx context.Context, r io.Reader, contentType string, metadata map[string]string) error {
	return azureUploadFn(ctx, r, b.BlockBlobURL, azblob.UploadStreamToBlockBlobOptions{
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{ContentType: contentType},
		Metadata:        metadata,
	})
}
func (b blobWrapper) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return azureDownloadFn(ctx, b.BlockBlobURL)
}
func (b blobWrapper) Properties(ctx context.Context) (*common.Metadata, error) {
	return azureGetPropertiesFn(ctx, b.BlockBlobURL)
}

// Azure is a storage backend that stores files in Azure Blob Storage.
type Azure struct {
	container     ContainerAPI
	accountName   string
	containerName string
}

// New creates a new Azure storage backend.
func New() common.Storage {
	return &Azure{}
}

// NewWithContainer creates a backend around an existing container client.
func NewWithContainer(container ContainerAPI) *Azure {
	return &Azure{container: container}
}

// Configure sets up the backend with the necessary settings.
// Required settings:
//   - accountName: Azure storage account name
//   - accountKey: Azure storage account key
//   - containerName: Azure blob container name
//
// Optional settings:
//   - endpoint: Custom endpoint URL (for Azurite, etc.)
func (a *Azure) Configure(settings map[string]string) error {
	accountName := settings["accountName"]
	accountKey := settings["accountKey"]
	containerName := settings["containerName"]

	if accountName == "" || accountKey == "" || containerName == "" {
		return common.ErrAccountNotSet
	}
	a.accountName = accountName
	a.containerName = containerName

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return err
	}
	p := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	raw := fmt.Sprintf("https://%s.blob.core.windows.net/%s", accountName, containerName)
	if ep := settings["endpoint"]; ep != "" {
		raw = fmt.Sprintf("%s/%s", ep, containerName)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}

	a.container = containerWrapper{azblob.NewContainerURL(*u, p)}
	return nil
}

// Put uploads a block blob with content type and metadata.
func (a *Azure) Put(ctx context.Context, key string, data io.Reader, metadata *common.Metadata) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	if a.container == nil {
		return common.ErrNotConfigured
	}

	var contentType string
	var custom map[string]string
	if metadata != nil {
		if metadata.Custom != nil {
			if err := common.ValidateMetadata(metadata.Custom); err != nil {
				return err
			}
		}
		contentType = metadata.ContentType
		custom = metadata.Custom
	}
	return a.container.NewBlockBlob(key).Upload(ctx, data, contentType, custom)
}

// Get retrieves an object from the backend.
func (a *Azure) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if a.container == nil {
		return nil, common.ErrNotConfigured
	}

	rc, err := a.container.NewBlockBlob(key).NewReader(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return rc, nil
}

// GetMetadata retrieves the blob properties, including its creation time.
func (a *Azure) GetMetadata(ctx context.Context, key string) (*common.Metadata, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if a.container == nil {
		return nil, common.ErrNotConfigured
	}

	meta, err := a.container.NewBlockBlob(key).Properties(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return meta, nil
}

// Exists checks if a blob exists.
func (a *Azure) Exists(ctx context.Context, key string) (bool, error) {
	_, err := a.GetMetadata(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, common.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// List returns the blobs under prefix.
func (a *Azure) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if a.container == nil {
		return nil, common.ErrNotConfigured
	}
	return a.container.ListBlobsFlat(ctx, prefix)
}

// Close is a no-op; the pipeline holds no resources that need releasing.
func (a *Azure) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var stgErr azblob.StorageError
	if errors.As(err, &stgErr) {
		if stgErr.ServiceCode() == azblob.ServiceCodeBlobNotFound {
			return true
		}
		if resp := stgErr.Response(); resp != nil && resp.StatusCode == http.StatusNotFound {
			return true
		}
	}
	return false
}
