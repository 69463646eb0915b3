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

// Package gcs stores snapshots in a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

// Small internal interfaces to enable unit tests without real GCS.
type gcsObject interface {
	NewWriter(ctx context.Context, attrs storage.ObjectAttrs) io.WriteCloser
	NewReader(ctx context.Context) (io.ReadCloser, error)
	Attrs(ctx context.Context) (*storage.ObjectAttrs, error)
}

type gcsBucket interface {
	Object(name string) gcsObject
	Objects(ctx context.Context, query *storage.Query) gcsIterator
}

type gcsIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

type gcsClient interface {
	Bucket(name string) gcsBucket
	Close() error
}

type clientWrapper struct{ *storage.Client }
type bucketWrapper struct{ *storage.BucketHandle }
type objectWrapper struct{ *storage.ObjectHandle }

func (c clientWrapper) Bucket(name string) gcsBucket { return bucketWrapper{c.Client.Bucket(name)} }
func (b bucketWrapper) Object(name string) gcsObject {
	return objectWrapper{b.BucketHandle.Object(name)}
}
func (b bucketWrapper) Objects(ctx context.Context, query *storage.Query) gcsIterator {
	return b.BucketHandle.Objects(ctx, query)
}

func (o objectWrapper) NewWriter(ctx context.Context, attrs storage.ObjectAttrs) io.WriteCloser {
	w := o.ObjectHandle.NewWriter(ctx)
	w.ContentType = attrs.ContentType
	w.Metadata = attrs.Metadata
	return w
}
func (o objectWrapper) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return o.ObjectHandle.NewReader(ctx)
}
func (o objectWrapper) Attrs(ctx context.Context) (*storage.ObjectAttrs, error) {
	return o.ObjectHandle.Attrs(ctx)
}

var gcsNewClient = func(ctx context.Context, opts ...option.ClientOption) (*storage.Client, error) {
	return storage.NewClient(ctx, opts...)
}

// GCS is a storage backend that stores files in Google Cloud Storage.
type GCS struct {
	client gcsClient
	bucket string
	prefix string
}

// New creates a new GCS storage backend.
func New() common.Storage {
	return &GCS{}
}

// Configure sets up the backend with the necessary settings.
// Required settings:
//   - bucket: the bucket name
//
// Optional settings:
//   - endpoint: custom endpoint, e.g. a fake-gcs-server for local testing
//     (disables authentication)
//   - credentialsFile: service account JSON key file
//   - prefix: key prefix inside the bucket
func (g *GCS) Configure(settings map[string]string) error {
	g.bucket = settings["bucket"]
	if g.bucket == "" {
		return common.ErrBucketNotSet
	}
	g.prefix = settings["prefix"]
	if g.client != nil {
		return nil
	}

	var opts []option.ClientOption
	if endpoint := settings["endpoint"]; endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	} else if file := settings["credentialsFile"]; file != "" {
		opts = append(opts, option.WithCredentialsFile(file))
	}

	client, err := gcsNewClient(context.Background(), opts...)
	if err != nil {
		return err
	}
	g.client = clientWrapper{client}
	return nil
}

func (g *GCS) objectKey(key string) string {
	return g.prefix + key
}

// Put stores an object in the backend.
func (g *GCS) Put(ctx context.Context, key string, data io.Reader, metadata *common.Metadata) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	if g.client == nil {
		return common.ErrNotConfigured
	}

	var attrs storage.ObjectAttrs
	if metadata != nil {
		if metadata.Custom != nil {
			if err := common.ValidateMetadata(metadata.Custom); err != nil {
				return err
			}
		}
		attrs.ContentType = metadata.ContentType
		attrs.Metadata = metadata.Custom
	}

	w := g.client.Bucket(g.bucket).Object(g.objectKey(key)).NewWriter(ctx, attrs)
	if _, err := io.Copy(w, data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

// Get retrieves an object from the backend.
func (g *GCS) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if g.client == nil {
		return nil, common.ErrNotConfigured
	}

	rc, err := g.client.Bucket(g.bucket).Object(g.objectKey(key)).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return rc, nil
}

// GetMetadata retrieves the object attributes. GCS records a real creation
// time for each object generation.
func (g *GCS) GetMetadata(ctx context.Context, key string) (*common.Metadata, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if g.client == nil {
		return nil, common.ErrNotConfigured
	}

	attrs, err := g.client.Bucket(g.bucket).Object(g.objectKey(key)).Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return metadataFromAttrs(attrs), nil
}

// Exists checks if an object exists.
func (g *GCS) Exists(ctx context.Context, key string) (bool, error) {
	_, err := g.GetMetadata(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, common.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// List returns the objects under prefix.
func (g *GCS) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if g.client == nil {
		return nil, common.ErrNotConfigured
	}

	objects := []*common.ObjectInfo{}
	it := g.client.Bucket(g.bucket).Objects(ctx, &storage.Query{Prefix: g.objectKey(prefix)})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, err
		}
		objects = append(objects, &common.ObjectInfo{
			Key:      attrs.Name[len(g.prefix):],
			Metadata: metadataFromAttrs(attrs),
		})
	}
	return objects, nil
}

// Close closes the underlying client.
func (g *GCS) Close() error {
	if g.client == nil {
		return nil
	}
	return g.client.Close()
}

func metadataFromAttrs(attrs *storage.ObjectAttrs) *common.Metadata {
	return &common.Metadata{
		ContentType:  attrs.ContentType,
		Size:         attrs.Size,
		CreatedAt:    attrs.Created,
		LastModified: attrs.Updated,
		ETag:         attrs.Etag,
		Custom:       attrs.Metadata,
	}
}
