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

// Package s3 stores snapshots in an Amazon S3 or S3-compatible (MinIO)
// bucket using aws-sdk-go-v2.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

// API is the subset of the S3 client used by the backend.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3 is a storage backend for S3-compatible object storage.
type S3 struct {
	client API
	bucket string
	prefix string
}

// New creates a new S3 storage backend.
func New() common.Storage {
	return &S3{}
}

// NewWithClient creates a backend around an existing client.
func NewWithClient(client API, bucket string) *S3 {
	return &S3{client: client, bucket: bucket}
}

// Configure sets up the backend with the necessary settings.
// Required settings:
//   - bucket: the bucket name
//
// Optional settings:
//   - region: AWS region (defaults to the SDK's resolution, then "us-east-1")
//   - endpoint: custom endpoint such as "http://localhost:9000" for MinIO
//   - accessKey / secretKey: static credentials (default credential chain otherwise)
//   - forcePathStyle: "true" for path-style addressing (implied by endpoint)
//   - prefix: key prefix inside the bucket
func (s *S3) Configure(settings map[string]string) error {
	s.bucket = settings["bucket"]
	if s.bucket == "" {
		return common.ErrBucketNotSet
	}
	s.prefix = settings["prefix"]

	var opts []func(*config.LoadOptions) error
	region := settings["region"]
	if region == "" && settings["endpoint"] != "" {
		region = "us-east-1"
	}
	if region != "" {
		opts = append(opts, config.WithRegion(region))
	}
	if accessKey, secretKey := settings["accessKey"], settings["secretKey"]; accessKey != "" && secretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}

	cfg, err := config.LoadDefaultConfig(context.TODO(), opts...)
	if err != nil {
		return err
	}
	if cfg.Region == "" {
		return common.ErrRegionNotSet
	}

	endpoint := settings["endpoint"]
	pathStyle, _ := strconv.ParseBool(settings["forcePathStyle"])
	s.client = s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		}
		if pathStyle {
			o.UsePathStyle = true
		}
	})
	return nil
}

func (s *S3) objectKey(key string) string {
	return s.prefix + key
}

// Put uploads an object. The body is buffered so the SDK can sign it with a
// known content length.
func (s *S3) Put(ctx context.Context, key string, data io.Reader, metadata *common.Metadata) error {
	if err := common.ValidateKey(key); err != nil {
		return err
	}
	if s.client == nil {
		return common.ErrNotConfigured
	}

	payload, err := io.ReadAll(data)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.objectKey(key)),
		Body:          bytes.NewReader(payload),
		ContentLength: aws.Int64(int64(len(payload))),
	}
	if metadata != nil {
		if metadata.ContentType != "" {
			input.ContentType = aws.String(metadata.ContentType)
		}
		if len(metadata.Custom) > 0 {
			if err := common.ValidateMetadata(metadata.Custom); err != nil {
				return err
			}
			input.Metadata = metadata.Custom
		}
	}

	_, err = s.client.PutObject(ctx, input)
	return err
}

// Get retrieves an object.
func (s *S3) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, common.ErrNotConfigured
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		return nil, err
	}
	return out.Body, nil
}

// GetMetadata retrieves object metadata with a HEAD request. S3 has no
// separate creation time, so CreatedAt is the last-modified time.
func (s *S3) GetMetadata(ctx context.Context, key string) (*common.Metadata, error) {
	if err := common.ValidateKey(key); err != nil {
		return nil, err
	}
	if s.client == nil {
		return nil, common.ErrNotConfigured
	}

	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrKeyNotFound, key)
		}
		return nil, err
	}

	meta := &common.Metadata{
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		ETag:        aws.ToString(out.ETag),
		Custom:      out.Metadata,
	}
	if out.LastModified != nil {
		meta.CreatedAt = *out.LastModified
		meta.LastModified = *out.LastModified
	}
	return meta, nil
}

// Exists checks if an object exists.
func (s *S3) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.GetMetadata(ctx, key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, common.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// List pages through every object under prefix.
func (s *S3) List(ctx context.Context, prefix string) ([]*common.ObjectInfo, error) {
	if s.client == nil {
		return nil, common.ErrNotConfigured
	}

	objects := []*common.ObjectInfo{}
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.objectKey(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			meta := &common.Metadata{
				Size: aws.ToInt64(obj.Size),
				ETag: aws.ToString(obj.ETag),
			}
			if obj.LastModified != nil {
				meta.CreatedAt = *obj.LastModified
				meta.LastModified = *obj.LastModified
			}
			objects = append(objects, &common.ObjectInfo{
				Key:      key[len(s.prefix):],
				Metadata: meta,
			})
		}
	}
	return objects, nil
}

// Close is a no-op; the SDK client holds no resources that need releasing.
func (s *S3) Close() error {
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
