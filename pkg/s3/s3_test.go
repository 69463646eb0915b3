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

package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/carwatch/pkg/common"
)

type fakeObject struct {
	body        []byte
	contentType string
	metadata    map[string]string
	modified    time.Time
}

// fakeS3 is an in-memory API with a small page size so pagination is exercised.
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
	now      time.Time
	listErr  error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{
		objects:  map[string]fakeObject{},
		pageSize: 2,
		now:      time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(time.Minute)
	f.objects[aws.ToString(in.Key)] = fakeObject{
		body:        body,
		contentType: aws.ToString(in.ContentType),
		metadata:    in.Metadata,
		modified:    f.now,
	}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(obj.body))}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	}
	return &s3.HeadObjectOutput{
		ContentType:   aws.String(obj.contentType),
		ContentLength: aws.Int64(int64(len(obj.body))),
		LastModified:  aws.Time(obj.modified),
		Metadata:      obj.metadata,
	}, nil
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	var keys []string
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) && k > aws.ToString(in.ContinuationToken) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		obj := f.objects[k]
		out.Contents = append(out.Contents, types.Object{
			Key:          aws.String(k),
			Size:         aws.Int64(int64(len(obj.body))),
			LastModified: aws.Time(obj.modified),
		})
	}
	return out, nil
}

func TestConfigureRequiresBucket(t *testing.T) {
	assert.ErrorIs(t, New().Configure(map[string]string{}), common.ErrBucketNotSet)
}

func TestConfigureWithEndpoint(t *testing.T) {
	backend := New().(*S3)
	require.NoError(t, backend.Configure(map[string]string{
		"bucket":    "carwatch",
		"endpoint":  "http://localhost:9000",
		"accessKey": "minio",
		"secretKey": "minio123",
		"prefix":    "nl/",
	}))
	assert.NotNil(t, backend.client)
	assert.Equal(t, "nl/", backend.prefix)
}

func TestPutGetMetadata(t *testing.T) {
	fake := newFakeS3()
	backend := NewWithClient(fake, "carwatch")
	ctx := context.Background()
	key := "inventory_20260301_101500.json"

	require.NoError(t, backend.Put(ctx, key, strings.NewReader(`{"groups":[]}`), &common.Metadata{
		ContentType: "application/json",
		Custom:      map[string]string{"captured_at": "2026-03-01T10:15:00Z"},
	}))

	data, err := common.ReadAll(ctx, backend, key)
	require.NoError(t, err)
	assert.Equal(t, `{"groups":[]}`, string(data))

	meta, err := backend.GetMetadata(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "application/json", meta.ContentType)
	assert.Equal(t, int64(13), meta.Size)
	assert.Equal(t, "2026-03-01T10:15:00Z", meta.Custom["captured_at"])
	assert.True(t, meta.CreatedAt.Equal(meta.LastModified))
	assert.False(t, meta.CreatedAt.IsZero())
}

func TestNotFoundMapping(t *testing.T) {
	backend := NewWithClient(newFakeS3(), "carwatch")
	ctx := context.Background()

	_, err := backend.Get(ctx, "missing.json")
	assert.ErrorIs(t, err, common.ErrKeyNotFound)
	_, err = backend.GetMetadata(ctx, "missing.json")
	assert.ErrorIs(t, err, common.ErrKeyNotFound)

	exists, err := backend.Exists(ctx, "missing.json")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestListPaginatesAndStripsPrefix(t *testing.T) {
	fake := newFakeS3()
	backend := NewWithClient(fake, "carwatch")
	backend.prefix = "nl/"
	ctx := context.Background()

	for _, key := range []string{"inventory_1.json", "inventory_2.json", "inventory_3.json", "other.json"} {
		require.NoError(t, backend.Put(ctx, key, strings.NewReader("{}"), nil))
	}

	objects, err := backend.List(ctx, "inventory_")
	require.NoError(t, err)
	require.Len(t, objects, 3)
	for i, obj := range objects {
		assert.Equal(t, "inventory_"+string(rune('1'+i))+".json", obj.Key)
		assert.False(t, obj.Metadata.Created().IsZero())
	}
}

func TestListError(t *testing.T) {
	fake := newFakeS3()
	fake.listErr = errors.New("access denied")
	_, err := NewWithClient(fake, "carwatch").List(context.Background(), "")
	assert.EqualError(t, err, "access denied")
}

func TestUnconfigured(t *testing.T) {
	backend := New()
	ctx := context.Background()
	assert.ErrorIs(t, backend.Put(ctx, "a.json", strings.NewReader(""), nil), common.ErrNotConfigured)
	_, err := backend.List(ctx, "")
	assert.ErrorIs(t, err, common.ErrNotConfigured)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NoSuchKey{}))
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NoSuchKey"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}
