package vault

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

type fakeObject struct {
	data     []byte
	metadata map[string]string
}

// fakeS3 is an in-memory S3API. Objects larger than the uploader's part size
// are not supported.
type fakeS3 struct {
	mu        sync.Mutex
	objects   map[string]fakeObject
	bucketErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: make(map[string]fakeObject)}
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = fakeObject{data: data, metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{
		Body:     io.NopCloser(bytes.NewReader(obj.data)),
		Metadata: obj.metadata,
	}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	obj, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{Metadata: obj.metadata}, nil
}

func (f *fakeS3) HeadBucket(ctx context.Context, in *s3.HeadBucketInput, _ ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	if f.bucketErr != nil {
		return nil, f.bucketErr
	}
	return &s3.HeadBucketOutput{}, nil
}

func (f *fakeS3) UploadPart(context.Context, *s3.UploadPartInput, ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func (f *fakeS3) CreateMultipartUpload(context.Context, *s3.CreateMultipartUploadInput, ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func (f *fakeS3) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart upload not supported")
}

func (f *fakeS3) AbortMultipartUpload(context.Context, *s3.AbortMultipartUploadInput, ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Vault_ObjectKeyAndVersionMetadata(t *testing.T) {
	client := newFakeS3()
	v := NewS3VaultWithClient("test", "snapshots", "tourist", client)

	if err := v.PutMetadata("host-1", "db", strings.NewReader("data"), 4, 20240102); err != nil {
		t.Fatalf("PutMetadata() error = %v", err)
	}

	obj, ok := client.objects["tourist/metadata/host-1/db"]
	if !ok {
		t.Fatalf("object not stored under expected key, have %v", client.objects)
	}
	if got := obj.metadata[versionMetaKey]; got != "20240102" {
		t.Errorf("version metadata = %q, want %q", got, "20240102")
	}
}

func TestS3Vault_BadVersionMetadata(t *testing.T) {
	client := newFakeS3()
	client.objects["metadata/host-1/db"] = fakeObject{
		data:     []byte("data"),
		metadata: map[string]string{versionMetaKey: "not-a-number"},
	}
	v := NewS3VaultWithClient("test", "snapshots", "", client)

	if _, err := v.GetMetadataVersion("host-1", "db"); err == nil {
		t.Error("GetMetadataVersion() expected error for malformed version")
	}
}

func TestS3Vault_ValidateSetupBucketError(t *testing.T) {
	client := newFakeS3()
	client.bucketErr = errors.New("access denied")
	v := NewS3VaultWithClient("test", "snapshots", "", client)

	if err := v.ValidateSetup(); err == nil {
		t.Error("ValidateSetup() expected error when bucket is not accessible")
	}
}
