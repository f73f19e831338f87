package storage_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/chrisdd2/federated-login/internal/services/storage"
	"github.com/chrisdd2/federated-login/internal/services/storage/storagetest"
	"github.com/chrisdd2/federated-login/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryStore(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		return storage.NewInMemoryStore()
	})
}

func TestInMemoryStore_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	st := storage.NewInMemoryStore()
	require.NoError(t, st.CreateProfile(ctx, storagetest.AnnLee()))

	got, err := st.GetProfile(ctx, "g123")
	require.NoError(t, err)
	got.DisplayName = "mutated"
	got.Emails[0].Value = "mutated"

	again, err := st.GetProfile(ctx, "g123")
	require.NoError(t, err)
	assert.Equal(t, "Ann Lee", again.DisplayName)
	assert.Equal(t, "ann@example.com", again.PrimaryEmail())
	assert.Equal(t, 1, st.Len())
}

func TestFileStore_Local(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		st, err := storage.NewFileStore(t.TempDir(), nil)
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		return st
	})
}

func TestFileStore_LongIds(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	st, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	defer st.Close()

	for _, id := range []string{
		strings.Repeat("x", 255),
		"https://openid.example.com/" + strings.Repeat("a/", 150),
	} {
		p := &model.UserProfile{Provider: model.ProviderGoogle, Id: id, DisplayName: "Ann Lee"}
		require.NoError(t, st.CreateProfile(ctx, p))
		got, err := st.GetProfile(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, id, got.Id)
	}
	entries, err := os.ReadDir(filepath.Join(dir, "profiles"))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Len(t, e.Name(), 64+len(".json"))
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, storage.Validate(&model.UserProfile{Provider: model.ProviderGoogle, Id: "g123"}))
	assert.ErrorIs(t, storage.Validate(nil), storage.ErrInvalidProfile)
	assert.ErrorIs(t, storage.Validate(&model.UserProfile{Provider: model.ProviderGoogle}), storage.ErrInvalidProfile)
	assert.ErrorIs(t, storage.Validate(&model.UserProfile{Id: "g123"}), storage.ErrInvalidProfile)
}

func TestFileStore_LocalEvents(t *testing.T) {
	dir := t.TempDir()
	st, err := storage.NewFileStore(dir, nil)
	require.NoError(t, err)
	require.NoError(t, st.Publish(context.Background(), storage.EventProfileCreated, map[string]string{"id": "g123"}))
	require.NoError(t, st.Close())

	f, err := os.Open(filepath.Join(dir, "events.json"))
	require.NoError(t, err)
	defer f.Close()
	sc := bufio.NewScanner(f)
	require.True(t, sc.Scan())
	ev := storage.Event{}
	require.NoError(t, json.Unmarshal(sc.Bytes(), &ev))
	assert.Equal(t, storage.EventProfileCreated, ev.Type)
	assert.Equal(t, "g123", ev.Metadata["id"])
	assert.NotEmpty(t, ev.Id)
}

func TestFileStore_S3(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Storage {
		st, err := storage.NewFileStore("s3://profiles-bucket/app", newFakeS3())
		require.NoError(t, err)
		return st
	})
}

func TestFileStore_S3Layout(t *testing.T) {
	fake := newFakeS3()
	st, err := storage.NewFileStore("s3://profiles-bucket/app/", fake)
	require.NoError(t, err)
	require.NoError(t, st.CreateProfile(context.Background(), storagetest.AnnLee()))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.objects, 1)
	for key := range fake.objects {
		assert.Equal(t, "profiles-bucket/app/profiles/105c683d740ef420cd26e9d73b4252f171a8f4c1c3a600ce645fb8eaff31467f.json", key)
	}
}

func TestFileStore_S3RequiresClient(t *testing.T) {
	_, err := storage.NewFileStore("s3://bucket", nil)
	assert.ErrorIs(t, err, storage.ErrMissingS3Client)
}

func TestFileStore_S3Errors(t *testing.T) {
	fake := newFakeS3()
	fake.failWith = &smithy.GenericAPIError{Code: "AccessDenied", Message: "denied"}
	st, err := storage.NewFileStore("s3://bucket", fake)
	require.NoError(t, err)

	_, err = st.GetProfile(context.Background(), "g123")
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrProfileNotFound)

	err = st.CreateProfile(context.Background(), storagetest.AnnLee())
	require.Error(t, err)
	assert.NotErrorIs(t, err, storage.ErrProfileExists)
}

// fakeS3 honours If-None-Match the way the real service does
type fakeS3 struct {
	mu       sync.Mutex
	objects  map[string][]byte
	failWith error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}}
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	buf, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("not found")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(buf))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	key := aws.ToString(params.Bucket) + "/" + aws.ToString(params.Key)
	if _, ok := f.objects[key]; ok && aws.ToString(params.IfNoneMatch) == "*" {
		return nil, &smithy.GenericAPIError{Code: "PreconditionFailed", Message: "At least one of the pre-conditions you specified did not hold"}
	}
	buf, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = buf
	return &s3.PutObjectOutput{}, nil
}
