package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/plotgen/blobstore"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, _ := io.ReadAll(reader)
	args := m.Called(ctx, bucketName, objectName, data, objectSize)
	return args.Get(0).(minio.UploadInfo), args.Error(1)
}

func (m *mockClient) StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error) {
	args := m.Called(ctx, bucketName, objectName)
	return args.Get(0).(minio.ObjectInfo), args.Error(1)
}

func (m *mockClient) RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error {
	args := m.Called(ctx, bucketName, objectName)
	return args.Error(0)
}

func TestStore_Put(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "plots", "run-1/")

	client.On("PutObject", mock.Anything, "plots", "run-1/table_0.bin", []byte("data"), int64(4)).
		Return(minio.UploadInfo{Size: 4}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "table_0.bin", bytes.NewReader([]byte("data")), 4))
	client.AssertExpectations(t)
}

func TestStore_Stat(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "plots", "")

	client.On("StatObject", mock.Anything, "plots", "found").Return(minio.ObjectInfo{Size: 52}, nil).Once()
	client.On("StatObject", mock.Anything, "plots", "gone").
		Return(minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey"}).Once()

	size, err := store.Stat(context.Background(), "found")
	require.NoError(t, err)
	assert.Equal(t, int64(52), size)

	_, err = store.Stat(context.Background(), "gone")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "plots", "p")

	client.On("RemoveObject", mock.Anything, "plots", "p/missing").Return(minio.ErrorResponse{Code: "NotFound"}).Once()
	client.On("RemoveObject", mock.Anything, "plots", "p/broken").Return(errors.New("boom")).Once()

	assert.NoError(t, store.Delete(context.Background(), "missing"))
	assert.Error(t, store.Delete(context.Background(), "broken"))
}

func TestStore_Publish(t *testing.T) {
	client := new(mockClient)
	store := NewStore(client, "plots", "")

	client.On("PutObject", mock.Anything, "plots", "a", mock.Anything, mock.Anything).Return(minio.UploadInfo{}, nil)
	client.On("StatObject", mock.Anything, "plots", "a").Return(minio.ObjectInfo{Size: 1}, nil)

	path := filepath.Join(t.TempDir(), "a")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	n, err := blobstore.Publish(context.Background(), store, nil, []blobstore.File{{Name: "a", Path: path}}, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
