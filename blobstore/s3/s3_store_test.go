package s3

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/plotgen/blobstore"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) HeadObject(ctx context.Context, params *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.HeadObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockClient) DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	args := m.Called(ctx, params)
	if out := args.Get(0); out != nil {
		return out.(*s3.DeleteObjectOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockUploader struct {
	mock.Mock
}

func (m *mockUploader) Upload(ctx context.Context, input *s3.PutObjectInput, _ ...func(*manager.Uploader)) (*manager.UploadOutput, error) {
	body, _ := io.ReadAll(input.Body)
	args := m.Called(ctx, input, string(body))
	if out := args.Get(0); out != nil {
		return out.(*manager.UploadOutput), args.Error(1)
	}
	return nil, args.Error(1)
}

func TestStore_Put(t *testing.T) {
	client, uploader := new(mockClient), new(mockUploader)
	store := newStore(client, uploader, "bucket", "plots", true)

	uploader.On("Upload", mock.Anything, mock.MatchedBy(func(in *s3.PutObjectInput) bool {
		return *in.Bucket == "bucket" && *in.Key == "plots/table_1.bin" &&
			in.ChecksumAlgorithm == types.ChecksumAlgorithmCrc32c
	}), "payload").Return(&manager.UploadOutput{}, nil).Once()

	require.NoError(t, store.Put(context.Background(), "table_1.bin", strings.NewReader("payload"), 7))
	uploader.AssertExpectations(t)
}

func TestStore_PutError(t *testing.T) {
	uploader := new(mockUploader)
	store := newStore(new(mockClient), uploader, "bucket", "", false)

	uploader.On("Upload", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("denied")).Once()
	assert.EqualError(t, store.Put(context.Background(), "x", strings.NewReader("x"), 1), "denied")
}

func TestStore_Stat(t *testing.T) {
	client := new(mockClient)
	store := newStore(client, new(mockUploader), "bucket", "prefix", false)

	t.Run("NotFound", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(input *s3.HeadObjectInput) bool {
			return *input.Key == "prefix/foo"
		})).Return(nil, &types.NotFound{}).Once()

		_, err := store.Stat(context.Background(), "foo")
		assert.ErrorIs(t, err, blobstore.ErrNotFound)
	})

	t.Run("Success", func(t *testing.T) {
		client.On("HeadObject", mock.Anything, mock.MatchedBy(func(input *s3.HeadObjectInput) bool {
			return *input.Bucket == "bucket" && *input.Key == "prefix/bar"
		})).Return(&s3.HeadObjectOutput{ContentLength: aws.Int64(104)}, nil).Once()

		size, err := store.Stat(context.Background(), "bar")
		require.NoError(t, err)
		assert.Equal(t, int64(104), size)
	})
}

func TestStore_Delete(t *testing.T) {
	client := new(mockClient)
	store := newStore(client, new(mockUploader), "bucket", "prefix", false)

	client.On("DeleteObject", mock.Anything, mock.MatchedBy(func(input *s3.DeleteObjectInput) bool {
		return *input.Bucket == "bucket" && *input.Key == "prefix/del"
	})).Return(&s3.DeleteObjectOutput{}, nil).Once()

	assert.NoError(t, store.Delete(context.Background(), "del"))
	client.AssertExpectations(t)
}
