package service

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

var (
	pngHeader  = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0}
	jpegHeader = []byte{0xFF, 0xD8, 0xFF, 0xE0, 0, 0, 0, 0}
	gifHeader  = []byte("GIF89a\x00\x00")
)

func TestValidateImage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		max  int64
		ext  string
		err  error
	}{
		{"png", pngHeader, 0, "png", nil},
		{"jpeg", jpegHeader, 0, "jpg", nil},
		{"gif", gifHeader, 0, "gif", nil},
		{"text", []byte("hello world"), 0, "", models.ErrInvalidImage},
		{"too large", pngHeader, 4, "", models.ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img, err := ValidateImage(tt.data, tt.max)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.ext, img.Extension)
		})
	}
}

func TestLocalMediaStore(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocalMediaStore(t.TempDir())
	require.NoError(t, err)

	img, err := ValidateImage(pngHeader, 0)
	require.NoError(t, err)
	ref, err := store.Save(ctx, img)
	require.NoError(t, err)
	assert.Contains(t, ref, ".png")

	data, err := store.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, pngHeader, data)

	require.NoError(t, store.Remove(ctx, ref))
	require.NoError(t, store.Remove(ctx, ref), "removing twice is fine")

	_, err = store.Load(ctx, ref)
	assert.ErrorIs(t, err, models.ErrMediaNotFound)

	_, err = store.Load(ctx, "../etc/passwd")
	assert.Error(t, err)
}

type fakeObjects struct {
	objects map[string][]byte
}

func (f *fakeObjects) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, _ := io.ReadAll(in.Body)
	f.objects[*in.Key] = b
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeObjects) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeObjects) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, *in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestR2MediaStore(t *testing.T) {
	ctx := context.Background()
	fake := &fakeObjects{objects: map[string][]byte{}}
	store := &r2MediaStore{client: fake, bucket: "media"}

	img, _ := ValidateImage(gifHeader, 0)
	ref, err := store.Save(ctx, img)
	require.NoError(t, err)

	data, err := store.Load(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, gifHeader, data)

	require.NoError(t, store.Remove(ctx, ref))
	_, err = store.Load(ctx, ref)
	assert.ErrorIs(t, err, models.ErrMediaNotFound)
}
