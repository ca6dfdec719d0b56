package service

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/h2non/filetype"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/maheshrc27/linkedin-scheduler/internal/models"
)

var allowedImageTypes = map[string]struct{}{
	"png": {}, "jpg": {}, "gif": {},
}

// Image is an upload that passed validation.
type Image struct {
	Data      []byte
	Extension string
	MIME      string
}

// ValidateImage sniffs data and accepts png, jpeg and gif up to maxBytes.
func ValidateImage(data []byte, maxBytes int64) (*Image, error) {
	if maxBytes > 0 && int64(len(data)) > maxBytes {
		return nil, models.ErrImageTooLarge
	}
	kind, err := filetype.Image(data)
	if err != nil || kind == filetype.Unknown {
		return nil, models.ErrInvalidImage
	}
	if _, ok := allowedImageTypes[kind.Extension]; !ok {
		return nil, models.ErrInvalidImage
	}
	return &Image{Data: data, Extension: kind.Extension, MIME: kind.MIME.Value}, nil
}

// MediaStore keeps validated post images until the post is deleted.
type MediaStore interface {
	Save(ctx context.Context, img *Image) (string, error)
	// Load returns models.ErrMediaNotFound when ref does not exist.
	Load(ctx context.Context, ref string) ([]byte, error)
	Remove(ctx context.Context, ref string) error
}

func newObjectName(ext string) (string, error) {
	id, err := gonanoid.New()
	if err != nil {
		return "", err
	}
	return id + "." + ext, nil
}

type localMediaStore struct {
	dir string
}

func NewLocalMediaStore(dir string) (MediaStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &localMediaStore{dir: dir}, nil
}

func (s *localMediaStore) path(ref string) (string, error) {
	name := filepath.Base(ref)
	if name != ref || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid media ref %q", ref)
	}
	return filepath.Join(s.dir, name), nil
}

func (s *localMediaStore) Save(_ context.Context, img *Image) (string, error) {
	name, err := newObjectName(img.Extension)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(filepath.Join(s.dir, name), img.Data, 0o644); err != nil {
		log.Error().Err(err).Str("media_ref", name).Msg("write media")
		return "", err
	}
	return name, nil
}

func (s *localMediaStore) Load(_ context.Context, ref string) ([]byte, error) {
	p, err := s.path(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, models.ErrMediaNotFound
	}
	return data, err
}

func (s *localMediaStore) Remove(_ context.Context, ref string) error {
	p, err := s.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
