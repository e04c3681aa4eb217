package media

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"social-chat/internal/models"
)

// CloudinaryStorage stores objects under folder/key without the extension,
// which Cloudinary appends to delivery URLs itself.
type CloudinaryStorage struct {
	cld    *cloudinary.Cloudinary
	folder string
}

func NewCloudinaryStorage(url, folder string) (*CloudinaryStorage, error) {
	cld, err := cloudinary.NewFromURL(url)
	if err != nil {
		return nil, fmt.Errorf("cloudinary: %w", err)
	}
	return &CloudinaryStorage{cld: cld, folder: folder}, nil
}

func (s *CloudinaryStorage) Put(ctx context.Context, obj Object) (string, error) {
	res, err := s.cld.Upload.Upload(ctx, obj.Body, uploader.UploadParams{
		PublicID:     publicID(obj.Key),
		Folder:       s.folder,
		ResourceType: resourceType(obj.Type),
	})
	if err != nil {
		return "", err
	}
	if res.Error.Message != "" {
		return "", fmt.Errorf("cloudinary: %s", res.Error.Message)
	}
	return res.SecureURL, nil
}

func (s *CloudinaryStorage) Delete(ctx context.Context, key string, kind models.MediaType) error {
	id := publicID(key)
	if s.folder != "" {
		id = s.folder + "/" + id
	}
	_, err := s.cld.Upload.Destroy(ctx, uploader.DestroyParams{
		PublicID:     id,
		ResourceType: resourceType(kind),
	})
	return err
}

func publicID(key string) string {
	return strings.TrimSuffix(key, path.Ext(key))
}

// resourceType maps to Cloudinary's buckets; audio lives under "video".
func resourceType(kind models.MediaType) string {
	if kind == models.MediaImage {
		return "image"
	}
	return "video"
}
