package media

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"social-chat/internal/domain"
	"social-chat/internal/models"
)

const (
	DefaultMaxFileSize = 50 << 20

	MaxPostFiles    = 5
	MaxMessageFiles = 1
	MaxAvatarFiles  = 1
)

var allowedTypes = map[string]string{
	"image/jpeg":      ".jpg",
	"image/jpg":       ".jpg",
	"image/png":       ".png",
	"video/mp4":       ".mp4",
	"video/quicktime": ".mov",
	"audio/mpeg":      ".mp3",
	"audio/mp3":       ".mp3",
	"audio/wav":       ".wav",
}

// Allowed reports whether a declared MIME type is accepted for upload.
func Allowed(contentType string) bool {
	_, ok := allowedTypes[normalizeType(contentType)]
	return ok
}

// File is one uploaded part. Open may be called more than once.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FromMultipart adapts a parsed multipart file header.
func FromMultipart(fh *multipart.FileHeader) File {
	return File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// Object is what a Storage driver receives.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
	Type        models.MediaType
}

// Storage persists objects and returns their public URL.
type Storage interface {
	Put(ctx context.Context, obj Object) (string, error)
	Delete(ctx context.Context, key string, kind models.MediaType) error
}

// Pipeline validates uploads and streams them to storage. Either every
// file in a request is stored or none is.
type Pipeline struct {
	Storage     Storage
	MaxFileSize int64
	Log         logrus.FieldLogger

	now   func() time.Time
	newID func() string
}

func NewPipeline(storage Storage, maxFileSize int64, log logrus.FieldLogger) *Pipeline {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Pipeline{
		Storage:     storage,
		MaxFileSize: maxFileSize,
		Log:         log,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

type checkedFile struct {
	File
	contentType string
	kind        models.MediaType
	ext         string
}

// Validate checks count, size and type of every file without uploading.
func (p *Pipeline) Validate(files []File, maxFiles int) error {
	_, err := p.check(files, maxFiles)
	return err
}

func (p *Pipeline) check(files []File, maxFiles int) ([]checkedFile, error) {
	if maxFiles > 0 && len(files) > maxFiles {
		return nil, domain.Invalid("media", fmt.Sprintf("at most %d files allowed", maxFiles))
	}
	out := make([]checkedFile, 0, len(files))
	for _, f := range files {
		cf, err := p.checkOne(f)
		if err != nil {
			return nil, err
		}
		out = append(out, cf)
	}
	return out, nil
}

func (p *Pipeline) checkOne(f File) (checkedFile, error) {
	declared := normalizeType(f.ContentType)
	ext, ok := allowedTypes[declared]
	if !ok {
		return checkedFile{}, domain.Invalid("media", fmt.Sprintf("file type %q is not allowed", f.ContentType))
	}
	if f.Size > p.MaxFileSize {
		return checkedFile{}, domain.Invalid("media", fmt.Sprintf("file %q exceeds %d MB", f.Name, p.MaxFileSize>>20))
	}
	kind, _ := models.MediaTypeFor(declared)

	sniffed, err := p.sniff(f)
	if err != nil {
		return checkedFile{}, err
	}
	if sniffedKind, ok := models.MediaTypeFor(sniffed); !ok || sniffedKind != kind {
		return checkedFile{}, domain.Invalid("media", fmt.Sprintf("file %q content does not match %s", f.Name, declared))
	}

	if nameExt := strings.ToLower(filepath.Ext(f.Name)); nameExt != "" {
		ext = nameExt
	}
	return checkedFile{File: f, contentType: declared, kind: kind, ext: ext}, nil
}

func (p *Pipeline) sniff(f File) (string, error) {
	if f.Open == nil {
		return "", domain.Invalid("media", "file has no content")
	}
	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	m, err := mimetype.DetectReader(rc)
	if err != nil {
		return "", fmt.Errorf("detect %s: %w", f.Name, err)
	}
	return m.String(), nil
}

// Upload validates all files, then stores them under keys namespaced by the
// uploader. A failed upload removes the objects already stored.
func (p *Pipeline) Upload(ctx context.Context, uploaderID int, files []File, maxFiles int) ([]models.Media, error) {
	checked, err := p.check(files, maxFiles)
	if err != nil {
		return nil, err
	}

	stored := make([]models.Media, 0, len(checked))
	for _, cf := range checked {
		m, err := p.put(ctx, uploaderID, cf)
		if err != nil {
			p.rollback(stored)
			return nil, err
		}
		stored = append(stored, m)
	}
	return stored, nil
}

func (p *Pipeline) put(ctx context.Context, uploaderID int, cf checkedFile) (models.Media, error) {
	rc, err := cf.Open()
	if err != nil {
		return models.Media{}, fmt.Errorf("open %s: %w", cf.Name, err)
	}
	defer rc.Close()

	key := ObjectKey(uploaderID, p.now(), p.newID(), cf.ext)
	url, err := p.Storage.Put(ctx, Object{
		Key:         key,
		ContentType: cf.contentType,
		Size:        cf.Size,
		Body:        io.LimitReader(rc, p.MaxFileSize),
		Type:        cf.kind,
	})
	if err != nil {
		return models.Media{}, fmt.Errorf("store %s: %w", cf.Name, err)
	}
	return models.Media{URL: url, Type: cf.kind, Key: key}, nil
}

// Discard removes objects stored by Upload when the owning entity could not
// be saved.
func (p *Pipeline) Discard(items []models.Media) {
	p.rollback(items)
}

func (p *Pipeline) rollback(items []models.Media) {
	for _, m := range items {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := p.Storage.Delete(ctx, m.Key, m.Type); err != nil && p.Log != nil {
			p.Log.WithError(err).WithField("key", m.Key).Warn("media rollback failed")
		}
		cancel()
	}
}

// ObjectKey builds {uploaderID}/{unixMillis}-{random}{ext}.
func ObjectKey(uploaderID int, at time.Time, random, ext string) string {
	return fmt.Sprintf("%d/%d-%s%s", uploaderID, at.UnixMilli(), random, ext)
}

func normalizeType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	return ct
}
