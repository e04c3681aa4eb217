package media

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/image/draw"

	"social-chat/internal/models"
)

// ErrVideoTooLarge is returned by Compress for videos over MaxVideoBytes.
var ErrVideoTooLarge = errors.New("video exceeds client size limit")

// Compressor shrinks attachments before upload. It is best-effort; the
// server pipeline stays authoritative.
type Compressor struct {
	MaxWidth      int
	MaxHeight     int
	JPEGQuality   int
	MaxVideoBytes int64
}

func DefaultCompressor() Compressor {
	return Compressor{
		MaxWidth:      1080,
		MaxHeight:     1440,
		JPEGQuality:   80,
		MaxVideoBytes: 100 << 20,
	}
}

// Attachment is a client-side file ready for upload.
type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Preview describes an attachment for optimistic rendering.
type Preview struct {
	Type   models.MediaType `json:"type"`
	Source string           `json:"source"`
	Name   string           `json:"name"`
	Size   int64            `json:"size"`
}

// Compress classifies the attachment and re-encodes images to fit the
// bounding box as JPEG. Videos and audio pass through.
func (c Compressor) Compress(in Attachment) (Attachment, error) {
	contentType := in.ContentType
	if contentType == "" {
		contentType = mimetype.Detect(in.Data).String()
	}
	kind, ok := models.MediaTypeFor(normalizeType(contentType))
	if !ok {
		return Attachment{}, fmt.Errorf("unsupported attachment type %q", contentType)
	}

	switch kind {
	case models.MediaVideo:
		if c.MaxVideoBytes > 0 && int64(len(in.Data)) > c.MaxVideoBytes {
			return Attachment{}, ErrVideoTooLarge
		}
		return Attachment{Name: in.Name, ContentType: contentType, Data: in.Data}, nil
	case models.MediaAudio:
		return Attachment{Name: in.Name, ContentType: contentType, Data: in.Data}, nil
	}

	src, _, err := image.Decode(bytes.NewReader(in.Data))
	if err != nil {
		return Attachment{}, fmt.Errorf("decode image: %w", err)
	}
	b := src.Bounds()
	w, h := FitWithin(b.Dx(), b.Dy(), c.MaxWidth, c.MaxHeight)

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: c.JPEGQuality}); err != nil {
		return Attachment{}, fmt.Errorf("encode image: %w", err)
	}
	name := strings.TrimSuffix(in.Name, filepath.Ext(in.Name)) + ".jpg"
	return Attachment{Name: name, ContentType: "image/jpeg", Data: buf.Bytes()}, nil
}

// FitWithin scales w×h down to fit maxW×maxH keeping the aspect ratio.
// Images already inside the box are returned unchanged.
func FitWithin(w, h, maxW, maxH int) (int, int) {
	if w <= 0 || h <= 0 {
		return w, h
	}
	if (maxW <= 0 || w <= maxW) && (maxH <= 0 || h <= maxH) {
		return w, h
	}
	scale := 1.0
	if maxW > 0 && w > maxW {
		scale = float64(maxW) / float64(w)
	}
	if maxH > 0 && float64(h)*scale > float64(maxH) {
		scale = float64(maxH) / float64(h)
	}
	nw, nh := int(float64(w)*scale+0.5), int(float64(h)*scale+0.5)
	if nw < 1 {
		nw = 1
	}
	if nh < 1 {
		nh = 1
	}
	return nw, nh
}

// PreviewFor builds the descriptor shown while the upload is in flight.
func PreviewFor(a Attachment, source string) Preview {
	kind, _ := models.MediaTypeFor(normalizeType(a.ContentType))
	return Preview{Type: kind, Source: source, Name: a.Name, Size: int64(len(a.Data))}
}
