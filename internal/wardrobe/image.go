package wardrobe

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"golang.org/x/image/draw"

	"github.com/closetiq/closetiq/internal/governor"
)

// ImageOptions bound what is uploaded for classification.
type ImageOptions struct {
	// MaxDimension is the longest edge in pixels; 0 disables downscaling
	MaxDimension int
	JPEGQuality  int
	// MaxBytes rejects larger inputs before any work; 0 disables the check
	MaxBytes int
}

// DefaultImageOptions returns the upload defaults.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		MaxDimension: 1024,
		JPEGQuality:  85,
		MaxBytes:     10 << 20,
	}
}

// ErrImageTooLarge is returned when the input exceeds MaxBytes.
var ErrImageTooLarge = errors.New("image file is too large, please use a smaller image")

// PrepareImage turns raw image bytes into the multipart part sent to the
// classifier, downscaling when the longest edge exceeds MaxDimension.
func PrepareImage(name string, data []byte, opts ImageOptions) (governor.File, error) {
	if len(data) == 0 {
		return governor.File{}, errors.New("image is empty")
	}
	if opts.MaxBytes > 0 && len(data) > opts.MaxBytes {
		return governor.File{}, ErrImageTooLarge
	}
	if strings.TrimSpace(name) == "" {
		name = "upload.jpg"
	}

	part := governor.File{
		Field:       "image",
		Name:        filepath.Base(name),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return governor.File{}, fmt.Errorf("unsupported image: %w", err)
	}
	if opts.MaxDimension <= 0 || max(cfg.Width, cfg.Height) <= opts.MaxDimension {
		return part, nil
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return governor.File{}, fmt.Errorf("decode image: %w", err)
	}

	var buf bytes.Buffer
	if err := scaleImage(&buf, src, opts.MaxDimension, format, opts.JPEGQuality); err != nil {
		return governor.File{}, err
	}

	part.Data = buf.Bytes()
	if format == "png" {
		part.ContentType = "image/png"
	} else {
		part.ContentType = "image/jpeg"
		part.Name = strings.TrimSuffix(part.Name, filepath.Ext(part.Name)) + ".jpg"
	}
	return part, nil
}

func scaleImage(w io.Writer, src image.Image, maxSize int, format string, jpegQuality int) error {
	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width <= 0 || height <= 0 {
		return errors.New("invalid image dimensions")
	}

	scale := float64(maxSize) / float64(max(width, height))
	if scale > 1 {
		scale = 1
	}
	newW := max(int(float64(width)*scale), 1)
	newH := max(int(float64(height)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)

	if format == "png" {
		return png.Encode(w, dst)
	}
	q := min(max(jpegQuality, 1), 100)
	return jpeg.Encode(w, dst, &jpeg.Options{Quality: q})
}
