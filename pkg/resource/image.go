package resource

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// DefaultResizeWidth is the target width for distribution copies
const DefaultResizeWidth = 2400

// DecodeImage decodes an in-memory image
func DecodeImage(content []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Dimensions reads an image's pixel size without decoding the full
// frame. Non-image content (video files) yields an error; callers
// treat dimensions as optional metadata.
func Dimensions(content []byte) (width, height int, err error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read image dimensions: %w", err)
	}
	return cfg.Width, cfg.Height, nil
}

// Resize downscales an image to the target width preserving aspect
// ratio. Images already at or below the target width are returned
// unchanged. Callers should degrade to the original content on error
// rather than dropping the file.
func Resize(img image.Image, targetWidth int) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("cannot resize nil image")
	}
	if targetWidth <= 0 {
		targetWidth = DefaultResizeWidth
	}

	bounds := img.Bounds()
	if bounds.Dx() <= targetWidth {
		return img, nil
	}

	return imaging.Resize(img, targetWidth, 0, imaging.Lanczos), nil
}

// EncodeJPEG re-encodes an image as JPEG bytes, used to derive the
// content hash of the distributed copy.
func EncodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}
	return buf.Bytes(), nil
}
