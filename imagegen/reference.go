package imagegen

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	_ "image/gif"
	_ "image/jpeg"

	"golang.org/x/image/draw"
)

// maxReferenceDimension is the largest width or height the edit endpoint
// accepts without the payload growing past the upload limit.
const maxReferenceDimension = 1024

// PrepareReference normalizes a user-supplied reference image for the edit
// endpoint: it decodes PNG, JPEG, or GIF input, downscales anything larger
// than maxReferenceDimension on its longest side, and re-encodes as PNG.
//
// Already-conforming PNG input is still re-encoded so the caller always
// gets a clean single-frame PNG regardless of source format.
func PrepareReference(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("reference image is empty")
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding reference image: %w", err)
	}

	bounds := src.Bounds()
	width := bounds.Dx()
	height := bounds.Dy()
	if width == 0 || height == 0 {
		return nil, fmt.Errorf("reference image has zero dimension (%s, %dx%d)", format, width, height)
	}

	if longest := max(width, height); longest > maxReferenceDimension {
		scale := float64(maxReferenceDimension) / float64(longest)
		scaledWidth := int(float64(width) * scale)
		scaledHeight := int(float64(height) * scale)
		if scaledWidth < 1 {
			scaledWidth = 1
		}
		if scaledHeight < 1 {
			scaledHeight = 1
		}

		dst := image.NewRGBA(image.Rect(0, 0, scaledWidth, scaledHeight))
		draw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, draw.Over, nil)
		src = dst
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, src); err != nil {
		return nil, fmt.Errorf("encoding reference image: %w", err)
	}
	return buf.Bytes(), nil
}
