// Package stdcodec provides a model.DecoderFactory built on the standard
// library's image/jpeg, image/png, and image/gif decoders. No example repo
// in the corpus this module was grounded on imports a third-party image
// codec (no golang.org/x/image, disintegration/imaging, or webp dependency
// appears anywhere in the reference set), so this is the one component in
// the tree that reaches past the corpus into the standard library: there
// is no ecosystem precedent here to follow instead.
package stdcodec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/ManuGH/imagepipeline/internal/imagepipeline/model"
)

// decoder wraps a single load's accumulated bytes. The standard library
// decoders have no incremental API, so partial (non-final) calls are
// no-ops: only the final call, once the full body is buffered, produces an
// image.
type decoder struct {
	scans int
}

// NewFactory returns a model.DecoderFactory. The sample and transport
// response are unused: format detection happens lazily at Decode time via
// image.Decode's built-in sniffing.
func NewFactory() model.DecoderFactory {
	return func(_ model.Request, _ *model.TransportResponse, _ []byte) (model.Decoder, error) {
		return &decoder{}, nil
	}
}

func (d *decoder) Decode(_ context.Context, data []byte, isFinal bool) (model.Image, error) {
	if !isFinal {
		return nil, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("stdcodec: decode: %w", err)
	}
	d.scans++
	return &Image{img: img, format: format}, nil
}

func (d *decoder) NumberOfScans() int { return d.scans }

// Image adapts the standard library's image.Image to model.Image, which is
// an empty interface in this tree (processors type-assert to whatever
// concrete shape they expect).
type Image struct {
	img    image.Image
	format string
}

// Decoded returns the underlying standard library image.
func (i *Image) Decoded() image.Image { return i.img }

// Format returns the sniffed format name ("jpeg", "png", "gif").
func (i *Image) Format() string { return i.format }

// Bounds is a convenience passthrough used by processors that only need
// dimensions.
func (i *Image) Bounds() image.Rectangle { return i.img.Bounds() }
