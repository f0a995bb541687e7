// Package imageio decodes and encodes images and converts them to and from
// the interleaved pixel buffers the upscaling engine consumes.
package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"go_waifu2x/core"
	"go_waifu2x/w2xruntime"
)

// Image conversion errors
var (
	ErrInvalidImage      = errors.New("imageio: invalid image data")
	ErrUnsupportedFormat = errors.New("imageio: unsupported image format")
	ErrEmptyImage        = errors.New("imageio: empty image data")
)

// Format is an output encoding.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

// DefaultJPEGQuality is used when Encode is given quality 0.
const DefaultJPEGQuality = 95

// DecodeImage decodes PNG, JPEG, GIF, BMP, TIFF or WebP data and returns
// the image with the detected format name.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", ErrEmptyImage
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, "", fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
		}
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return img, format, nil
}

// DecodeFile reads and decodes an image file. Undecodable content in a
// file with a supported extension is ErrInvalidImage; ErrUnsupportedFormat
// is reserved for unknown extensions.
func DecodeFile(path string) (image.Image, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("read %s: %w", path, err)
	}
	img, format, err := DecodeImage(data)
	if err != nil && errors.Is(err, ErrUnsupportedFormat) && IsSupportedInput(path) {
		return nil, "", fmt.Errorf("%w: %s is not a valid %s file", ErrInvalidImage, filepath.Base(path), strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."))
	}
	return img, format, err
}

// IsSupportedInput reports whether path has an extension DecodeImage handles.
func IsSupportedInput(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png", ".jpg", ".jpeg", ".gif", ".bmp", ".tif", ".tiff", ".webp":
		return true
	}
	return false
}

// FormatFromPath picks the output format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		return FormatPNG, nil
	case ".jpg", ".jpeg":
		return FormatJPEG, nil
	case ".bmp":
		return FormatBMP, nil
	case ".tif", ".tiff":
		return FormatTIFF, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
}

// ParseFormat accepts a format name such as "png" or "jpg".
func ParseFormat(name string) (Format, error) {
	return FormatFromPath("." + strings.TrimPrefix(name, "."))
}

// Extension returns the canonical file extension for f.
func (f Format) Extension() string {
	switch f {
	case FormatJPEG:
		return ".jpg"
	case FormatTIFF:
		return ".tif"
	default:
		return "." + string(f)
	}
}

// Encode writes img to w. quality applies to JPEG only.
func Encode(w io.Writer, img image.Image, format Format, quality int) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = DefaultJPEGQuality
		}
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	case FormatBMP:
		return bmp.Encode(w, img)
	case FormatTIFF:
		return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// EncodeFile writes img to path. The data goes to path+".partial" first and
// is renamed into place once complete.
func EncodeFile(path string, img image.Image, quality int) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	tmp := path + core.PartialSuffix
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	if err := Encode(f, img, format, quality); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// ChannelsFor returns the channel count an image is upscaled with.
// Grayscale and other opaque images become RGB; images that can carry
// transparency become RGBA.
func ChannelsFor(img image.Image) int {
	switch img.(type) {
	case *image.Gray, *image.Gray16, *image.YCbCr, *image.CMYK:
		return 3
	}
	if o, ok := img.(interface{ Opaque() bool }); ok && o.Opaque() {
		return 3
	}
	return 4
}

// ToPixelBuffer converts img using the channel count from ChannelsFor.
func ToPixelBuffer(img image.Image) (w2xruntime.PixelBuffer, error) {
	return ToPixelBufferChannels(img, ChannelsFor(img))
}

// ToPixelBufferChannels converts img to an interleaved buffer with the given
// channel count (1 gray, 2 gray+alpha, 3 RGB, 4 RGBA). Alpha is straight,
// not premultiplied.
func ToPixelBufferChannels(img image.Image, channels int) (w2xruntime.PixelBuffer, error) {
	if img == nil {
		return w2xruntime.PixelBuffer{}, ErrEmptyImage
	}
	b := img.Bounds()
	buf, err := w2xruntime.NewPixelBuffer(b.Dx(), b.Dy(), channels)
	if err != nil {
		return w2xruntime.PixelBuffer{}, err
	}

	nrgba := toNRGBA(img)
	n := b.Dx() * b.Dy()
	for i := 0; i < n; i++ {
		p := nrgba.Pix[i*4 : i*4+4]
		o := buf.Data[i*channels : i*channels+channels]
		switch channels {
		case 1:
			o[0] = luma(p)
		case 2:
			o[0], o[1] = luma(p), p[3]
		case 3:
			o[0], o[1], o[2] = p[0], p[1], p[2]
		case 4:
			copy(o, p)
		}
	}
	return buf, nil
}

// FromPixelBuffer converts an interleaved buffer into an image:
// 1 channel gives *image.Gray, anything else *image.NRGBA.
func FromPixelBuffer(buf w2xruntime.PixelBuffer) (image.Image, error) {
	if err := buf.Validate(); err != nil {
		return nil, err
	}
	rect := image.Rect(0, 0, buf.Width, buf.Height)

	if buf.Channels == 1 {
		img := image.NewGray(rect)
		copy(img.Pix, buf.Data)
		return img, nil
	}

	img := image.NewNRGBA(rect)
	n := buf.Width * buf.Height
	for i := 0; i < n; i++ {
		s := buf.Data[i*buf.Channels:]
		d := img.Pix[i*4 : i*4+4]
		switch buf.Channels {
		case 2:
			d[0], d[1], d[2], d[3] = s[0], s[0], s[0], s[1]
		case 3:
			d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 0xff
		case 4:
			copy(d, s[:4])
		}
	}
	return img, nil
}

// toNRGBA returns img as a zero-origin NRGBA image, copying when needed.
func toNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && b.Min == (image.Point{}) && n.Stride == b.Dx()*4 {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

func luma(p []byte) byte {
	y := color.GrayModel.Convert(color.NRGBA{R: p[0], G: p[1], B: p[2], A: 0xff}).(color.Gray)
	return y.Y
}
