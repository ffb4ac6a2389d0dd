package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"github.com/disintegration/imaging"
	"golang.org/x/image/webp"
)

// DecodeImage decodes PNG, JPEG, or WebP bytes into an image.Image.
// WebP decode uses golang.org/x/image/webp (there is no pure-Go WebP
// encoder in this stack, so encoding routes through Encoder.Transcode
// instead — see subprocess.go).
func DecodeImage(format Format, r io.Reader) (image.Image, error) {
	switch format {
	case FormatPNG:
		return png.Decode(r)
	case FormatJPEG:
		return jpeg.Decode(r)
	case FormatWebP:
		return webp.Decode(r)
	default:
		return nil, fmt.Errorf("media: %s is not a decodable image format", format)
	}
}

// EncodeImage encodes img as PNG or JPEG. Any other target format isn't
// reachable through this function — callers route webp/video/audio
// targets through the external encoder subprocess instead.
func EncodeImage(format Format, img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, err
		}
	case FormatJPEG:
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(92)); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("media: %s is not directly encodable, route through the subprocess encoder", format)
	}
	return buf.Bytes(), nil
}

// TranscodeImage decodes src (whose format is sniffed) and re-encodes to
// dstFormat, returning the encoded bytes. It is used for the "otherwise
// routes to the image encoder" branch of output post-processing.
func TranscodeImage(src []byte, dstFormat Format) ([]byte, error) {
	srcFormat, err := Sniff(src)
	if err != nil {
		return nil, err
	}
	img, err := DecodeImage(srcFormat, bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("media: decoding %s: %w", srcFormat, err)
	}
	if dstFormat == FormatWebP {
		return nil, fmt.Errorf("media: %w", ErrEncoderUnavailable)
	}
	return EncodeImage(dstFormat, img)
}
