package media

import (
	"context"
	"testing"
)

func TestFormatFromExtension(t *testing.T) {
	cases := map[string]Format{
		"mp4":  FormatMP4,
		".mp4": FormatMP4,
		"wav":  FormatWAV,
		"mov":  FormatMP4,
		"png":  "",
	}
	for ext, want := range cases {
		got, ok := FormatFromExtension(ext)
		if want == "" {
			if ok {
				t.Errorf("%s: expected no match, got %s", ext, got)
			}
			continue
		}
		if !ok || got != want {
			t.Errorf("%s: got %s,%v want %s", ext, got, ok, want)
		}
	}
}

func TestIsMediaFormat(t *testing.T) {
	for _, f := range []Format{FormatMP4, FormatWebM, FormatMP3, FormatWAV, FormatOGG} {
		if !IsMediaFormat(f) {
			t.Errorf("%s should be a media format", f)
		}
	}
	for _, f := range []Format{FormatPNG, FormatJPEG, FormatWebP} {
		if IsMediaFormat(f) {
			t.Errorf("%s should not be a media format", f)
		}
	}
}

func TestTranscodeWithoutEncoderFailsClosed(t *testing.T) {
	tr := NewTranscoder(nil)
	png := []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 'r', 'e', 's', 't'}
	_, err := tr.Transcode(context.Background(), "image.png", png, FormatWebP)
	if err == nil {
		t.Fatal("expected an error transcoding to webp with no encoder configured")
	}
}
