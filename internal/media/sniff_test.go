package media

import (
	"encoding/base64"
	"testing"
)

func TestSniffBase64RoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		prefix []byte
		want   Format
	}{
		{"png", []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, FormatPNG},
		{"jpeg", []byte{0xFF, 0xD8, 0xFF, 0xE0}, FormatJPEG},
		{"zip", []byte("PK\x03\x04"), FormatZIP},
		{"ogg", []byte("OggS"), FormatOGG},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			payload := append(append([]byte{}, tc.prefix...), []byte("padding-bytes-to-make-it-realistic")...)
			b64 := base64.StdEncoding.EncodeToString(payload)
			got, _, err := SniffBase64(b64)
			if err != nil {
				t.Fatalf("SniffBase64: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSniffWAVvsWebP(t *testing.T) {
	wav := append([]byte("RIFF"), []byte{0, 0, 0, 0}...)
	wav = append(wav, []byte("WAVEfmt ")...)
	if f, err := Sniff(wav); err != nil || f != FormatWAV {
		t.Fatalf("wav: got %v, %v", f, err)
	}

	webp := append([]byte("RIFF"), []byte{0, 0, 0, 0}...)
	webp = append(webp, []byte("WEBPVP8 ")...)
	if f, err := Sniff(webp); err != nil || f != FormatWebP {
		t.Fatalf("webp: got %v, %v", f, err)
	}
}

func TestSniffDataURLPrefix(t *testing.T) {
	raw := append([]byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, []byte("rest")...)
	b64 := "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw)
	got, decoded, err := SniffBase64(b64)
	if err != nil {
		t.Fatalf("SniffBase64: %v", err)
	}
	if got != FormatPNG {
		t.Errorf("got %s, want png", got)
	}
	if len(decoded) != len(raw) {
		t.Errorf("decoded length mismatch: got %d want %d", len(decoded), len(raw))
	}
}

func TestSniffTextFallback(t *testing.T) {
	b64 := base64.StdEncoding.EncodeToString([]byte("hello world, this is plain text"))
	got, _, err := SniffBase64(b64)
	if err != nil {
		t.Fatalf("SniffBase64: %v", err)
	}
	if got != FormatText {
		t.Errorf("got %s, want text", got)
	}
}

func TestSniffUnrecognized(t *testing.T) {
	junk := []byte{0x01, 0x02, 0x03, 0xFF, 0xFE, 0x00, 0x10, 0x11}
	b64 := base64.StdEncoding.EncodeToString(junk)
	_, _, err := SniffBase64(b64)
	if err == nil {
		t.Fatal("expected an error for unrecognized binary junk")
	}
}
