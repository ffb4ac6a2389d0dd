// Package media implements the Media I/O component: base64 magic-byte
// sniffing, image transcoding (disintegration/imaging + golang.org/x/image
// for PNG/JPEG/WebP-decode), a subprocess-driven path for everything else
// (WebP-encode, video, audio) via an external encoder, and zip archiving
// of post-processed outputs.
package media

import (
	"bytes"
	"encoding/base64"
	"strings"
)

// Format is a recognized file kind, named by the canonical extension
// used throughout the gateway (without a leading dot).
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
	FormatMP4  Format = "mp4"
	FormatWebM Format = "webm"
	FormatMP3  Format = "mp3"
	FormatWAV  Format = "wav"
	FormatOGG  Format = "ogg"
	FormatZIP  Format = "zip"
	FormatPDF  Format = "pdf"
	FormatTTF  Format = "ttf"
	FormatText Format = "txt"
)

// magicEntry pairs a byte prefix (and optional offset) with the format it
// identifies.
type magicEntry struct {
	offset int
	prefix []byte
	format Format
}

// magicTable is checked in order; more specific/longer prefixes are
// listed before looser ones sharing a common start.
var magicTable = []magicEntry{
	{0, []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}, FormatPNG},
	{0, []byte{0xFF, 0xD8, 0xFF}, FormatJPEG},
	{8, []byte("WEBP"), FormatWebP},
	{4, []byte("ftyp"), FormatMP4},
	{0, []byte{0x1A, 0x45, 0xDF, 0xA3}, FormatWebM},
	{0, []byte{0x49, 0x44, 0x33}, FormatMP3}, // ID3-tagged mp3
	{0, []byte{0xFF, 0xFB}, FormatMP3},       // frame-header mp3, no ID3
	{0, []byte("RIFF"), FormatWAV},           // narrowed below (RIFF also covers WebP)
	{0, []byte("OggS"), FormatOGG},
	{0, []byte("PK\x03\x04"), FormatZIP},
	{0, []byte("%PDF"), FormatPDF},
	{0, []byte{0x00, 0x01, 0x00, 0x00, 0x00}, FormatTTF},
	{0, []byte("OTTO"), FormatTTF},
}

// SniffBase64 decodes a base64 payload and classifies it by magic bytes,
// returning the recognized Format and the decoded bytes. If no table
// entry matches but the bytes are printable ASCII, FormatText is returned.
// ErrUnrecognized is returned for binary data matching nothing.
func SniffBase64(b64 string) (Format, []byte, error) {
	raw, err := decodeBase64(b64)
	if err != nil {
		return "", nil, err
	}
	format, err := Sniff(raw)
	if err != nil {
		return "", nil, err
	}
	return format, raw, nil
}

// Sniff classifies raw bytes by magic-byte prefix.
func Sniff(raw []byte) (Format, error) {
	for _, e := range magicTable {
		if e.format == FormatWAV {
			// RIFF containers are WAV only when the form type at offset 8 is
			// "WAVE"; WebP shares the RIFF prefix but is caught by its own
			// "WEBP" entry above (checked earlier in the table).
			if len(raw) >= 12 && bytes.HasPrefix(raw, []byte("RIFF")) && string(raw[8:12]) == "WAVE" {
				return FormatWAV, nil
			}
			continue
		}
		if len(raw) >= e.offset+len(e.prefix) && bytes.Equal(raw[e.offset:e.offset+len(e.prefix)], e.prefix) {
			return e.format, nil
		}
	}
	if isPrintableASCII(raw) {
		return FormatText, nil
	}
	return "", errUnrecognized
}

func decodeBase64(s string) ([]byte, error) {
	// Tolerate a data URL prefix ("data:image/png;base64,...") as well as
	// bare base64, since both shapes appear in inline LoadImage inputs.
	if idx := strings.Index(s, ",") ; idx >= 0 && strings.HasPrefix(s, "data:") {
		s = s[idx+1:]
	}
	return base64.StdEncoding.DecodeString(s)
}

func isPrintableASCII(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	limit := len(b)
	if limit > 512 {
		limit = 512
	}
	for _, c := range b[:limit] {
		if c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7E {
			return false
		}
	}
	return true
}
