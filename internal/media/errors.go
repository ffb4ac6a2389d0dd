package media

import "errors"

// ErrUnrecognized is returned by Sniff/SniffBase64 for binary data that
// matches no entry in the magic-byte table and isn't printable ASCII.
var ErrUnrecognized = errors.New("media: unrecognized binary format")

// ErrEncoderUnavailable is returned when a transcode needs the external
// encoder subprocess but it isn't installed.
var ErrEncoderUnavailable = errors.New("media: encoder subprocess not found on PATH")

var errUnrecognized = ErrUnrecognized
