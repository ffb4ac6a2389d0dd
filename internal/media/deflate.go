package media

import (
	"compress/flate"
	"io"
)

// bestCompressionDeflate registers flate.BestCompression as the zip
// writer's Deflate compressor, since archive/zip's default is
// flate.DefaultCompression.
func bestCompressionDeflate(w io.Writer) (io.WriteCloser, error) {
	return flate.NewWriter(w, flate.BestCompression)
}
