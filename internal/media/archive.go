package media

import (
	"archive/zip"
	"bytes"
)

// File is a named in-memory output, the unit archive.go and the
// orchestrator's delivery step both operate on.
type File struct {
	Name  string
	Bytes []byte
}

// Zip archives files into a single outputs.zip at maximum-level deflate,
// per spec step 3 ("compress_outputs ... archived into one outputs.zip
// with max-level deflate; filenames list collapses to ["outputs.zip"]").
func Zip(files []File) (File, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, bestCompressionDeflate)

	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: zip.Deflate})
		if err != nil {
			return File{}, err
		}
		if _, err := w.Write(f.Bytes); err != nil {
			return File{}, err
		}
	}
	if err := zw.Close(); err != nil {
		return File{}, err
	}
	return File{Name: "outputs.zip", Bytes: buf.Bytes()}, nil
}
