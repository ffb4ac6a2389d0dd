package s3provider

import (
	"io"
	"os"
	"path/filepath"
)

func writeTo(destDir, filename string, body io.Reader) (string, error) {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(destDir, filename)
	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer out.Close()
	if _, err := io.Copy(out, body); err != nil {
		return "", err
	}
	return dest, nil
}
