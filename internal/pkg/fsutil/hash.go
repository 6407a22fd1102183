package fsutil

import (
	"crypto/md5"
	"encoding/hex"
	"io"
	"os"
)

// HashFile returns the 128-bit MD5 content hash of the file at path,
// hex-encoded.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
