package qrcode

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	qrcode "github.com/skip2/go-qrcode"
)

const imageSize = 256

var ErrInvalidFilename = errors.New("invalid image filename")

var dataURLPrefix = regexp.MustCompile(`^data:image/\w+;base64,`)

// Storage keeps QR images as PNG files in one directory.
type Storage struct {
	dir string
	now func() time.Time
}

func NewStorage(dir string) *Storage {
	return &Storage{dir: dir, now: time.Now}
}

func (s *Storage) ensureDir() error {
	return os.MkdirAll(s.dir, 0o755)
}

func (s *Storage) newFilename() string {
	return fmt.Sprintf("qris_%d.png", s.now().UnixNano())
}

// WritePayload renders an EMVCo payload as a QR image and returns the file name.
func (s *Storage) WritePayload(payload string) (string, error) {
	if payload == "" {
		return "", errors.New("empty payload")
	}
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	name := s.newFilename()
	if err := qrcode.WriteFile(payload, qrcode.Medium, imageSize, filepath.Join(s.dir, name)); err != nil {
		return "", fmt.Errorf("render qr: %w", err)
	}
	return name, nil
}

// WriteBase64 stores an uploaded image, with or without a data URL prefix.
func (s *Storage) WriteBase64(image string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(dataURLPrefix.ReplaceAllString(strings.TrimSpace(image), ""))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	if err := s.ensureDir(); err != nil {
		return "", err
	}
	name := s.newFilename()
	if err := os.WriteFile(filepath.Join(s.dir, name), raw, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// Path resolves a stored file name. Only plain .png names are accepted.
func (s *Storage) Path(name string) (string, error) {
	if !strings.HasSuffix(name, ".png") || strings.Contains(name, "..") || filepath.Base(name) != name {
		return "", ErrInvalidFilename
	}
	return filepath.Join(s.dir, name), nil
}
