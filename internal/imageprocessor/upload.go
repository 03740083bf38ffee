package imageprocessor

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Format is the detected container format of an accepted upload.
type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
)

// AllowedExtensions are the file extensions accepted at the upload boundary.
var AllowedExtensions = []string{"jpg", "jpeg", "png"}

var sniffedFormats = map[string]Format{
	"image/jpeg": FormatJPEG,
	"image/png":  FormatPNG,
}

// Upload is an accepted image. It is immutable: the bytes are copied on the
// way in and on the way out.
type Upload struct {
	filename string
	format   Format
	data     []byte
	digest   string
}

// NewUpload checks the extension and the sniffed content type and rejects
// anything that is not a jpg, jpeg or png image.
func NewUpload(filename string, data []byte) (*Upload, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if !allowedExtension(ext) {
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedFormat, ext)
	}

	detected := mimetype.Detect(data)
	format, ok := sniffedFormats[detected.String()]
	if !ok {
		return nil, fmt.Errorf("%w: content type %s", ErrUnsupportedFormat, detected.String())
	}

	sum := sha1.Sum(data)
	return &Upload{
		filename: filepath.Base(filename),
		format:   format,
		data:     append([]byte(nil), data...),
		digest:   hex.EncodeToString(sum[:]),
	}, nil
}

func (u *Upload) Filename() string { return u.filename }
func (u *Upload) Format() Format   { return u.format }
func (u *Upload) Size() int        { return len(u.data) }

// SHA1 is the hex digest of the upload bytes.
func (u *Upload) SHA1() string { return u.digest }

// Bytes returns a copy of the upload content.
func (u *Upload) Bytes() []byte {
	return append([]byte(nil), u.data...)
}

func allowedExtension(ext string) bool {
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}
