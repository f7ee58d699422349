// Package attachments validates uploaded files and stores them on disk
// under per-issue paths.
package attachments

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	contextutils "issuetracker/internal/utils"
)

// SniffLen is how many leading bytes of an upload are used for MIME detection
const SniffLen = 3072

// Rejection reasons, used as the metric attribute for refused uploads
const (
	ReasonTooLarge  = "too_large"
	ReasonMIME      = "mime_type"
	ReasonExtension = "extension"
)

// Policy is the configured upload ceiling and allow-lists. The detected MIME
// type and the extension are checked independently; either one failing
// rejects the file.
type Policy struct {
	MaxSize           int64
	AllowedMIMETypes  []string
	AllowedExtensions []string
}

// Rejection is returned by Validate. It is a VALIDATION_FAILED AppError
// carrying the reason.
type Rejection struct {
	*contextutils.AppError
	Reason string
}

func (r *Rejection) Unwrap() error { return r.AppError }

func reject(reason, format string, args ...interface{}) *Rejection {
	return &Rejection{AppError: contextutils.Validationf("file", format, args...), Reason: reason}
}

// CheckSize rejects sizes above the ceiling
func (p Policy) CheckSize(size int64) error {
	if size > p.MaxSize {
		return reject(ReasonTooLarge, "File size exceeds the maximum allowed size (%.1fMB).", float64(p.MaxSize)/(1024*1024))
	}
	return nil
}

// Validate checks size, sniffed MIME type and extension. The detected type,
// without parameters, must itself be on the allow-list; a subtype of an
// allowed type (text/html under text/plain) is rejected.
// head should hold at least the first SniffLen bytes of the content.
func (p Policy) Validate(fileName string, size int64, head []byte) (string, error) {
	if err := p.CheckSize(size); err != nil {
		return "", err
	}

	detected := mimetype.Detect(head)
	if !mimetype.EqualsAny(detected.String(), p.AllowedMIMETypes...) {
		return "", reject(ReasonMIME, "File type '%s' is not allowed. Please upload a file with one of the following types: %s",
			baseMIME(detected.String()), strings.Join(p.AllowedExtensions, ", "))
	}

	ext := Extension(fileName)
	if !contains(p.AllowedExtensions, ext) {
		return "", reject(ReasonExtension, "File extension '%s' is not allowed. Please upload a file with one of the following extensions: %s",
			ext, strings.Join(p.AllowedExtensions, ", "))
	}

	return baseMIME(detected.String()), nil
}

// Extension is the lowercased extension without the dot
func Extension(fileName string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(fileName), "."))
}

func baseMIME(m string) string {
	if i := strings.Index(m, ";"); i >= 0 {
		return strings.TrimSpace(m[:i])
	}
	return m
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(strings.TrimPrefix(item, "."), v) {
			return true
		}
	}
	return false
}

// FormatSize renders a byte count the way attachment responses show it:
// whole bytes, otherwise two decimals of the largest binary unit up to TB.
func FormatSize(size int64) string {
	if size < 0 {
		return "0 bytes"
	}
	units := []string{"bytes", "KB", "MB", "GB", "TB"}
	value := float64(size)
	unit := 0
	for value >= 1024 && unit < len(units)-1 {
		value /= 1024
		unit++
	}
	if unit == 0 {
		return fmt.Sprintf("%d %s", size, units[0])
	}
	return fmt.Sprintf("%.2f %s", value, units[unit])
}
