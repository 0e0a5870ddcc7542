package parser

import (
	"fmt"
	"strings"
	"time"

	"github.com/ThiagoRGoveia/stm-bigblue/internal/models"
)

const (
	// Token embedded in instrument file names, e.g. default_2016Apr15-123456_STM...
	fileNameTimestampLayout = "2006Jan02-150405"
	// Scan info date, e.g. 2016-04-15 12:34:56
	scanDateLayout = "2006-01-02 15:04:05"
)

// CanonicalKey renders t as the fixed 14 character YYYYMMDDhhmmss key.
func CanonicalKey(t time.Time) string {
	return fmt.Sprintf("%04d%02d%02d%02d%02d%02d", t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())
}

// DeriveCreationTimestamp extracts the experiment timestamp token (the second
// underscore-separated segment of the base name) and returns its canonical key.
func DeriveCreationTimestamp(fileName string) (string, error) {
	base := baseName(fileName)
	parts := strings.Split(base, "_")
	if len(parts) < 2 {
		return "", &models.AppError{Kind: models.KindParse, FileName: base, Message: "file name does not contain a timestamp token"}
	}

	t, err := time.Parse(fileNameTimestampLayout, parts[1])
	if err != nil {
		return "", &models.AppError{Kind: models.KindParse, FileName: base, Message: fmt.Sprintf("failed to parse timestamp token %q", parts[1]), Err: err}
	}

	return CanonicalKey(t), nil
}

// CanonicalFileDate converts a scan info date into the same key format.
func CanonicalFileDate(date string) (string, error) {
	t, err := time.Parse(scanDateLayout, strings.TrimSpace(date))
	if err != nil {
		return "", &models.AppError{Kind: models.KindParse, Message: fmt.Sprintf("failed to parse scan date %q", date), Err: err}
	}
	return CanonicalKey(t), nil
}

// baseName strips both slash styles; files exported on Windows carry backslashes.
func baseName(path string) string {
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
