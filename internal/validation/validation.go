package validation

import (
	"errors"
	"math"
	"strings"
	"unicode/utf8"
)

// ErrQueryEmpty is returned when the query text is empty or whitespace-only after trim.
var ErrQueryEmpty = errors.New("query is required")

// ErrQueryTooLong is returned when the query text exceeds the maximum length.
var ErrQueryTooLong = errors.New("query too long")

// ErrUploadMissing is returned when no image file was attached.
var ErrUploadMissing = errors.New("image file is required")

// ErrUploadNoFilename is returned when the uploaded file has a blank filename.
var ErrUploadNoFilename = errors.New("image filename is required")

// ErrUploadEmpty is returned when the uploaded file has no content.
var ErrUploadEmpty = errors.New("image file is empty")

// ValidateQuery trims the input and enforces a maximum length in runes (0 disables the bound).
// Returns the trimmed string or an error suitable for 400 responses.
func ValidateQuery(input string, maxLen int) (string, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", ErrQueryEmpty
	}
	if maxLen > 0 && utf8.RuneCountInString(s) > maxLen {
		return "", ErrQueryTooLong
	}
	return s, nil
}

// ValidateCoordinates reports whether lat and lon are both present, finite and in range.
// A false result means "location not provided"; it is never a request failure.
// Zero is a valid coordinate: presence is decided by nil, not by value.
func ValidateCoordinates(lat, lon *float64) (float64, float64, bool) {
	if lat == nil || lon == nil {
		return 0, 0, false
	}
	la, lo := *lat, *lon
	if !isFinite(la) || !isFinite(lo) {
		return 0, 0, false
	}
	if la < -90 || la > 90 || lo < -180 || lo > 180 {
		return 0, 0, false
	}
	return la, lo, true
}

// ValidateUpload checks an uploaded image before any upstream call.
func ValidateUpload(filename string, size int) error {
	if strings.TrimSpace(filename) == "" {
		return ErrUploadNoFilename
	}
	if size <= 0 {
		return ErrUploadEmpty
	}
	return nil
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
