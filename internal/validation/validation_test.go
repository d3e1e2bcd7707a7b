package validation

import (
	"errors"
	"math"
	"strings"
	"testing"
)

func TestValidateQuery_EmptyAndWhitespace(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"spaces", "   "},
		{"tab", "\t"},
		{"newlines", "\n\r\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ValidateQuery(tc.input, 100)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrQueryEmpty) {
				t.Errorf("error = %v, want ErrQueryEmpty", err)
			}
		})
	}
}

func TestValidateQuery_TooLong(t *testing.T) {
	_, err := ValidateQuery(strings.Repeat("a", 101), 100)
	if !errors.Is(err, ErrQueryTooLong) {
		t.Errorf("error = %v, want ErrQueryTooLong", err)
	}
}

func TestValidateQuery_RuneLength(t *testing.T) {
	// 100 multi-byte runes is within a 100-rune bound.
	got, err := ValidateQuery(strings.Repeat("é", 100), 100)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != strings.Repeat("é", 100) {
		t.Errorf("got %q", got)
	}
}

func TestValidateQuery_TrimsAndNoBound(t *testing.T) {
	got, err := ValidateQuery("  yellow leaves on tomato \n", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "yellow leaves on tomato" {
		t.Errorf("got %q, want trimmed query", got)
	}
}

func ptr(f float64) *float64 { return &f }

func TestValidateCoordinates(t *testing.T) {
	tests := []struct {
		name   string
		lat    *float64
		lon    *float64
		wantOK bool
	}{
		{"both nil", nil, nil, false},
		{"lat only", ptr(47.6), nil, false},
		{"lon only", nil, ptr(-122.3), false},
		{"valid", ptr(47.6), ptr(-122.3), true},
		{"zero is a real place", ptr(0), ptr(0), true},
		{"lat out of range", ptr(91), ptr(0), false},
		{"lon out of range", ptr(0), ptr(-181), false},
		{"NaN", ptr(math.NaN()), ptr(1), false},
		{"Inf", ptr(1), ptr(math.Inf(1)), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lat, lon, ok := ValidateCoordinates(tc.lat, tc.lon)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && (lat != *tc.lat || lon != *tc.lon) {
				t.Errorf("got %v,%v want %v,%v", lat, lon, *tc.lat, *tc.lon)
			}
		})
	}
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		size     int
		wantErr  error
	}{
		{"ok", "leaf.jpg", 10, nil},
		{"blank filename", "  ", 10, ErrUploadNoFilename},
		{"empty filename", "", 10, ErrUploadNoFilename},
		{"no content", "leaf.jpg", 0, ErrUploadEmpty},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateUpload(tc.filename, tc.size)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("ValidateUpload() = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
