package resource

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestCalculateHash(t *testing.T) {
	digest, shard := CalculateHash([]byte("hello world"))

	if digest != "2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("unexpected digest %s", digest)
	}
	if shard != "/2a/ae/2aae6c35c94fcfb415dbe95f408b9ce91ee846ed" {
		t.Errorf("unexpected shard path %s", shard)
	}
}

func TestCalculateHashShardStructure(t *testing.T) {
	digest, shard := CalculateHash([]byte{})
	parts := strings.Split(strings.TrimPrefix(shard, "/"), "/")
	if len(parts) != 3 {
		t.Fatalf("shard path should have three segments, got %q", shard)
	}
	if parts[0] != digest[:2] || parts[1] != digest[2:4] || parts[2] != digest {
		t.Errorf("shard segments do not match digest prefixes: %q", shard)
	}
}

func TestExtractExifWithoutSegment(t *testing.T) {
	meta, err := ExtractExif([]byte("not an image at all"))
	if err != nil {
		t.Fatalf("absence of exif must not be an error: %v", err)
	}
	if len(meta) != 0 {
		t.Errorf("expected empty metadata, got %v", meta)
	}
}

func TestParseDateRecordedTagPrecedence(t *testing.T) {
	meta := map[string]string{
		TagDateTimeOriginal: "2024:03:15 10:30:00",
		TagCreateDate:       "2024:03:15 11:00:00",
		TagFileModifyDate:   "2024:03:16 09:00:00",
	}

	got, err := ParseDateRecorded(meta, time.UTC, DateOptions{})
	if err != nil {
		t.Fatalf("ParseDateRecorded failed: %v", err)
	}
	want := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseDateRecordedSentinelFallsThrough(t *testing.T) {
	meta := map[string]string{
		TagDateTimeOriginal: "0000:00:00 00:00:00",
		TagCreateDate:       "2024:03:15 11:00:00",
	}

	got, err := ParseDateRecorded(meta, time.UTC, DateOptions{})
	if err != nil {
		t.Fatalf("ParseDateRecorded failed: %v", err)
	}
	if got.Hour() != 11 {
		t.Errorf("sentinel DateTimeOriginal should fall through to CreateDate, got %v", got)
	}
}

func TestParseDateRecordedMissing(t *testing.T) {
	_, err := ParseDateRecorded(map[string]string{}, time.UTC, DateOptions{Fallback: false})
	if !errors.Is(err, ErrMissingDate) {
		t.Errorf("expected ErrMissingDate, got %v", err)
	}

	meta := map[string]string{TagFileModifyDate: "2024:05:01 12:00:00"}
	if _, err := ParseDateRecorded(meta, time.UTC, DateOptions{Fallback: true}); err != nil {
		t.Errorf("fallback to FileModifyDate should succeed, got %v", err)
	}
	if _, err := ParseDateRecorded(meta, time.UTC, DateOptions{Fallback: false}); !errors.Is(err, ErrMissingDate) {
		t.Errorf("without fallback FileModifyDate must not be used, got %v", err)
	}
}

func TestParseDateRecordedMalformed(t *testing.T) {
	meta := map[string]string{TagDateTimeOriginal: "15/03/2024 10:30"}
	_, err := ParseDateRecorded(meta, time.UTC, DateOptions{})

	var malformed *MalformedDateError
	if !errors.As(err, &malformed) {
		t.Fatalf("expected MalformedDateError, got %v", err)
	}
	if malformed.Value != "15/03/2024 10:30" {
		t.Errorf("error should carry the offending value, got %q", malformed.Value)
	}
}

func TestParseDateRecordedEmbeddedOffset(t *testing.T) {
	meta := map[string]string{TagDateTimeOriginal: "2024:03:15 10:30:00+02:00"}

	got, err := ParseDateRecorded(meta, time.UTC, DateOptions{ConvertToUTC: true})
	if err != nil {
		t.Fatalf("ParseDateRecorded failed: %v", err)
	}
	want := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestParseDateRecordedIgnoreDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Madrid")
	if err != nil {
		t.Skipf("tzdata not available: %v", err)
	}

	// Mid-July is deep inside CEST (+02:00); the ignore-DST policy must
	// still localize with the standard CET offset (+01:00).
	meta := map[string]string{TagDateTimeOriginal: "2024:07:15 12:00:00"}

	got, err := ParseDateRecorded(meta, loc, DateOptions{IgnoreDST: true, ConvertToUTC: true})
	if err != nil {
		t.Fatalf("ParseDateRecorded failed: %v", err)
	}
	want := time.Date(2024, 7, 15, 11, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("ignore-DST localization: got %v, want %v", got, want)
	}

	// With DST honored the same wall time maps one hour earlier in UTC
	got, err = ParseDateRecorded(meta, loc, DateOptions{ConvertToUTC: true})
	if err != nil {
		t.Fatalf("ParseDateRecorded failed: %v", err)
	}
	want = time.Date(2024, 7, 15, 10, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("calendar-correct localization: got %v, want %v", got, want)
	}
}

func TestCameraModel(t *testing.T) {
	tests := []struct {
		name     string
		meta     map[string]string
		expected string
	}{
		{"no make", map[string]string{}, "(unknown) (unknown)"},
		{"make only", map[string]string{TagMake: "Browning"}, "browning (unknown)"},
		{"make and model", map[string]string{TagMake: "Bushnell", TagModel: "Core DS-4K"}, "bushnell core ds-4k"},
		{"make prefixes model", map[string]string{TagMake: "Reconyx", TagModel: "RECONYX HF2X"}, "reconyx hf2x"},
		{"whitespace trimmed", map[string]string{TagMake: " Browning ", TagModel: " Spec Ops "}, "browning spec ops"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CameraModel(tt.meta); got != tt.expected {
				t.Errorf("CameraModel() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestHasAllowedExtension(t *testing.T) {
	if !HasAllowedExtension("IMG_0001.JPG", DefaultExtensions) {
		t.Error("extension check must be case-insensitive")
	}
	if HasAllowedExtension("notes.txt", DefaultExtensions) {
		t.Error("txt is not an allowed media extension")
	}
	if !HasAllowedExtension("clip.mov", VideoExtensions) {
		t.Error("mov should be a video extension")
	}
}

func TestDetectMime(t *testing.T) {
	// Minimal PNG signature
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}
	if got := DetectMime(png); got != "image/png" {
		t.Errorf("DetectMime(png) = %q", got)
	}

	if got := DetectMime([]byte{0x00, 0x01, 0x02}); got != "application/octet-stream" {
		t.Errorf("unknown content should sniff as octet-stream, got %q", got)
	}

	ok, detected := ValidateMime(png)
	if !ok || detected != "image/png" {
		t.Errorf("ValidateMime(png) = %v, %q", ok, detected)
	}
}
