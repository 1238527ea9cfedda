package resource

import (
	"errors"
	"fmt"

	exif "github.com/dsoprea/go-exif/v3"
)

// Well-known tag names consumed by the pipeline
const (
	TagDateTimeOriginal = "DateTimeOriginal"
	TagCreateDate       = "CreateDate"
	TagDateTime         = "DateTime"
	TagFileModifyDate   = "FileModifyDate"
	TagMake             = "Make"
	TagModel            = "Model"
)

// ExtractExif decodes the flat EXIF tag set embedded in an image.
// Images without an EXIF segment yield an empty map, not an error.
func ExtractExif(content []byte) (map[string]string, error) {
	rawExif, err := exif.SearchAndExtractExif(content)
	if err != nil {
		if errors.Is(err, exif.ErrNoExif) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("exif: error locating exif data: %w", err)
	}

	tags, _, err := exif.GetFlatExifData(rawExif, nil)
	if err != nil {
		return nil, fmt.Errorf("exif: error parsing exif data: %w", err)
	}

	meta := make(map[string]string, len(tags))
	for _, t := range tags {
		// First occurrence wins when a tag appears in several IFDs
		if _, seen := meta[t.TagName]; !seen {
			meta[t.TagName] = t.FormattedFirst
		}
	}
	return meta, nil
}

// ExifTag returns a single EXIF tag value from image bytes, or the
// empty string when the tag or the whole EXIF segment is absent.
func ExifTag(content []byte, name string) (string, error) {
	meta, err := ExtractExif(content)
	if err != nil {
		return "", err
	}
	return meta[name], nil
}
