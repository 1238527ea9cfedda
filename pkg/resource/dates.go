package resource

import (
	"errors"
	"fmt"
	"time"
)

// noDataSentinel is written by some camera firmware when the clock was
// never set; it must be treated as an absent date.
const noDataSentinel = "0000:00:00 00:00:00"

// exifDateLayouts are the accepted capture-timestamp formats
var exifDateLayouts = []string{
	"2006:01:02 15:04:05",
	"2006:01:02 15:04:05-07:00",
	"2006:01:02 15:04:05-0700",
}

// ErrMissingDate indicates that no usable capture date was present in
// the metadata and fallback to the file modification date was disabled.
var ErrMissingDate = errors.New("no valid date recorded found in metadata and no fallback provided")

// MalformedDateError indicates a date tag was present but unparseable
type MalformedDateError struct {
	Value string
}

func (e *MalformedDateError) Error() string {
	return fmt.Sprintf("invalid date recorded format: %q", e.Value)
}

// DateOptions controls how capture timestamps are interpreted
type DateOptions struct {
	// Fallback enables falling back to FileModifyDate when neither
	// DateTimeOriginal nor CreateDate is usable
	Fallback bool
	// IgnoreDST interprets naive timestamps with the zone's standard
	// (non-DST) offset regardless of the date. Camera clocks are set
	// once and do not follow DST transitions, so this keeps their
	// interpretation constant across the whole deployment window.
	IgnoreDST bool
	// ConvertToUTC converts the parsed timestamp to UTC
	ConvertToUTC bool
}

// ParseDateRecorded derives the canonical capture timestamp from
// extracted metadata. Tag precedence is DateTimeOriginal, CreateDate,
// then FileModifyDate when fallback is enabled.
func ParseDateRecorded(meta map[string]string, loc *time.Location, opts DateOptions) (time.Time, error) {
	raw := meta[TagDateTimeOriginal]
	if raw == "" || raw == noDataSentinel {
		raw = meta[TagCreateDate]
	}
	if raw == "" || raw == noDataSentinel {
		if !opts.Fallback {
			return time.Time{}, ErrMissingDate
		}
		raw = meta[TagFileModifyDate]
		if raw == "" || raw == noDataSentinel {
			return time.Time{}, ErrMissingDate
		}
	}

	parsed, err := parseExifDate(raw, loc, opts.IgnoreDST)
	if err != nil {
		return time.Time{}, err
	}

	if opts.ConvertToUTC {
		parsed = parsed.UTC()
	}
	return parsed, nil
}

// Localize rebuilds a naive wall-clock time in the given zone, applying
// the same ignore-DST policy as ParseDateRecorded. Used to interpret
// field-log expected times consistently with camera timestamps.
func Localize(t time.Time, loc *time.Location, ignoreDST bool) time.Time {
	if ignoreDST {
		zone := time.FixedZone("", standardOffset(loc, t.Year()))
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// parseExifDate parses one EXIF date string, localizing naive values
func parseExifDate(raw string, loc *time.Location, ignoreDST bool) (time.Time, error) {
	// Offset-carrying layouts first: their zone information wins
	for _, layout := range exifDateLayouts[1:] {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}

	t, err := time.Parse(exifDateLayouts[0], raw)
	if err != nil {
		return time.Time{}, &MalformedDateError{Value: raw}
	}

	if ignoreDST {
		zone := time.FixedZone("", standardOffset(loc, t.Year()))
		return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), zone), nil
	}

	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
}

// standardOffset returns the zone's non-DST UTC offset in seconds for
// the given year. The smaller of the midwinter offsets of both
// hemispheres is the standard offset; the larger one includes the DST
// delta. Note the resulting offset may not match any real historical
// offset for dates inside a DST period - that is the intended policy.
func standardOffset(loc *time.Location, year int) int {
	_, janOffset := time.Date(year, time.January, 1, 12, 0, 0, 0, loc).Zone()
	_, julOffset := time.Date(year, time.July, 1, 12, 0, 0, 0, loc).Zone()
	if janOffset < julOffset {
		return janOffset
	}
	return julOffset
}
