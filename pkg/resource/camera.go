package resource

import "strings"

// unknownCamera is reported when EXIF carries no make information
const unknownCamera = "(unknown) (unknown)"

// CameraModel normalizes the EXIF make and model into one lowercase
// string. A make already prefixing the model string is elided.
func CameraModel(meta map[string]string) string {
	make := strings.ToLower(strings.TrimSpace(meta[TagMake]))
	if make == "" {
		return unknownCamera
	}

	model := strings.ToLower(strings.TrimSpace(meta[TagModel]))
	if model == "" {
		model = "(unknown)"
	}

	if strings.HasPrefix(model, make) {
		return model
	}
	return make + " " + model
}
