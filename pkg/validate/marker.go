package validate

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// MarkerName is the sidecar filename written into a deployment
// directory after successful validation
const MarkerName = ".validated"

// Marker records a completed deployment validation. Its presence skips
// re-validation on later runs.
type Marker struct {
	ValidatedAt string `yaml:"validated_at"`
	Collection  string `yaml:"collection"`
	Deployment  string `yaml:"deployment"`
	Hash        string `yaml:"hash"`
}

// NewMarker builds a marker stamped with the current time
func NewMarker(collection, deployment, hash string) Marker {
	return Marker{
		ValidatedAt: time.Now().Format(time.RFC3339),
		Collection:  collection,
		Deployment:  deployment,
		Hash:        hash,
	}
}

// WriteMarker persists a marker into the deployment directory
func WriteMarker(dir string, m Marker) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal validation marker: %w", err)
	}

	path := filepath.Join(dir, MarkerName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write validation marker: %w", err)
	}

	return nil
}

// LoadMarker reads a marker from the deployment directory
func LoadMarker(dir string) (*Marker, error) {
	data, err := os.ReadFile(filepath.Join(dir, MarkerName))
	if err != nil {
		return nil, fmt.Errorf("failed to read validation marker: %w", err)
	}

	var m Marker
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse validation marker: %w", err)
	}

	return &m, nil
}

// HasMarker reports whether a deployment directory carries a marker
func HasMarker(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, MarkerName))
	return err == nil && !info.IsDir()
}

// RemoveMarker deletes a stale marker so the deployment is re-validated
func RemoveMarker(dir string) error {
	err := os.Remove(filepath.Join(dir, MarkerName))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove validation marker: %w", err)
	}
	return nil
}

// ChainHashes folds an ordered list of per-file digests into one
// combined digest. The chaining makes the result sensitive to both
// content and order.
func ChainHashes(hashes []string) string {
	combined := ""
	for _, h := range hashes {
		sum := sha1.Sum([]byte(combined + h))
		combined = hex.EncodeToString(sum[:])
	}
	return combined
}
