package uploader

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// SidecarSuffix is appended to the uploaded file's path to form the
// transfer state sidecar
const SidecarSuffix = ".uploadmeta.json"

// TransferState is the persisted record of an in-progress upload.
// Completed maps chunk index (as a string key) to the chunk's hash.
type TransferState struct {
	File        string            `json:"file"`
	Remote      string            `json:"remote"`
	FileHash    string            `json:"file_hash"`
	ChunkSize   int64             `json:"chunk_size"`
	TotalChunks int               `json:"total_chunks"`
	ChunkHashes []string          `json:"chunk_hashes"`
	Completed   map[string]string `json:"completed"`
}

// Valid reports whether the state still describes the given file and
// target. The size is recomputed from chunk geometry so a grown or
// truncated file invalidates the sidecar even when paths match.
func (s *TransferState) Valid(file, remote string, size int64) bool {
	if s.File != file || s.Remote != remote {
		return false
	}

	var expected int64
	for i := 0; i < s.TotalChunks; i++ {
		remaining := size - int64(i)*s.ChunkSize
		if remaining > s.ChunkSize {
			remaining = s.ChunkSize
		}
		expected += remaining
	}
	return expected == size && s.TotalChunks > 0
}

// SidecarPath returns the sidecar path for an uploaded file
func SidecarPath(file string) string {
	return file + SidecarSuffix
}

// sidecarStore serializes all mutations of the transfer state and
// persists each one atomically: temp file, then rename. A concurrent
// resume attempt never observes a torn sidecar.
type sidecarStore struct {
	mu    sync.Mutex
	path  string
	state *TransferState
}

// newSidecarStore wraps a fresh or loaded state
func newSidecarStore(path string, state *TransferState) *sidecarStore {
	return &sidecarStore{path: path, state: state}
}

// loadSidecar reads an existing sidecar from disk
func loadSidecar(path string) (*TransferState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var state TransferState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse upload sidecar: %w", err)
	}
	if state.Completed == nil {
		state.Completed = make(map[string]string)
	}
	return &state, nil
}

// update applies a mutation and persists the result atomically
func (s *sidecarStore) update(fn func(*TransferState)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	fn(s.state)

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal upload sidecar: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write upload sidecar: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace upload sidecar: %w", err)
	}
	return nil
}

// snapshot returns a copy of the completed map for safe reading
func (s *sidecarStore) completedChunks() map[int]bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	done := make(map[int]bool, len(s.state.Completed))
	for key := range s.state.Completed {
		var i int
		if _, err := fmt.Sscanf(key, "%d", &i); err == nil {
			done[i] = true
		}
	}
	return done
}

// remove deletes the sidecar; the upload is complete and no longer
// resumable
func (s *sidecarStore) remove() error {
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove upload sidecar: %w", err)
	}
	return nil
}
