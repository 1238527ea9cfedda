package uploader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/cenkalti/backoff/v4"
)

const testChunkSize = 16

// fakeServer implements the chunked upload protocol with injectable
// failure behaviour
type fakeServer struct {
	t *testing.T

	mu            sync.Mutex
	chunkPuts     map[int]int
	initCalls     int
	completeCalls int

	// dropChunk[i] transport failures remain for chunk i; the
	// connection is aborted mid-request
	dropChunk map[int]int
	// rejectChunk[i] makes chunk i fail with an HTTP error
	rejectChunk map[int]bool
	// mismatchChunks, when set, makes the next completion fail with a
	// final hash mismatch naming these chunks
	mismatchChunks []int
}

func newFakeServer(t *testing.T) *fakeServer {
	return &fakeServer{
		t:           t,
		chunkPuts:   make(map[int]int),
		dropChunk:   make(map[int]int),
		rejectChunk: make(map[int]bool),
	}
}

func (s *fakeServer) resetCounters() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunkPuts = make(map[int]int)
	s.initCalls = 0
	s.completeCalls = 0
}

func (s *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == loginEndpoint:
		json.NewEncoder(w).Encode(map[string]string{
			"username":  "test",
			"sessionid": "session-1",
		})

	case r.URL.Path == initEndpoint:
		s.requireSession(r)
		s.mu.Lock()
		s.initCalls++
		s.mu.Unlock()
		json.NewEncoder(w).Encode(map[string]any{
			"total_chunks": 0,
			"chunk_size":   testChunkSize,
		})

	case strings.HasPrefix(r.URL.Path, chunkEndpoint):
		s.requireSession(r)
		index, err := strconv.Atoi(strings.TrimPrefix(r.URL.Path, chunkEndpoint))
		if err != nil {
			s.t.Errorf("unparsable chunk index in %s", r.URL.Path)
			return
		}

		s.mu.Lock()
		s.chunkPuts[index]++
		drop := s.dropChunk[index] > 0
		if drop {
			s.dropChunk[index]--
		}
		reject := s.rejectChunk[index]
		s.mu.Unlock()

		if drop {
			panic(http.ErrAbortHandler)
		}
		if reject {
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

	case r.URL.Path == completeEndpoint:
		s.requireSession(r)
		s.mu.Lock()
		s.completeCalls++
		mismatch := s.mismatchChunks
		s.mismatchChunks = nil
		s.mu.Unlock()

		if mismatch != nil {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]any{
				"detail": map[string]any{
					"error_code":      mismatchErrorCode,
					"mismatch_chunks": mismatch,
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})

	default:
		s.t.Errorf("unexpected request to %s", r.URL.Path)
		http.NotFound(w, r)
	}
}

func (s *fakeServer) requireSession(r *http.Request) {
	cookie, err := r.Cookie("sessionid")
	if err != nil || cookie.Value != "session-1" {
		s.t.Errorf("request to %s carried no valid session cookie", r.URL.Path)
	}
}

func (s *fakeServer) puts(index int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chunkPuts[index]
}

func newTestUploader(serverURL string) *Uploader {
	u := New(Options{
		ServerURL:   serverURL,
		Username:    "test",
		Password:    "secret",
		VerifyTLS:   true,
		MaxParallel: 2,
	})
	u.chunkSize = testChunkSize
	u.newBackOff = func() backoff.BackOff { return &backoff.ZeroBackOff{} }
	return u
}

// writeSource creates a file spanning the given number of test chunks,
// with the last chunk half full
func writeSource(t *testing.T, chunks int) string {
	t.Helper()

	size := (chunks-1)*testChunkSize + testChunkSize/2
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}

	path := filepath.Join(t.TempDir(), "package_part001.zip")
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("failed to write source file: %v", err)
	}
	return path
}

func TestUploadSendsEveryChunkOnce(t *testing.T) {
	fake := newFakeServer(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	source := writeSource(t, 3)
	u := newTestUploader(server.URL)

	if err := u.Upload(context.Background(), source, "remote/part001.zip"); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if got := fake.puts(i); got != 1 {
			t.Errorf("chunk %d uploaded %d times, want 1", i, got)
		}
	}
	if fake.initCalls != 1 {
		t.Errorf("init called %d times, want 1", fake.initCalls)
	}
	if fake.completeCalls != 1 {
		t.Errorf("complete called %d times, want 1", fake.completeCalls)
	}
	if _, err := os.Stat(SidecarPath(source)); !os.IsNotExist(err) {
		t.Error("sidecar should be removed after a successful upload")
	}
}

func TestResumeUploadsOnlyRemainingChunks(t *testing.T) {
	fake := newFakeServer(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	source := writeSource(t, 5)
	remote := "remote/part001.zip"

	fake.rejectChunk[3] = true
	fake.rejectChunk[4] = true

	u := newTestUploader(server.URL)
	if err := u.Upload(context.Background(), source, remote); err == nil {
		t.Fatal("upload should fail while the server rejects chunks")
	}

	state, err := loadSidecar(SidecarPath(source))
	if err != nil {
		t.Fatalf("sidecar should survive a failed upload: %v", err)
	}
	if len(state.Completed) != 3 {
		t.Fatalf("sidecar records %d completed chunks, want 3", len(state.Completed))
	}

	fake.rejectChunk = make(map[int]bool)
	fake.resetCounters()

	u = newTestUploader(server.URL)
	if err := u.Upload(context.Background(), source, remote); err != nil {
		t.Fatalf("resumed upload failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		if got := fake.puts(i); got != 0 {
			t.Errorf("completed chunk %d uploaded again %d times", i, got)
		}
	}
	for i := 3; i < 5; i++ {
		if got := fake.puts(i); got != 1 {
			t.Errorf("remaining chunk %d uploaded %d times, want 1", i, got)
		}
	}
	if fake.initCalls != 0 {
		t.Errorf("resume reinitialized the transfer %d times", fake.initCalls)
	}
	if _, err := os.Stat(SidecarPath(source)); !os.IsNotExist(err) {
		t.Error("sidecar should be removed after the resumed upload")
	}
}

func TestFinalMismatchEvictsOnlyNamedChunks(t *testing.T) {
	fake := newFakeServer(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	source := writeSource(t, 4)
	remote := "remote/part001.zip"
	fake.mismatchChunks = []int{1, 3}

	u := newTestUploader(server.URL)
	err := u.Upload(context.Background(), source, remote)

	var mismatch *MismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected a mismatch error, got %v", err)
	}

	state, loadErr := loadSidecar(SidecarPath(source))
	if loadErr != nil {
		t.Fatalf("sidecar should survive a mismatch: %v", loadErr)
	}
	for _, index := range []int{1, 3} {
		if _, ok := state.Completed[strconv.Itoa(index)]; ok {
			t.Errorf("mismatched chunk %d still recorded as completed", index)
		}
	}
	for _, index := range []int{0, 2} {
		if _, ok := state.Completed[strconv.Itoa(index)]; !ok {
			t.Errorf("verified chunk %d lost its completed record", index)
		}
	}

	fake.resetCounters()

	u = newTestUploader(server.URL)
	if err := u.Upload(context.Background(), source, remote); err != nil {
		t.Fatalf("repair upload failed: %v", err)
	}
	for _, index := range []int{1, 3} {
		if got := fake.puts(index); got != 1 {
			t.Errorf("mismatched chunk %d uploaded %d times, want 1", index, got)
		}
	}
	for _, index := range []int{0, 2} {
		if got := fake.puts(index); got != 0 {
			t.Errorf("verified chunk %d uploaded again %d times", index, got)
		}
	}
}

func TestTransportFailuresAreRetried(t *testing.T) {
	fake := newFakeServer(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	source := writeSource(t, 3)
	fake.dropChunk[1] = 4

	u := newTestUploader(server.URL)
	if err := u.Upload(context.Background(), source, "remote/part001.zip"); err != nil {
		t.Fatalf("upload should succeed on the final retry: %v", err)
	}

	if got := fake.puts(1); got != 5 {
		t.Errorf("flaky chunk attempted %d times, want 5", got)
	}
	for _, index := range []int{0, 2} {
		if got := fake.puts(index); got != 1 {
			t.Errorf("healthy chunk %d attempted %d times, want 1", index, got)
		}
	}
}

func TestTransportFailuresExhaustRetries(t *testing.T) {
	fake := newFakeServer(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	source := writeSource(t, 2)
	fake.dropChunk[0] = 100

	u := newTestUploader(server.URL)
	if err := u.Upload(context.Background(), source, "remote/part001.zip"); err == nil {
		t.Fatal("upload should fail once retries are exhausted")
	}

	if got := fake.puts(0); got != 5 {
		t.Errorf("failing chunk attempted %d times, want 5", got)
	}
	if fake.completeCalls != 0 {
		t.Error("finalization should not run after a chunk failure")
	}
}

func TestHTTPRejectionIsNotRetried(t *testing.T) {
	fake := newFakeServer(t)
	server := httptest.NewServer(fake)
	defer server.Close()

	source := writeSource(t, 2)
	fake.rejectChunk[0] = true

	u := newTestUploader(server.URL)
	if err := u.Upload(context.Background(), source, "remote/part001.zip"); err == nil {
		t.Fatal("upload should fail on a server rejection")
	}

	if got := fake.puts(0); got != 1 {
		t.Errorf("rejected chunk attempted %d times, want 1", got)
	}
}

func TestSidecarInvalidatedByChangedSource(t *testing.T) {
	state := &TransferState{
		File:        "/data/part.zip",
		Remote:      "remote/part.zip",
		ChunkSize:   testChunkSize,
		TotalChunks: 3,
	}

	size := int64(2*testChunkSize + testChunkSize/2)
	if !state.Valid("/data/part.zip", "remote/part.zip", size) {
		t.Error("matching sidecar should be valid")
	}
	if state.Valid("/data/other.zip", "remote/part.zip", size) {
		t.Error("sidecar for another file should be invalid")
	}
	if state.Valid("/data/part.zip", "remote/other.zip", size) {
		t.Error("sidecar for another target should be invalid")
	}
	if state.Valid("/data/part.zip", "remote/part.zip", size+1) {
		t.Error("sidecar for a grown file should be invalid")
	}
	if state.Valid("/data/part.zip", "remote/part.zip", size-testChunkSize) {
		t.Error("sidecar for a truncated file should be invalid")
	}
}

func TestHashFileSplitsPerChunk(t *testing.T) {
	source := writeSource(t, 3)
	u := newTestUploader("http://unused")

	info, err := os.Stat(source)
	if err != nil {
		t.Fatal(err)
	}

	fileHash, chunkHashes, err := u.hashFile(source, info.Size())
	if err != nil {
		t.Fatalf("hashing failed: %v", err)
	}
	if len(chunkHashes) != 3 {
		t.Fatalf("got %d chunk hashes, want 3", len(chunkHashes))
	}
	if fileHash == "" {
		t.Error("file hash should not be empty")
	}
	seen := make(map[string]bool)
	for i, h := range chunkHashes {
		if h == "" {
			t.Errorf("chunk %d hash is empty", i)
		}
		if seen[h] {
			t.Errorf("chunk %d hash duplicates another chunk", i)
		}
		seen[h] = true
	}
}

func TestLoginFailureAborts(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad credentials", http.StatusUnauthorized)
	}))
	defer server.Close()

	u := newTestUploader(server.URL)
	err := u.Upload(context.Background(), writeSource(t, 1), "remote/part.zip")

	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected a status error, got %v", err)
	}
	if statusErr.Code != http.StatusUnauthorized {
		t.Errorf("got status %d, want 401", statusErr.Code)
	}
}

func TestChunkRequestCarriesGeometry(t *testing.T) {
	fake := newFakeServer(t)
	var mu sync.Mutex
	queries := make(map[int]string)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, chunkEndpoint) {
			index, _ := strconv.Atoi(strings.TrimPrefix(r.URL.Path, chunkEndpoint))
			mu.Lock()
			queries[index] = r.URL.RawQuery
			mu.Unlock()
		}
		fake.ServeHTTP(w, r)
	}))
	defer server.Close()

	source := writeSource(t, 2)
	u := newTestUploader(server.URL)
	if err := u.Upload(context.Background(), source, "remote/part.zip"); err != nil {
		t.Fatalf("upload failed: %v", err)
	}

	first := queries[0]
	for _, fragment := range []string{
		"path=remote%2Fpart.zip",
		"offset=0",
		fmt.Sprintf("size=%d", testChunkSize),
	} {
		if !strings.Contains(first, fragment) {
			t.Errorf("chunk 0 query %q missing %q", first, fragment)
		}
	}
	last := queries[1]
	for _, fragment := range []string{
		fmt.Sprintf("offset=%d", testChunkSize),
		fmt.Sprintf("size=%d", testChunkSize/2),
	} {
		if !strings.Contains(last, fragment) {
			t.Errorf("chunk 1 query %q missing %q", last, fragment)
		}
	}
}
