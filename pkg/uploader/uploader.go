package uploader

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dustin/go-humanize"
	"github.com/zeebo/blake3"

	"github.com/ijfvianauhu/wildintel-tools/pkg/logging"
	"github.com/ijfvianauhu/wildintel-tools/pkg/output"
	"github.com/ijfvianauhu/wildintel-tools/pkg/ratelimit"
)

const (
	// ChunkSize is the transfer unit negotiated with the server
	ChunkSize = 64 << 20
	// ReadChunkSize bounds memory while hashing and streaming
	ReadChunkSize = 4 << 20

	retryInitialInterval = 2 * time.Second
	retryMaxInterval     = 15 * time.Second
	retryMaxAttempts     = 5
)

// Options configures an Uploader
type Options struct {
	ServerURL string
	Username  string
	Password  string
	VerifyTLS bool

	// MaxParallel bounds concurrent chunk transfers
	MaxParallel int
	// BandwidthLimit caps aggregate upload throughput in bytes per
	// second; zero disables limiting
	BandwidthLimit int64

	Logger logging.Logger
	Events *output.Hub
}

// Uploader transfers files to the media server in resumable chunks.
// Progress survives interruption through a sidecar written next to the
// source file; a rerun uploads only the chunks the sidecar does not
// record as completed.
type Uploader struct {
	opts    Options
	client  *Client
	logger  logging.Logger
	limiter *ratelimit.Limiter

	// chunkSize and newBackOff are fixed in production and only
	// overridden by tests
	chunkSize  int64
	newBackOff func() backoff.BackOff
}

// New creates an Uploader
func New(opts Options) *Uploader {
	if opts.MaxParallel < 1 {
		opts.MaxParallel = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNullLogger()
	}

	return &Uploader{
		opts:      opts,
		client:    NewClient(opts.ServerURL, opts.VerifyTLS),
		logger:    logger.WithFields(logging.Fields{"component": "uploader"}),
		limiter:   ratelimit.NewLimiter(opts.BandwidthLimit),
		chunkSize: ChunkSize,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = retryInitialInterval
			b.MaxInterval = retryMaxInterval
			return b
		},
	}
}

// Upload logs in and transfers filePath to remotePath on the server.
// On success the sidecar is removed; on failure it is left behind so
// the next invocation resumes from the completed chunks.
func (u *Uploader) Upload(ctx context.Context, filePath, remotePath string) error {
	if err := u.client.Login(ctx, u.opts.Username, u.opts.Password); err != nil {
		return err
	}
	u.logger.Info(ctx, "authenticated with upload server", logging.Fields{
		"server": u.opts.ServerURL,
	})
	return u.uploadFile(ctx, filePath, remotePath)
}

func (u *Uploader) uploadFile(ctx context.Context, filePath, remotePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return fmt.Errorf("failed to stat upload source: %w", err)
	}
	size := info.Size()

	store, err := u.openState(ctx, filePath, remotePath, size)
	if err != nil {
		return err
	}
	state := store.state
	completed := store.completedChunks()

	u.logger.Info(ctx, "starting upload", logging.Fields{
		"file":   filePath,
		"remote": remotePath,
		"size":   humanize.Bytes(uint64(size)),
		"chunks": state.TotalChunks,
		"done":   len(completed),
	})

	// The server only needs initialization for a transfer it has not
	// seen; any completed chunk proves the transfer exists.
	if len(completed) == 0 {
		if _, err := u.client.Init(ctx, remotePath, size, state.FileHash); err != nil {
			return err
		}
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("failed to open upload source: %w", err)
	}
	defer file.Close()

	output.Emit(u.opts.Events, output.Event{
		Kind:  output.EventDeploymentStart,
		File:  filePath,
		Count: state.TotalChunks,
	})

	if err := u.uploadChunks(ctx, file, store, remotePath, size, completed); err != nil {
		return err
	}

	if err := u.finalize(ctx, store, remotePath, size); err != nil {
		return err
	}

	if err := store.remove(); err != nil {
		return err
	}
	output.Emit(u.opts.Events, output.Event{
		Kind: output.EventDeploymentComplete,
		File: filePath,
	})
	u.logger.Info(ctx, "upload complete", logging.Fields{
		"file":   filePath,
		"remote": remotePath,
	})
	return nil
}

// openState resumes from an existing sidecar when it still matches the
// source file and target, and otherwise hashes the file and starts a
// fresh transfer record.
func (u *Uploader) openState(ctx context.Context, filePath, remotePath string, size int64) (*sidecarStore, error) {
	sidecar := SidecarPath(filePath)

	if state, err := loadSidecar(sidecar); err == nil {
		if state.Valid(filePath, remotePath, size) {
			u.logger.Info(ctx, "resuming interrupted upload", logging.Fields{
				"file": filePath,
				"done": len(state.Completed),
			})
			return newSidecarStore(sidecar, state), nil
		}
		u.logger.Warn(ctx, "upload sidecar no longer matches source, restarting", logging.Fields{
			"file": filePath,
		})
	} else if !os.IsNotExist(err) {
		u.logger.Warn(ctx, "unreadable upload sidecar, restarting", logging.Fields{
			"file":  filePath,
			"error": err.Error(),
		})
	}

	fileHash, chunkHashes, err := u.hashFile(filePath, size)
	if err != nil {
		return nil, err
	}

	state := &TransferState{
		File:        filePath,
		Remote:      remotePath,
		FileHash:    fileHash,
		ChunkSize:   u.chunkSize,
		TotalChunks: len(chunkHashes),
		ChunkHashes: chunkHashes,
		Completed:   make(map[string]string),
	}
	store := newSidecarStore(sidecar, state)
	if err := store.update(func(*TransferState) {}); err != nil {
		return nil, err
	}
	return store, nil
}

// hashFile computes the whole-file digest and every chunk digest in a
// single sequential pass
func (u *Uploader) hashFile(filePath string, size int64) (string, []string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", nil, fmt.Errorf("failed to open file for hashing: %w", err)
	}
	defer file.Close()

	total := int((size + u.chunkSize - 1) / u.chunkSize)
	if total == 0 {
		total = 1
	}

	fullHasher := blake3.New()
	chunkHashes := make([]string, 0, total)
	buf := make([]byte, ReadChunkSize)

	for i := 0; i < total; i++ {
		chunkHasher := blake3.New()
		remaining := size - int64(i)*u.chunkSize
		if remaining > u.chunkSize {
			remaining = u.chunkSize
		}

		for remaining > 0 {
			n := int64(len(buf))
			if remaining < n {
				n = remaining
			}
			read, err := io.ReadFull(file, buf[:n])
			if err != nil {
				return "", nil, fmt.Errorf("failed to read file for hashing: %w", err)
			}
			fullHasher.Write(buf[:read])
			chunkHasher.Write(buf[:read])
			remaining -= int64(read)
		}
		chunkHashes = append(chunkHashes, hex.EncodeToString(chunkHasher.Sum(nil)))
	}

	return hex.EncodeToString(fullHasher.Sum(nil)), chunkHashes, nil
}

// uploadChunks transfers every chunk not yet recorded as completed,
// bounded by MaxParallel concurrent transfers
func (u *Uploader) uploadChunks(ctx context.Context, file *os.File, store *sidecarStore, remotePath string, size int64, completed map[int]bool) error {
	state := store.state

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, u.opts.MaxParallel)
	errChan := make(chan error, state.TotalChunks)

	for index := 0; index < state.TotalChunks; index++ {
		if completed[index] {
			continue
		}
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		go func(index int) {
			defer wg.Done()

			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			if err := u.uploadChunk(ctx, file, store, remotePath, size, index); err != nil {
				errChan <- err
			}
		}(index)
	}

	wg.Wait()
	close(errChan)

	for err := range errChan {
		return err
	}
	return ctx.Err()
}

// uploadChunk sends a single chunk, retrying transport failures with
// exponential backoff. HTTP-level rejections are never retried. The
// completed record is persisted before returning so an interruption
// after this point cannot lose the chunk.
func (u *Uploader) uploadChunk(ctx context.Context, file *os.File, store *sidecarStore, remotePath string, size int64, index int) error {
	state := store.state
	offset := int64(index) * state.ChunkSize
	length := size - offset
	if length > state.ChunkSize {
		length = state.ChunkSize
	}
	hash := state.ChunkHashes[index]

	operation := func() error {
		body := ratelimit.NewReader(ctx, io.NewSectionReader(file, offset, length), u.limiter)
		err := u.client.UploadChunk(ctx, body, remotePath, index, offset, length, hash)
		if err == nil {
			return nil
		}

		var statusErr *StatusError
		if errors.As(err, &statusErr) {
			return backoff.Permanent(err)
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			u.logger.Warn(ctx, "chunk transfer failed, retrying", logging.Fields{
				"remote": remotePath,
				"chunk":  index,
				"error":  urlErr.Error(),
			})
			return err
		}
		return backoff.Permanent(err)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(u.newBackOff(), retryMaxAttempts-1), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return fmt.Errorf("chunk %d of %s: %w", index, remotePath, err)
	}

	if err := store.update(func(s *TransferState) {
		s.Completed[strconv.Itoa(index)] = hash
	}); err != nil {
		return err
	}

	output.Emit(u.opts.Events, output.Event{
		Kind:  output.EventFileProgress,
		File:  state.File,
		Count: 1,
	})
	u.logger.Debug(ctx, "chunk uploaded", logging.Fields{
		"remote": remotePath,
		"chunk":  index,
		"size":   humanize.Bytes(uint64(length)),
	})
	return nil
}

// finalize asks the server to verify the assembled file. When the
// server reports mismatched chunks, their completed records are
// evicted so the next attempt uploads them again.
func (u *Uploader) finalize(ctx context.Context, store *sidecarStore, remotePath string, size int64) error {
	state := store.state

	err := u.client.Complete(ctx, remotePath, size, state.FileHash, state.ChunkHashes)
	if err == nil {
		return nil
	}

	var mismatch *MismatchError
	if errors.As(err, &mismatch) {
		u.logger.Warn(ctx, "server rejected assembled file, rescheduling chunks", logging.Fields{
			"remote": remotePath,
			"chunks": mismatch.Chunks,
		})
		if updateErr := store.update(func(s *TransferState) {
			for _, index := range mismatch.Chunks {
				delete(s.Completed, strconv.Itoa(index))
			}
		}); updateErr != nil {
			return updateErr
		}
	}
	return err
}
