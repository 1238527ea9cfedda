package uploader

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const (
	loginEndpoint    = "/uploader/auth/login"
	initEndpoint     = "/uploader/upload/init"
	chunkEndpoint    = "/uploader/upload/chunk/"
	completeEndpoint = "/uploader/upload/complete"

	mismatchErrorCode = "final_hash_mismatch"
)

// StatusError is an HTTP-level rejection from the upload server. It is
// never retried; only transport failures are.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d: %s", e.Code, e.Body)
}

// MismatchError reports that the server's final hash verification
// failed for specific chunks, which must be uploaded again.
type MismatchError struct {
	Chunks []int
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("server reported hash mismatch for %d chunks", len(e.Chunks))
}

// InitResponse is the server's answer to an upload initialization
type InitResponse struct {
	TotalChunks int   `json:"total_chunks"`
	ChunkSize   int64 `json:"chunk_size"`
}

// Client speaks the chunked upload protocol of the media server. A
// successful Login stores the session cookie used by all later calls.
// Uploads of large files can run for hours, so the underlying HTTP
// client carries no overall timeout.
type Client struct {
	server     string
	httpClient *http.Client
	sessionID  string
}

// NewClient creates a client for the given server URL. TLS
// verification can be disabled for servers with self-signed
// certificates.
func NewClient(serverURL string, verifyTLS bool) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !verifyTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Client{
		server:     strings.TrimRight(serverURL, "/"),
		httpClient: &http.Client{Transport: transport},
	}
}

// Login authenticates and stores the returned session identifier
func (c *Client) Login(ctx context.Context, username, password string) error {
	payload := map[string]string{"username": username, "password": password}

	resp, err := c.postJSON(ctx, loginEndpoint, payload)
	if err != nil {
		return fmt.Errorf("login request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readStatusError(resp)
	}

	var result struct {
		Username  string `json:"username"`
		SessionID string `json:"sessionid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return fmt.Errorf("failed to parse login response: %w", err)
	}
	if result.SessionID == "" {
		return fmt.Errorf("login response contained no session identifier")
	}

	c.sessionID = result.SessionID
	return nil
}

// Init registers the upload with the server and returns its chunk
// geometry
func (c *Client) Init(ctx context.Context, remote string, size int64, fileHash string) (*InitResponse, error) {
	payload := map[string]any{
		"path":      remote,
		"size":      size,
		"file_hash": fileHash,
	}

	resp, err := c.postJSON(ctx, initEndpoint, payload)
	if err != nil {
		return nil, fmt.Errorf("upload initialization failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readStatusError(resp)
	}

	var result InitResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to parse initialization response: %w", err)
	}
	return &result, nil
}

// UploadChunk streams one chunk to the server. The body must deliver
// exactly size bytes; the server verifies the hash before accepting.
func (c *Client) UploadChunk(ctx context.Context, body io.Reader, remote string, index int, offset, size int64, hash string) error {
	query := url.Values{}
	query.Set("path", remote)
	query.Set("offset", strconv.FormatInt(offset, 10))
	query.Set("size", strconv.FormatInt(size, 10))
	query.Set("hash", hash)
	target := fmt.Sprintf("%s%s%d?%s", c.server, chunkEndpoint, index, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, body)
	if err != nil {
		return fmt.Errorf("failed to build chunk request: %w", err)
	}
	req.ContentLength = size
	req.Header.Set("Content-Type", "application/octet-stream")
	c.addSession(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chunk %d transfer failed: %w", index, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readStatusError(resp)
	}

	var result struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return &StatusError{Code: resp.StatusCode, Body: "unparsable chunk response"}
	}
	if result.Status != "ok" {
		return &StatusError{Code: resp.StatusCode, Body: fmt.Sprintf("chunk rejected with status %q", result.Status)}
	}
	return nil
}

// Complete asks the server to assemble and verify the upload. A hash
// mismatch is returned as a *MismatchError naming the bad chunks.
func (c *Client) Complete(ctx context.Context, remote string, size int64, fileHash string, chunkHashes []string) error {
	payload := map[string]any{
		"path":         remote,
		"size":         size,
		"file_hash":    fileHash,
		"chunk_hashes": chunkHashes,
	}

	resp, err := c.postJSON(ctx, completeEndpoint, payload)
	if err != nil {
		return fmt.Errorf("upload finalization failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var detail struct {
		Detail struct {
			ErrorCode      string `json:"error_code"`
			MismatchChunks []int  `json:"mismatch_chunks"`
		} `json:"detail"`
	}
	if err := json.Unmarshal(body, &detail); err == nil && detail.Detail.ErrorCode == mismatchErrorCode {
		return &MismatchError{Chunks: detail.Detail.MismatchChunks}
	}
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

func (c *Client) postJSON(ctx context.Context, endpoint string, payload any) (*http.Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.server+endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addSession(req)

	return c.httpClient.Do(req)
}

func (c *Client) addSession(req *http.Request) {
	if c.sessionID != "" {
		req.AddCookie(&http.Cookie{Name: "sessionid", Value: c.sessionID})
	}
}

func readStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

