package remotestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"
	"unicode/utf8"

	"github.com/alexjbarnes/lifeos/internal/document"
	lifeoserrors "github.com/alexjbarnes/lifeos/internal/errors"
)

const (
	// maxRedirects is the maximum number of HTTP redirects to follow
	// before giving up, matching the default net/http limit.
	maxRedirects = 10

	// httpClientTimeout is the timeout for the default HTTP client used
	// when no custom client is provided.
	httpClientTimeout = 30 * time.Second

	// maxResponseBytes caps response body reads. The unified document
	// is a single JSON value; 16MB leaves generous headroom.
	maxResponseBytes = 16 * 1024 * 1024
)

// HTTPStore talks to the LifeOS file API. The API exposes one file per
// account plus backup files under a per-account prefix.
type HTTPStore struct {
	httpClient *http.Client
	baseURL    string
	token      string
	account    string
}

// sameHostRedirectPolicy follows redirects only when the target host
// matches the original request host. This prevents the bearer token
// from leaking to third-party domains.
func sameHostRedirectPolicy(req *http.Request, via []*http.Request) error {
	if len(via) >= maxRedirects {
		return errors.New("stopped after 10 redirects")
	}

	if len(via) > 0 {
		origHost := via[0].URL.Host
		if req.URL.Host != origHost {
			return fmt.Errorf("redirect to different host blocked: %s -> %s", origHost, req.URL.Host)
		}
	}

	return nil
}

// NewHTTPStore creates a file API client. If httpClient is nil, a
// client with a 30-second timeout and same-host redirect policy is
// created.
func NewHTTPStore(httpClient *http.Client, baseURL, token, account string) *HTTPStore {
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout:       httpClientTimeout,
			CheckRedirect: sameHostRedirectPolicy,
		}
	}

	return &HTTPStore{
		httpClient: httpClient,
		baseURL:    baseURL,
		token:      token,
		account:    account,
	}
}

func (c *HTTPStore) documentName() string {
	return c.account + ".json"
}

func (c *HTTPStore) backupPrefix() string {
	return "backups/" + c.account + "/"
}

// sanitizeResponseBody truncates and sanitizes a response body for
// inclusion in error messages. Limits to 256 bytes and replaces
// non-printable characters to prevent log injection.
func sanitizeResponseBody(body []byte) string {
	const maxLen = 256
	if len(body) > maxLen {
		body = body[:maxLen]
	}

	var clean []byte

	for len(body) > 0 {
		r, size := utf8.DecodeRune(body)
		if r == utf8.RuneError && size <= 1 {
			clean = append(clean, '?')
			body = body[1:]

			continue
		}

		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			clean = append(clean, '?')
		} else {
			clean = append(clean, body[:size]...)
		}

		body = body[size:]
	}

	return string(clean)
}

// isTransientStatus returns true for HTTP status codes that indicate a
// temporary server-side problem worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}

	return false
}

// do sends a request with auth headers and returns the raw response
// body. A nil body with no error means the resource does not exist.
func (c *HTTPStore) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.token)

	if body != nil {
		req.Header.Set("Content-Type", "application/octet-stream")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Network errors (timeouts, connection refused, DNS failures)
		// are transient by nature.
		return nil, &TransientError{Err: fmt.Errorf("sending %s %s: %w", method, path, err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("reading response from %s: %w", path, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, lifeoserrors.ErrRemoteNotFound
	case resp.StatusCode >= 300:
		err := fmt.Errorf("API %s %s returned status %d: %s", method, path, resp.StatusCode, sanitizeResponseBody(respBody))
		if isTransientStatus(resp.StatusCode) {
			return nil, &TransientError{Err: err}
		}

		return nil, err
	}

	return respBody, nil
}

// fileMetadata is the API's metadata response shape. Timestamps are
// unix milliseconds.
type fileMetadata struct {
	Name         string `json:"name"`
	LastModified int64  `json:"lastModified"`
	Size         int64  `json:"size"`
}

// Metadata returns the remote document metadata, or nil when absent.
func (c *HTTPStore) Metadata(ctx context.Context) (*document.Metadata, error) {
	body, err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(c.documentName())+"/metadata", nil)
	if errors.Is(err, lifeoserrors.ErrRemoteNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("fetching remote metadata: %w", err)
	}

	var meta fileMetadata
	if err := json.Unmarshal(body, &meta); err != nil {
		return nil, fmt.Errorf("decoding remote metadata: %w", err)
	}

	return &document.Metadata{
		LastModified: time.UnixMilli(meta.LastModified),
		Size:         meta.Size,
	}, nil
}

// ReadDocument fetches the full remote document.
func (c *HTTPStore) ReadDocument(ctx context.Context) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "/files/"+url.PathEscape(c.documentName()), nil)
	if err != nil {
		return nil, err
	}

	return body, nil
}

// WriteDocument replaces the remote document wholesale.
func (c *HTTPStore) WriteDocument(ctx context.Context, data []byte) error {
	if _, err := c.do(ctx, http.MethodPut, "/files/"+url.PathEscape(c.documentName()), data); err != nil {
		return fmt.Errorf("writing remote document: %w", err)
	}

	return nil
}

// ListBackups lists backup files under the account's backup prefix,
// oldest first.
func (c *HTTPStore) ListBackups(ctx context.Context) ([]BackupInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/files?prefix="+url.QueryEscape(c.backupPrefix()), nil)
	if errors.Is(err, lifeoserrors.ErrRemoteNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	var files []fileMetadata
	if err := json.Unmarshal(body, &files); err != nil {
		return nil, fmt.Errorf("decoding backup list: %w", err)
	}

	backups := make([]BackupInfo, 0, len(files))
	for _, f := range files {
		backups = append(backups, BackupInfo{
			Name:      f.Name,
			CreatedAt: time.UnixMilli(f.LastModified),
			Size:      f.Size,
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.Before(backups[j].CreatedAt)
	})

	return backups, nil
}

// CreateBackup stores a named backup snapshot.
func (c *HTTPStore) CreateBackup(ctx context.Context, name string, data []byte) error {
	if _, err := c.do(ctx, http.MethodPut, "/files/"+url.PathEscape(c.backupPrefix()+name), data); err != nil {
		return fmt.Errorf("creating backup %s: %w", name, err)
	}

	return nil
}

// DeleteBackup removes a backup snapshot.
func (c *HTTPStore) DeleteBackup(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, "/files/"+url.PathEscape(c.backupPrefix()+name), nil)
	if err != nil && !errors.Is(err, lifeoserrors.ErrRemoteNotFound) {
		return fmt.Errorf("deleting backup %s: %w", name, err)
	}

	return nil
}
