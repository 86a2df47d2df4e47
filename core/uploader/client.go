package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"EchoVault/model"
)

// DuplicateCode is the structured error code the server returns when it
// rejects an upload as a duplicate. Clients use it to distinguish "already
// have this" from generic failure.
const DuplicateCode = "DUPLICATE"

// Result is the outcome of a successful upload.
type Result struct {
	SongID int64
}

// errorResponse is the server's structured error body.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

// Client uploads a single file to the remote endpoint as a multipart POST.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates an upload client for the given endpoint and bearer token.
func NewClient(endpoint, token string) *Client {
	return &Client{
		endpoint: endpoint,
		token:    token,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute, // large files over slow links
		},
	}
}

// progressReader reports read progress as a percentage of the total body.
type progressReader struct {
	r        io.Reader
	total    int64
	read     int64
	progress func(float64)
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 && pr.total > 0 && pr.progress != nil {
		pr.read += int64(n)
		pct := float64(pr.read) / float64(pr.total) * 100
		if pct > 100 {
			pct = 100
		}
		pr.progress(pct)
	}
	return n, err
}

// Upload streams the item's file to the endpoint. The progress callback is
// invoked zero or more times with non-decreasing values in [0,100].
func (c *Client) Upload(ctx context.Context, item *model.UploadItem, progress func(float64)) (*Result, error) {
	file, err := os.Open(item.FilePath)
	if err != nil {
		return nil, fmt.Errorf("open payload: %w", err)
	}
	defer file.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	fields := map[string]string{
		"title":  item.Title,
		"artist": item.Artist,
		"album":  item.Album,
		"genres": model.JoinGenres(item.Genres),
	}
	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			return nil, fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	part, err := writer.CreateFormFile("songFile", filepath.Base(item.FilePath))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	pr := &progressReader{r: &body, total: int64(body.Len()), progress: progress}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, pr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.ContentLength = pr.total
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK {
		var created struct {
			ID int64 `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return nil, fmt.Errorf("decode upload response: %w", err)
		}
		return &Result{SongID: created.ID}, nil
	}

	return nil, c.classifyFailure(resp)
}

// classifyFailure maps an error response to a sentinel where the status or
// structured code allows it, so the retry wrapper can fail fast.
func (c *Client) classifyFailure(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var body errorResponse
	_ = json.Unmarshal(raw, &body)
	message := body.Error
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}

	switch {
	case body.Code == DuplicateCode || resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrDuplicate, message)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, message)
	case resp.StatusCode == http.StatusBadRequest ||
		resp.StatusCode == http.StatusRequestEntityTooLarge ||
		resp.StatusCode == http.StatusUnsupportedMediaType:
		return fmt.Errorf("%w: %s", ErrInvalidFile, message)
	default:
		// 5xx and anything unclassified is treated as transient.
		return fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, message)
	}
}
