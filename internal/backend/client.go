package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/zombor/receipts-web/internal/receipt"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultTimeout = 30 * time.Second
)

// Config holds everything needed to talk to the receipt backend
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client // optional; Timeout is ignored when set
	Normalizer *receipt.Normalizer
}

// Client calls the receipt processing backend and normalizes its responses
type Client struct {
	baseURL    string
	client     *http.Client
	normalizer *receipt.Normalizer
}

// UploadResult is the backend's acknowledgement of an uploaded file
type UploadResult struct {
	FileID   int64
	Filename string
}

// Validation is the backend's verdict on an uploaded file
type Validation struct {
	Valid  bool
	Errors []string
}

// New creates a Client, filling unset Config fields with defaults
func New(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	normalizer := cfg.Normalizer
	if normalizer == nil {
		normalizer = receipt.NewNormalizer()
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     httpClient,
		normalizer: normalizer,
	}
}

// Upload sends a file as the multipart field "file"
func (c *Client) Upload(ctx context.Context, filename string, file io.Reader) (*UploadResult, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("creating form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("writing form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("closing multipart writer: %w", err)
	}

	var raw map[string]any
	if err := c.do(ctx, http.MethodPost, "/upload", nil, &body, writer.FormDataContentType(), &raw); err != nil {
		return nil, err
	}

	v, ok := lookupAny(raw, "file_id", "fileId")
	if !ok {
		return nil, newError("upload response missing file_id")
	}
	fileID := receipt.ParseID(v)
	if fileID <= 0 {
		return nil, newError(fmt.Sprintf("upload response has invalid file_id %v", v))
	}

	name := filename
	if s, ok := raw["filename"].(string); ok && s != "" {
		name = s
	}
	return &UploadResult{FileID: fileID, Filename: name}, nil
}

// Validate asks the backend whether an uploaded file is an acceptable receipt.
// A structurally successful response may still report the file invalid.
func (c *Client) Validate(ctx context.Context, fileID int64) (*Validation, error) {
	var raw map[string]any
	if err := c.do(ctx, http.MethodPost, "/validate", fileQuery(fileID), nil, "", &raw); err != nil {
		return nil, err
	}

	v := &Validation{Valid: true, Errors: []string{}}
	if flag, ok := lookupAny(raw, "is_valid", "isValid", "valid"); ok {
		v.Valid = truthy(flag)
	}
	if list, ok := raw["errors"].([]any); ok {
		for _, e := range list {
			if s := strings.TrimSpace(fmt.Sprint(e)); s != "" {
				v.Errors = append(v.Errors, s)
			}
		}
	}
	if reason, ok := raw["reason"].(string); ok && strings.TrimSpace(reason) != "" {
		v.Errors = append(v.Errors, strings.TrimSpace(reason))
	}
	return v, nil
}

// Process asks the backend to extract a receipt from an uploaded file
func (c *Client) Process(ctx context.Context, fileID int64) (*receipt.Receipt, error) {
	var raw map[string]any
	if err := c.do(ctx, http.MethodPost, "/process", fileQuery(fileID), nil, "", &raw); err != nil {
		return nil, err
	}
	r := c.normalizer.Normalize(raw, strconv.FormatInt(fileID, 10))
	if _, ok := lookupAny(raw, "file_id", "fileId"); !ok || r.FileID == 0 {
		r.FileID = fileID
	}
	return r, nil
}

// Reprocess resubmits the receipt's file to the process endpoint. The
// backend exposes no dedicated reprocess operation; this assumes a second
// process call for the same file re-extracts it.
func (c *Client) Reprocess(ctx context.Context, r *receipt.Receipt) (*receipt.Receipt, error) {
	if r.FileID <= 0 {
		return nil, newError(fmt.Sprintf("receipt %s has no file identifier to reprocess", r.ID))
	}
	return c.Process(ctx, r.FileID)
}

// ListReceipts fetches every receipt. The backend may answer with a bare
// array or with {"receipts": [...]}.
func (c *Client) ListReceipts(ctx context.Context) ([]*receipt.Receipt, error) {
	var raw any
	if err := c.do(ctx, http.MethodGet, "/receipts", nil, nil, "", &raw); err != nil {
		return nil, err
	}

	var list []any
	switch t := raw.(type) {
	case []any:
		list = t
	case map[string]any:
		list, _ = t["receipts"].([]any)
	}

	receipts := make([]*receipt.Receipt, 0, len(list))
	for i, entry := range list {
		obj, ok := entry.(map[string]any)
		if !ok {
			obj = map[string]any{}
		}
		receipts = append(receipts, c.normalizer.Normalize(obj, fmt.Sprintf("receipt-%d", i+1)))
	}
	return receipts, nil
}

// GetReceipt fetches a single receipt
func (c *Client) GetReceipt(ctx context.Context, id string) (*receipt.Receipt, error) {
	var raw map[string]any
	if err := c.do(ctx, http.MethodGet, "/receipts/"+url.PathEscape(id), nil, nil, "", &raw); err != nil {
		return nil, err
	}
	return c.normalizer.Normalize(raw, id), nil
}

func fileQuery(fileID int64) url.Values {
	return url.Values{"file_id": []string{strconv.FormatInt(fileID, 10)}}
}

// do performs a request and decodes a JSON response into out, turning
// every failure into a user-facing error
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp.StatusCode, data)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return newError(fmt.Sprintf("invalid response from %s %s: %v", method, path, err))
	}
	return nil
}

func lookupAny(raw map[string]any, keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// truthy interprets a loosely typed validity flag
func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && b
	case json.Number:
		return t.String() != "0"
	default:
		return false
	}
}
