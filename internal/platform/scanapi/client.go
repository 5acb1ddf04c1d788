package scanapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/vietguard/vietguard-api/internal/config"
	"github.com/vietguard/vietguard-api/internal/platform/logger"
)

// Paths of the scan API.
const (
	pathAppTotalGo      = "/api/service/app-total-go"
	pathStatus          = "/api/service/app-total-go/status/"
	pathFiles           = "/api/service/app-total-go/files/"
	pathHistory         = "/api/service/app-total-go/history"
	pathMembers         = "/api/members"
	pathMemberServices  = "/api/members/services"
	pathExportUsageLogs = "/api/dealers/export-service-usage-logs"
)

// maxJSONBytes caps JSON responses, which are small.
const maxJSONBytes = 10 << 20

// Client talks to the external app-scanning API. It never retries; callers
// decide whether a failure is worth another attempt with IsTransient.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cfg        config.ScanAPIConfig
	logger     *slog.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the pooled HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client from configuration. A nil logger selects
// slog.Default().
func NewClient(cfg config.ScanAPIConfig, logger *slog.Logger, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("%w: base url %q", ErrInvalidConfig, cfg.BaseURL)
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: api key cannot be empty", ErrInvalidConfig)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:    strings.TrimRight(base.String(), "/"),
		apiKey:     cfg.APIKey,
		httpClient: cleanhttp.DefaultPooledClient(),
		cfg:        cfg,
		logger:     logger.With(slog.String("component", "scanapi")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// envelope is the response wrapper used by every JSON endpoint.
type envelope struct {
	Code    json.RawMessage `json:"code"`
	Message string          `json:"message"`
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
}

type taskData struct {
	ID     json.RawMessage `json:"id"`
	Status string          `json:"status"`
}

// ExtractID returns data.id of a response body as a string. Numeric and
// string ids are both accepted; an absent id yields "".
func ExtractID(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil || len(env.Data) == 0 {
		return ""
	}
	var data taskData
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return ""
	}
	raw := strings.TrimSpace(string(data.ID))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(data.ID, &s); err == nil {
		return s
	}
	return raw
}

func (c *Client) do(
	ctx context.Context,
	method, path string,
	query url.Values,
	body io.Reader,
	contentType string,
	limit int64,
) ([]byte, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build scan api request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "text/plain")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Warn("scan api request failed",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()))
		return nil, fmt.Errorf("scan api %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read scan api response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrResponseTooLarge, limit)
	}

	log.Debug("scan api call",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

// errorMessage extracts a human readable message from an error body.
func errorMessage(body []byte) string {
	var env envelope
	if err := json.Unmarshal(body, &env); err == nil && env.Message != "" {
		return env.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return msg
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, path, query, nil, "", maxJSONBytes)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (json.RawMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode scan api request: %w", err)
	}
	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()
	return c.do(ctx, http.MethodPost, path, nil, bytes.NewReader(body), "application/json", maxJSONBytes)
}

// SubmitRequest is an application file to scan on behalf of a member.
type SubmitRequest struct {
	// MemberName is the member's name in the scanning system.
	MemberName  string
	ClientIP    string
	FileName    string
	ContentType string
	File        io.Reader
}

// SubmitResult is the scanner's answer to a submission.
type SubmitResult struct {
	ID  string
	Raw json.RawMessage
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func writeSubmitForm(mw *multipart.Writer, r SubmitRequest) error {
	if err := mw.WriteField("ClientIp", r.ClientIP); err != nil {
		return err
	}
	contentType := r.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="File"; filename="%s"`, quoteEscaper.Replace(r.FileName)))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, r.File); err != nil {
		return err
	}
	return mw.WriteField("MemberName", r.MemberName)
}

// Submit uploads a file for scanning and returns the scanner's task id.
// The form is streamed, so the file is never held in memory here.
func (c *Client) Submit(ctx context.Context, r SubmitRequest) (*SubmitResult, error) {
	if r.File == nil {
		return nil, ErrMissingFile
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := writeSubmitForm(mw, r)
		if closeErr := mw.Close(); err == nil {
			err = closeErr
		}
		_ = pw.CloseWithError(err)
	}()

	ctx, cancel := withTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	body, err := c.do(ctx, http.MethodPost, pathAppTotalGo, nil, pr, mw.FormDataContentType(), maxJSONBytes)
	_ = pr.Close()
	if err != nil {
		return nil, err
	}

	id := ExtractID(body)
	if id == "" {
		return nil, fmt.Errorf("%w: submission response has no data.id", ErrInvalidResponse)
	}
	return &SubmitResult{ID: id, Raw: body}, nil
}

// GetStatus returns the raw status string the scanner reports for id.
func (c *Client) GetStatus(ctx context.Context, id string) (string, error) {
	body, err := c.GetStatusResponse(ctx, id)
	if err != nil {
		return "", err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(env.Data) > 0 {
		var data taskData
		if err := json.Unmarshal(env.Data, &data); err == nil && data.Status != "" {
			return data.Status, nil
		}
	}
	if env.Status != "" {
		return env.Status, nil
	}
	return "", fmt.Errorf("%w: status response has no status", ErrInvalidResponse)
}

// GetArtifact downloads the analysis result of id and detects its type.
func (c *Client) GetArtifact(ctx context.Context, id string) (*Artifact, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	ctx, cancel := withTimeout(ctx, c.cfg.ArtifactTimeout)
	defer cancel()

	limit := c.cfg.MaxArtifactBytes
	if limit <= 0 {
		limit = 100 << 20
	}
	data, err := c.do(ctx, http.MethodGet, pathFiles+url.PathEscape(id), nil, nil, "", limit)
	if err != nil {
		return nil, err
	}
	return NewArtifact(id, data), nil
}

// ServiceAssignment entitles a member to one product.
type ServiceAssignment struct {
	ServiceType int `json:"serviceType"`
}

// CreateMemberRequest registers a member in the scanning system.
type CreateMemberRequest struct {
	Name     string              `json:"name"`
	Services []ServiceAssignment `json:"services"`
}

// CreateMember registers a member and returns the scanner's response.
func (c *Client) CreateMember(ctx context.Context, r CreateMemberRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, pathMembers, r)
}

// ListMembers returns one page of members. Only the query keys the scanner
// understands are forwarded.
func (c *Client) ListMembers(ctx context.Context, query url.Values) (json.RawMessage, error) {
	forwarded := url.Values{}
	for _, key := range []string{"page", "pageSize", "sortOrder", "sortBy", "memberName", "dealerName"} {
		if v := query.Get(key); v != "" {
			forwarded.Set(key, v)
		}
	}
	return c.getJSON(ctx, pathMembers, forwarded)
}

// AssignServicesRequest adds services to an existing scanner member.
type AssignServicesRequest struct {
	ID       int                 `json:"id"`
	DealerID *int                `json:"dealerId,omitempty"`
	Services []ServiceAssignment `json:"services"`
}

// AssignServices adds services to a member.
func (c *Client) AssignServices(ctx context.Context, r AssignServicesRequest) (json.RawMessage, error) {
	return c.postJSON(ctx, pathMemberServices, r)
}

// GetHistory lists scans between two optional ISO8601 instants.
func (c *Client) GetHistory(ctx context.Context, startTime, endTime string) (json.RawMessage, error) {
	query := url.Values{}
	if startTime != "" {
		query.Set("startTime", startTime)
	}
	if endTime != "" {
		query.Set("endTime", endTime)
	}
	return c.getJSON(ctx, pathHistory, query)
}

// GetStatusResponse returns the scanner's status response for id unchanged.
func (c *Client) GetStatusResponse(ctx context.Context, id string) (json.RawMessage, error) {
	if id == "" {
		return nil, ErrMissingID
	}
	ctx, cancel := withTimeout(ctx, c.cfg.StatusTimeout)
	defer cancel()
	return c.do(ctx, http.MethodGet, pathStatus+url.PathEscape(id), nil, nil, "", maxJSONBytes)
}

// ExportServiceUsageLogs downloads the usage spreadsheet.
func (c *Client) ExportServiceUsageLogs(ctx context.Context) ([]byte, error) {
	ctx, cancel := withTimeout(ctx, c.cfg.ExportTimeout)
	defer cancel()

	limit := c.cfg.MaxExportBytes
	if limit <= 0 {
		limit = 50 << 20
	}
	return c.do(ctx, http.MethodGet, pathExportUsageLogs, nil, nil, "", limit)
}
