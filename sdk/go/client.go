package expedientessdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Expedientes HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/api",
		Timeout:  10 * time.Second,
	}
}

type UserRef struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
	Area     string `json:"area,omitempty"`
}

type User struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Name      string `json:"name"`
	Area      string `json:"area"`
	Role      string `json:"role"`
	CreatedAt string `json:"created_at"`
}

// CaseFile is an expediente.
type CaseFile struct {
	ID          string   `json:"id"`
	Number      string   `json:"numero"`
	Title       string   `json:"titulo"`
	Description string   `json:"descripcion"`
	Area        string   `json:"area"`
	Status      string   `json:"estado"`
	Priority    string   `json:"prioridad"`
	Article     string   `json:"articulo"`
	OwnerID     string   `json:"owner_id"`
	CreatedBy   string   `json:"created_by"`
	Owner       *UserRef `json:"user,omitempty"`
	Creator     *UserRef `json:"creator,omitempty"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

type TransferRequest struct {
	ID         string    `json:"id"`
	CaseFileID string    `json:"expediente_id"`
	FromUserID string    `json:"from_user_id"`
	ToUserID   string    `json:"to_user_id"`
	ToArea     string    `json:"to_area"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	CaseFile   *CaseFile `json:"expediente,omitempty"`
	FromUser   *UserRef  `json:"from_user,omitempty"`
	ToUser     *UserRef  `json:"to_user,omitempty"`
	CreatedAt  string    `json:"created_at"`
	UpdatedAt  string    `json:"updated_at"`
	ResolvedAt string    `json:"resolved_at,omitempty"`
}

// HistoryRecord is one accepted transfer.
type HistoryRecord struct {
	ID           string   `json:"id"`
	CaseFileID   string   `json:"expediente_id"`
	RequestID    string   `json:"request_id"`
	FromArea     string   `json:"from_area"`
	ToArea       string   `json:"to_area"`
	FromUserID   string   `json:"from_user_id"`
	ToUserID     string   `json:"to_user_id"`
	Observations string   `json:"observaciones"`
	FromUser     *UserRef `json:"from_user,omitempty"`
	ToUser       *UserRef `json:"to_user,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// Page wraps list responses with cursors.
type Page[T any] struct {
	Items      []T    `json:"items"`
	NextCursor string `json:"next_cursor"`
}

type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expires_at"`
	User      User   `json:"user"`
}

type CreateCaseFileInput struct {
	Number      string `json:"numero"`
	Title       string `json:"titulo"`
	Description string `json:"descripcion,omitempty"`
	Status      string `json:"estado,omitempty"`
	Priority    string `json:"prioridad,omitempty"`
	Article     string `json:"articulo"`
}

type CreateUserInput struct {
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
	Area     string `json:"area"`
	Role     string `json:"role,omitempty"`
}

type ListCaseFilesOptions struct {
	Search string
	Status string
	Area   string
	Limit  int
	Cursor string
}

type EventsOptions struct {
	Type       string
	EntityKind string
	EntityID   string
	Limit      int
	Cursor     string
}

// APIError wraps non-2xx responses. Code, Message and Details come from the
// error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// IsStatus reports whether err is an APIError with the given status code.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "health", nil, nil)
}

// DevLogin mints a token for username on servers that allow it. The token is
// stored on the client.
func (c *Client) DevLogin(ctx context.Context, username string) (LoginResponse, error) {
	var resp LoginResponse
	err := c.do(ctx, http.MethodPost, "auth/dev/login", map[string]any{"username": username}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

// Logout clears the stored token. The server call is best effort and its
// error can be ignored.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodPost, "auth/logout", nil, nil)
	c.BearerToken = ""
	return err
}

func (c *Client) Me(ctx context.Context) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// ListCaseFiles returns one page of the case files visible to the caller.
func (c *Client) ListCaseFiles(ctx context.Context, opts ListCaseFilesOptions) (Page[CaseFile], error) {
	q := url.Values{}
	setQuery(q, "search", opts.Search)
	setQuery(q, "estado", opts.Status)
	setQuery(q, "area", opts.Area)
	setQuery(q, "cursor", opts.Cursor)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	var resp Page[CaseFile]
	err := c.do(ctx, http.MethodGet, withQuery("expedientes", q), nil, &resp)
	return resp, err
}

func (c *Client) CreateCaseFile(ctx context.Context, in CreateCaseFileInput) (CaseFile, error) {
	var resp CaseFile
	err := c.do(ctx, http.MethodPost, "expedientes", in, &resp)
	return resp, err
}

func (c *Client) GetCaseFile(ctx context.Context, id string) (CaseFile, error) {
	var resp CaseFile
	err := c.do(ctx, http.MethodGet, "expedientes/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// History lists accepted transfers of a case file, newest first.
func (c *Client) History(ctx context.Context, caseFileID string, limit int, cursor string) (Page[HistoryRecord], error) {
	q := url.Values{}
	setQuery(q, "cursor", cursor)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp Page[HistoryRecord]
	err := c.do(ctx, http.MethodGet, withQuery("expedientes/"+url.PathEscape(caseFileID)+"/history", q), nil, &resp)
	return resp, err
}

func (c *Client) RequestTransfer(ctx context.Context, caseFileID, toUserID, message string) (TransferRequest, error) {
	body := map[string]any{
		"expediente_id": caseFileID,
		"to_user_id":    toUserID,
	}
	if message != "" {
		body["message"] = message
	}
	var resp TransferRequest
	err := c.do(ctx, http.MethodPost, "transfers/request", body, &resp)
	return resp, err
}

// Notifications returns pending transfer requests addressed to the caller.
func (c *Client) Notifications(ctx context.Context, limit int, cursor string) (Page[TransferRequest], error) {
	q := url.Values{}
	setQuery(q, "cursor", cursor)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp Page[TransferRequest]
	err := c.do(ctx, http.MethodGet, withQuery("transfers/notifications", q), nil, &resp)
	return resp, err
}

func (c *Client) AcceptTransfer(ctx context.Context, requestID string) (TransferRequest, error) {
	var resp TransferRequest
	err := c.do(ctx, http.MethodPost, "transfers/accept/"+url.PathEscape(requestID), nil, &resp)
	return resp, err
}

func (c *Client) RejectTransfer(ctx context.Context, requestID string) (TransferRequest, error) {
	var resp TransferRequest
	err := c.do(ctx, http.MethodPost, "transfers/reject/"+url.PathEscape(requestID), nil, &resp)
	return resp, err
}

func (c *Client) UsersByArea(ctx context.Context, area string) ([]User, error) {
	var resp struct {
		Items []User `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "users/by-area/"+url.PathEscape(area), nil, &resp)
	return resp.Items, err
}

// CreateUser registers a user. Requires an admin caller.
func (c *Client) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	var resp User
	err := c.do(ctx, http.MethodPost, "users", in, &resp)
	return resp, err
}

// Events returns a page of recent events. Requires an admin caller.
func (c *Client) Events(ctx context.Context, opts EventsOptions) (Page[Event], error) {
	q := url.Values{}
	setQuery(q, "type", opts.Type)
	setQuery(q, "entity_kind", opts.EntityKind)
	setQuery(q, "entity_id", opts.EntityID)
	setQuery(q, "cursor", opts.Cursor)
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	var resp Page[Event]
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return newAPIError(resp.StatusCode, b)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var env struct {
		Error struct {
			Code    string         `json:"code"`
			Message string         `json:"message"`
			Details map[string]any `json:"details"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}

func setQuery(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}
