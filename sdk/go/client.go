package certlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal Certline HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL, actorID string) *Client {
	return &Client{
		BaseURL: baseURL,
		ActorID: actorID,
		Timeout: 10 * time.Second,
	}
}

// Test is an electrical test record.
type Test struct {
	ID              string  `json:"id"`
	CertificateType string  `json:"certificate_type"`
	Site            string  `json:"site,omitempty"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
	UpdatedAt       string  `json:"updated_at"`
	CompletedAt     *string `json:"completed_at,omitempty"`
}

// TestDetail is a test with its circuits.
type TestDetail struct {
	Test
	Circuits []Circuit `json:"circuits"`
}

type Circuit struct {
	ID                      string `json:"id"`
	TestID                  string `json:"test_id"`
	Ref                     string `json:"ref"`
	Description             string `json:"description,omitempty"`
	CircuitType             string `json:"circuit_type,omitempty"`
	OvercurrentDeviceType   string `json:"overcurrent_device_type,omitempty"`
	OvercurrentDeviceRating string `json:"overcurrent_device_rating,omitempty"`
	CreatedAt               string `json:"created_at"`
}

// ValidationResult is the outcome of checking one reading.
type ValidationResult struct {
	Pass              bool   `json:"pass"`
	Status            string `json:"status"`
	Message           string `json:"message"`
	StandardReference string `json:"standard_reference,omitempty"`
}

type Measurement struct {
	ID              string           `json:"id"`
	TestID          string           `json:"test_id"`
	CircuitID       string           `json:"circuit_id"`
	MeasurementType string           `json:"measurement_type"`
	Value           float64          `json:"value"`
	Result          ValidationResult `json:"result"`
	RecordedAt      string           `json:"recorded_at"`
}

type SkippedReading struct {
	MeasurementType string `json:"measurement_type"`
	Raw             string `json:"raw"`
	Reason          string `json:"reason"`
}

// Readings is the response to RecordReadings.
type Readings struct {
	Measurements []Measurement    `json:"measurements"`
	Skipped      []SkippedReading `json:"skipped"`
}

type InspectionItem struct {
	ItemCode string `json:"item_code"`
	Category string `json:"category"`
	Item     string `json:"item"`
	Result   string `json:"result,omitempty"`
	Notes    string `json:"notes,omitempty"`
}

type Progress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
	Percent   int `json:"percent"`
}

type Checklist struct {
	TestID          string           `json:"test_id"`
	CertificateType string           `json:"certificate_type"`
	Items           []InspectionItem `json:"items"`
	Progress        Progress         `json:"progress"`
}

// ItemUpdate changes one item; nil fields are left as they are.
type ItemUpdate struct {
	ItemCode string  `json:"item_code"`
	Result   *string `json:"result,omitempty"`
	Notes    *string `json:"notes,omitempty"`
}

type ItemFailure struct {
	ItemCode string `json:"item_code"`
	Reason   string `json:"reason"`
	Message  string `json:"message"`
}

type BatchReport struct {
	Saved    []InspectionItem `json:"saved"`
	Failures []ItemFailure    `json:"failures"`
	Skipped  []string         `json:"skipped,omitempty"`
}

type CertificateStatus struct {
	TestID              string         `json:"test_id"`
	CertificateType     string         `json:"certificate_type"`
	Status              string         `json:"status"`
	Progress            Progress       `json:"progress"`
	Eligible            bool           `json:"eligible"`
	Blocking            []string       `json:"blocking"`
	Measurements        map[string]int `json:"measurements"`
	FailingMeasurements int            `json:"failing_measurements"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	TestID     string         `json:"test_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateTest starts a new test for a certificate type (eic, minor_works, eicr, pat).
func (c *Client) CreateTest(ctx context.Context, certificateType, site string) (Test, error) {
	body := map[string]any{"certificate_type": certificateType, "site": site}
	var resp Test
	err := c.do(ctx, http.MethodPost, "tests", body, &resp)
	return resp, err
}

func (c *Client) GetTest(ctx context.Context, id string) (TestDetail, error) {
	var resp TestDetail
	err := c.do(ctx, http.MethodGet, "tests/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) ListTests(ctx context.Context, status string) ([]Test, error) {
	endpoint := "tests"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Test `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) AddCircuit(ctx context.Context, testID string, circuit Circuit) (Circuit, error) {
	var resp Circuit
	err := c.do(ctx, http.MethodPost, testPath(testID, "circuits"), circuit, &resp)
	return resp, err
}

// RecordReadings sends raw readings keyed by measurement type.
func (c *Client) RecordReadings(ctx context.Context, testID, circuitID string, readings map[string]string) (Readings, error) {
	var resp Readings
	endpoint := testPath(testID, "circuits/"+url.PathEscape(circuitID)+"/readings")
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"readings": readings}, &resp)
	return resp, err
}

// Validate checks one value without storing it.
func (c *Client) Validate(ctx context.Context, measurementType string, value float64, circuitType, circuitRating string) (ValidationResult, error) {
	body := map[string]any{
		"measurement_type": measurementType,
		"value":            value,
		"circuit_type":     circuitType,
		"circuit_rating":   circuitRating,
	}
	var resp ValidationResult
	err := c.do(ctx, http.MethodPost, "validate", body, &resp)
	return resp, err
}

func (c *Client) StartInspection(ctx context.Context, testID string) (Checklist, error) {
	var resp Checklist
	err := c.do(ctx, http.MethodPost, testPath(testID, "inspection"), nil, &resp)
	return resp, err
}

func (c *Client) Checklist(ctx context.Context, testID string) (Checklist, error) {
	var resp Checklist
	err := c.do(ctx, http.MethodGet, testPath(testID, "inspection"), nil, &resp)
	return resp, err
}

// SetItem saves one item; the server rejects fail or limitation without notes.
func (c *Client) SetItem(ctx context.Context, testID string, u ItemUpdate) (InspectionItem, error) {
	var resp InspectionItem
	endpoint := testPath(testID, "inspection/items/"+url.PathEscape(u.ItemCode))
	body := map[string]any{}
	if u.Result != nil {
		body["result"] = *u.Result
	}
	if u.Notes != nil {
		body["notes"] = *u.Notes
	}
	err := c.do(ctx, http.MethodPatch, endpoint, body, &resp)
	return resp, err
}

func (c *Client) SaveItems(ctx context.Context, testID string, updates []ItemUpdate) (BatchReport, error) {
	var resp BatchReport
	err := c.do(ctx, http.MethodPost, testPath(testID, "inspection/save"), map[string]any{"items": updates}, &resp)
	return resp, err
}

func (c *Client) CertificateStatus(ctx context.Context, testID string) (CertificateStatus, error) {
	var resp CertificateStatus
	err := c.do(ctx, http.MethodGet, testPath(testID, "certificate"), nil, &resp)
	return resp, err
}

func (c *Client) CompleteTest(ctx context.Context, testID string) (Test, error) {
	var resp Test
	err := c.do(ctx, http.MethodPost, testPath(testID, "complete"), nil, &resp)
	return resp, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	reqURL := c.base() + "/v0/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
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
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &env) == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

func testPath(testID, p string) string {
	return fmt.Sprintf("tests/%s/%s", url.PathEscape(testID), strings.TrimLeft(p, "/"))
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
