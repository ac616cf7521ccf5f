// Package proofs is a Go client for the ProofChain REST API.
package proofs

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
	"sync"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client.
const DefaultHTTPTimeout = 15 * time.Second

// CallerHeader is the header read by servers running in header auth mode.
const CallerHeader = "X-Caller-Address"

// Client wraps the HTTP interactions with the ProofChain REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
	caller      string
}

// Proof is one certified proof as returned by the API. The *Hex fields hold
// the raw bytes and are authoritative when the stored values are not UTF-8.
type Proof struct {
	Owner        string `json:"owner"`
	ProofID      string `json:"proof_id"`
	ProofText    string `json:"proof_text"`
	Metadata     string `json:"metadata"`
	ProofIDHex   string `json:"proof_id_hex"`
	ProofTextHex string `json:"proof_text_hex"`
	MetadataHex  string `json:"metadata_hex"`
	Timestamp    uint64 `json:"timestamp"`
}

// CertifyRequest is the payload for registering a proof.
type CertifyRequest struct {
	ProofID   string  `json:"proof_id"`
	ProofText string  `json:"proof_text"`
	Metadata  *string `json:"metadata,omitempty"`
}

// UpdateRequest is the payload for replacing a proof's text.
type UpdateRequest struct {
	ProofText string  `json:"proof_text"`
	Metadata  *string `json:"metadata,omitempty"`
}

// Receipt describes the outcome of a mutating call.
type Receipt struct {
	TxID      string   `json:"tx_id"`
	Operation string   `json:"operation"`
	Caller    string   `json:"caller"`
	ProofID   string   `json:"proof_id"`
	Status    string   `json:"status"`
	ErrorCode string   `json:"error_code,omitempty"`
	Error     string   `json:"error,omitempty"`
	Events    []string `json:"events,omitempty"`
	Writes    int      `json:"writes"`
	BlockTime uint64   `json:"block_time"`
	CreatedAt int64    `json:"created_at"`
}

// ReceiptFilter narrows ListReceipts.
type ReceiptFilter struct {
	Status    string
	Operation string
	Caller    string
	ProofID   string
	Limit     int
	Offset    int
	Ascending bool
}

// Stats is the registry summary.
type Stats struct {
	TotalProofs uint64 `json:"total_proofs"`
	Receipts    struct {
		Total     int `json:"total"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	} `json:"receipts"`
}

// Page bounds a listing. A zero Page returns every entry.
type Page struct {
	Offset uint64
	Limit  uint64
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	TxID       string `json:"tx_id,omitempty"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("proofchain api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("proofchain api error (%d): %s", e.StatusCode, e.Message)
}

// IsCode reports whether err is an APIError carrying code.
func IsCode(err error, code string) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}

// NewClient instantiates a client for the ProofChain API. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SetAccessToken sets the bearer token sent with every request.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// SetCaller sets the caller address header for servers in header auth mode.
func (c *Client) SetCaller(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.caller = address
}

// Certify registers a new proof owned by the configured caller.
func (c *Client) Certify(ctx context.Context, req CertifyRequest) (Receipt, error) {
	var rec Receipt
	if err := c.send(ctx, http.MethodPost, "/api/v1/proofs", nil, req, &rec); err != nil {
		return Receipt{}, err
	}
	return rec, nil
}

// Update replaces the text of a proof owned by the configured caller.
func (c *Client) Update(ctx context.Context, proofID string, req UpdateRequest) (Receipt, error) {
	var rec Receipt
	if err := c.send(ctx, http.MethodPut, "/api/v1/proofs/"+url.PathEscape(proofID), nil, req, &rec); err != nil {
		return Receipt{}, err
	}
	return rec, nil
}

// Proof returns the proof stored under (owner, proofID). ok is false when no
// such proof exists.
func (c *Client) Proof(ctx context.Context, owner, proofID string) (Proof, bool, error) {
	var p Proof
	endpoint := "/api/v1/owners/" + url.PathEscape(owner) + "/proofs/" + url.PathEscape(proofID)
	ok, err := c.getOptional(ctx, endpoint, &p)
	return p, ok, err
}

// ProofOwner returns the owner of proofID. ok is false when nobody owns it.
func (c *Client) ProofOwner(ctx context.Context, proofID string) (string, bool, error) {
	var out struct {
		Owner string `json:"owner"`
	}
	ok, err := c.getOptional(ctx, "/api/v1/proofs/"+url.PathEscape(proofID)+"/owner", &out)
	return out.Owner, ok, err
}

// ProofExists reports whether proofID has an owner.
func (c *Client) ProofExists(ctx context.Context, proofID string) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	err := c.send(ctx, http.MethodGet, "/api/v1/proofs/"+url.PathEscape(proofID)+"/exists", nil, nil, &out)
	return out.Exists, err
}

// UserProofs lists the proofs of owner in certification order.
func (c *Client) UserProofs(ctx context.Context, owner string, page Page) ([]Proof, error) {
	var out struct {
		Proofs []Proof `json:"proofs"`
	}
	err := c.send(ctx, http.MethodGet, "/api/v1/owners/"+url.PathEscape(owner)+"/proofs", page.query(), nil, &out)
	return out.Proofs, err
}

// UserProofIDs lists the proof ids of owner in certification order.
func (c *Client) UserProofIDs(ctx context.Context, owner string, page Page) ([]string, error) {
	var out struct {
		ProofIDs []string `json:"proof_ids"`
	}
	err := c.send(ctx, http.MethodGet, "/api/v1/owners/"+url.PathEscape(owner)+"/proof-ids", page.query(), nil, &out)
	return out.ProofIDs, err
}

// UserProofCount returns how many proofs owner has certified.
func (c *Client) UserProofCount(ctx context.Context, owner string) (uint64, error) {
	var out struct {
		Count uint64 `json:"count"`
	}
	err := c.send(ctx, http.MethodGet, "/api/v1/owners/"+url.PathEscape(owner)+"/count", nil, nil, &out)
	return out.Count, err
}

// Stats returns the global counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var out Stats
	err := c.send(ctx, http.MethodGet, "/api/v1/stats", nil, nil, &out)
	return out, err
}

// Receipt fetches one receipt.
func (c *Client) Receipt(ctx context.Context, txID string) (Receipt, error) {
	var rec Receipt
	err := c.send(ctx, http.MethodGet, "/api/v1/receipts/"+url.PathEscape(txID), nil, nil, &rec)
	return rec, err
}

// ListReceipts lists receipts matching filter.
func (c *Client) ListReceipts(ctx context.Context, filter ReceiptFilter) ([]Receipt, error) {
	q := url.Values{}
	if filter.Status != "" {
		q.Set("status", filter.Status)
	}
	if filter.Operation != "" {
		q.Set("operation", filter.Operation)
	}
	if filter.Caller != "" {
		q.Set("caller", filter.Caller)
	}
	if filter.ProofID != "" {
		q.Set("proof_id", filter.ProofID)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	if filter.Offset > 0 {
		q.Set("offset", strconv.Itoa(filter.Offset))
	}
	if filter.Ascending {
		q.Set("order", "asc")
	}
	var out struct {
		Receipts []Receipt `json:"receipts"`
	}
	err := c.send(ctx, http.MethodGet, "/api/v1/receipts", q, nil, &out)
	return out.Receipts, err
}

func (p Page) query() url.Values {
	if p == (Page{}) {
		return nil
	}
	q := url.Values{}
	q.Set("offset", strconv.FormatUint(p.Offset, 10))
	if p.Limit > 0 {
		q.Set("limit", strconv.FormatUint(p.Limit, 10))
	}
	return q
}

func (c *Client) getOptional(ctx context.Context, endpoint string, out any) (bool, error) {
	err := c.send(ctx, http.MethodGet, endpoint, nil, nil, out)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, query url.Values, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := c.newRequest(ctx, method, endpoint, query, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, query url.Values, body io.Reader) (*http.Request, error) {
	u := *c.baseURL
	u.Path = strings.TrimSuffix(c.baseURL.Path, "/") + endpoint
	if unescaped, err := url.PathUnescape(u.Path); err == nil && unescaped != u.Path {
		u.RawPath = u.Path
		u.Path = unescaped
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.mu.RLock()
	token, caller := c.accessToken, c.caller
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if caller != "" {
		req.Header.Set(CallerHeader, caller)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &struct {
				Error *APIError `json:"error"`
			}{Error: &apiErr})
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
