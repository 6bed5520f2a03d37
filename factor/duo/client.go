package duo

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	pathCheck      = "/auth/v2/check"
	pathAuth       = "/auth/v2/auth"
	pathAuthStatus = "/auth/v2/auth_status"

	statOK = "OK"

	maxResponseBytes = 1 << 20
)

var (
	// ErrTransport marks a request that never produced a Duo answer.
	ErrTransport = errors.New("duo request failed")
	// ErrAPI marks a well-formed FAIL answer.
	ErrAPI = errors.New("duo api error")
)

// Credentials identify one Duo Auth API integration.
type Credentials struct {
	Host           string
	IntegrationKey string
	SecretKey      string
}

// Client signs and sends Duo Auth API v2 requests.
type Client struct {
	http    *http.Client
	now     func() time.Time
	baseURL func(host string) string
}

// NewClient returns a client sending through hc, or a client with a 30s
// overall timeout when hc is nil. Per-call deadlines come from the context.
func NewClient(hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		http:    hc,
		now:     time.Now,
		baseURL: func(host string) string { return "https://" + host },
	}
}

type envelope struct {
	Stat          string          `json:"stat"`
	Code          int             `json:"code,omitempty"`
	Message       string          `json:"message,omitempty"`
	MessageDetail string          `json:"message_detail,omitempty"`
	Response      json.RawMessage `json:"response"`
}

// AuthResult is the response of auth and auth_status.
type AuthResult struct {
	TxID      string `json:"txid,omitempty"`
	Result    string `json:"result,omitempty"`
	Status    string `json:"status,omitempty"`
	StatusMsg string `json:"status_msg,omitempty"`
}

// Check performs the authenticated no-op used to prove credentials work.
func (c *Client) Check(ctx context.Context, creds Credentials) error {
	return c.call(ctx, creds, http.MethodGet, pathCheck, nil, nil)
}

// Auth starts an authentication. With async set the result carries a txid.
func (c *Client) Auth(ctx context.Context, creds Credentials, params url.Values) (*AuthResult, error) {
	var out AuthResult
	if err := c.call(ctx, creds, http.MethodPost, pathAuth, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthStatus reports the state of an async authentication. Duo holds the
// request open until the state changes or its own timeout elapses.
func (c *Client) AuthStatus(ctx context.Context, creds Credentials, txid string) (*AuthResult, error) {
	var out AuthResult
	params := url.Values{"txid": {txid}}
	if err := c.call(ctx, creds, http.MethodGet, pathAuthStatus, params, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) call(ctx context.Context, creds Credentials, method, path string, params url.Values, out any) error {
	if params == nil {
		params = url.Values{}
	}
	host := strings.ToLower(strings.TrimSpace(creds.Host))
	date := c.now().UTC().Format(time.RFC1123Z)
	body := canonParams(params)
	sig := Sign(creds.SecretKey, date, method, host, path, body)

	endpoint := c.baseURL(host) + path
	var reader io.Reader
	if method == http.MethodGet {
		if body != "" {
			endpoint += "?" + body
		}
	} else {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Date", date)
	req.SetBasicAuth(creds.IntegrationKey, sig)
	if reader != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= http.StatusInternalServerError {
			return fmt.Errorf("%w: status %d", ErrTransport, resp.StatusCode)
		}
		return fmt.Errorf("%w: undecodable response (status %d)", ErrAPI, resp.StatusCode)
	}
	if env.Stat != statOK {
		return fmt.Errorf("%w: %d %s %s", ErrAPI, env.Code, env.Message, env.MessageDetail)
	}
	if out == nil || len(env.Response) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Response, out); err != nil {
		return fmt.Errorf("%w: %v", ErrAPI, err)
	}
	return nil
}

// Sign returns the hex HMAC-SHA1 request signature over the canonical
// request: date, method, host, path and the encoded parameters, one per line.
func Sign(secretKey, date, method, host, path, canonicalParams string) string {
	canon := strings.Join([]string{
		date,
		strings.ToUpper(method),
		strings.ToLower(host),
		path,
		canonicalParams,
	}, "\n")
	mac := hmac.New(sha1.New, []byte(secretKey))
	_, _ = mac.Write([]byte(canon))
	return hex.EncodeToString(mac.Sum(nil))
}

// canonParams encodes params sorted by key, with spaces as %20.
func canonParams(params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		vals := append([]string(nil), params[k]...)
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, escape(k)+"="+escape(v))
		}
	}
	return strings.Join(parts, "&")
}

func escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
