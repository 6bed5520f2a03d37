package yubikey

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"
)

const maxResponseBytes = 64 << 10

// Response status values from the validation protocol 2.0.
const (
	StatusOK                = "OK"
	StatusBadOTP            = "BAD_OTP"
	StatusReplayedOTP       = "REPLAYED_OTP"
	StatusBadSignature      = "BAD_SIGNATURE"
	StatusBackendError      = "BACKEND_ERROR"
	StatusNotEnoughAnswers  = "NOT_ENOUGH_ANSWERS"
	StatusReplayedRequest   = "REPLAYED_REQUEST"
	StatusNoSuchClient      = "NO_SUCH_CLIENT"
	StatusMissingParameter  = "MISSING_PARAMETER"
	StatusOperationDisabled = "OPERATION_NOT_ALLOWED"
)

var (
	ErrNoAnswer          = errors.New("no validation server gave a definitive answer")
	ErrResponseSignature = errors.New("validation response signature invalid")
	ErrResponseMismatch  = errors.New("validation response does not echo the request")
)

// validator queries Yubico-compatible validation servers.
type validator struct {
	http     *http.Client
	clientID string
	key      []byte
	urls     []string
}

// answer is one server's parsed reply.
type answer struct {
	status string
	err    error
}

// definitive reports whether no other server could change the outcome.
func (a answer) definitive() bool {
	if a.err != nil {
		return false
	}
	switch a.status {
	case StatusBackendError, StatusNotEnoughAnswers, StatusReplayedRequest:
		return false
	default:
		return true
	}
}

// verify sends otp to every server concurrently and returns the first
// definitive status.
func (v *validator) verify(ctx context.Context, otp, nonce string) (string, error) {
	params := url.Values{
		"id":    {v.clientID},
		"otp":   {otp},
		"nonce": {nonce},
	}
	if len(v.key) > 0 {
		params.Set("h", signature(v.key, params))
	}
	query := params.Encode()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	answers := make(chan answer, len(v.urls))
	g, gctx := errgroup.WithContext(ctx)
	for _, u := range v.urls {
		endpoint := u
		g.Go(func() error {
			status, err := v.query(gctx, endpoint, query, otp, nonce)
			answers <- answer{status: status, err: err}
			return nil
		})
	}
	go func() {
		_ = g.Wait()
		close(answers)
	}()

	var lastErr error
	for a := range answers {
		if a.definitive() {
			return a.status, nil
		}
		if a.err != nil {
			lastErr = a.err
		} else {
			lastErr = fmt.Errorf("%w: %s", ErrNoAnswer, a.status)
		}
	}
	if lastErr == nil {
		lastErr = ErrNoAnswer
	}
	return "", lastErr
}

func (v *validator) query(ctx context.Context, endpoint, query, otp, nonce string) (string, error) {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+sep+query, nil)
	if err != nil {
		return "", err
	}
	resp, err := v.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("validation server returned %d", resp.StatusCode)
	}

	fields, err := parseResponse(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	if len(v.key) > 0 {
		given := fields.Get("h")
		fields.Del("h")
		if !hmac.Equal([]byte(given), []byte(signature(v.key, fields))) {
			return "", ErrResponseSignature
		}
	}
	status := fields.Get("status")
	// Servers omit otp and nonce for some failure statuses.
	if status == StatusOK && (fields.Get("otp") != otp || fields.Get("nonce") != nonce) {
		return "", ErrResponseMismatch
	}
	return status, nil
}

func parseResponse(r io.Reader) (url.Values, error) {
	out := url.Values{}
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out.Set(k, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if out.Get("status") == "" {
		return nil, errors.New("validation response carries no status")
	}
	return out, nil
}

// signature is the base64 HMAC-SHA1 over the sorted, unescaped k=v pairs.
func signature(key []byte, params url.Values) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		if k == "h" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+params.Get(k))
	}
	mac := hmac.New(sha1.New, key)
	_, _ = mac.Write([]byte(strings.Join(parts, "&")))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
