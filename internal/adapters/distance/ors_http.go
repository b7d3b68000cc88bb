package distance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
)

// ORS error code for a coordinate that cannot be snapped to a road.
const orsCodePointNotFound = 2010

type outcomeKind int

const (
	outcomeSuccess outcomeKind = iota
	outcomeTransient
	outcomeStructural
	outcomeFatal
)

func (k outcomeKind) String() string {
	switch k {
	case outcomeSuccess:
		return "success"
	case outcomeTransient:
		return "transient"
	case outcomeStructural:
		return "structural"
	default:
		return "fatal"
	}
}

type httpStatusError struct {
	Code    int
	ORSCode int
	Body    string
}

func (e *httpStatusError) Error() string {
	if e.ORSCode != 0 {
		return fmt.Sprintf("Code %d (ors %d): %s", e.Code, e.ORSCode, e.Body)
	}
	return fmt.Sprintf("Code %d: %s", e.Code, e.Body)
}

func (o *ORSRouteProvider) newRequest(
	ctx context.Context,
	method string,
	url string,
	body io.Reader,
) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", o.apiKey)
	req.Header.Set("Accept", "application/json, application/geo+json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func (o *ORSRouteProvider) do(req *http.Request) (*http.Response, error) {
	resp, err := o.session.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, &httpStatusError{
			Code:    resp.StatusCode,
			ORSCode: parseORSCode(b),
			Body:    strings.TrimSpace(string(b)),
		}
	}
	return resp, nil
}

// classify maps a failed attempt to an outcome tag. parent is the caller's
// context; a cancelled caller is never retried.
func classify(parent context.Context, err error) outcomeKind {
	if parent.Err() != nil {
		return outcomeFatal
	}

	var he *httpStatusError
	if errors.As(err, &he) {
		if he.ORSCode == orsCodePointNotFound {
			return outcomeStructural
		}
		if he.Code == http.StatusTooManyRequests || he.Code >= 500 {
			return outcomeTransient
		}
		return outcomeFatal
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return outcomeTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return outcomeTransient
	}

	return outcomeFatal
}

// parseORSCode extracts the provider error code from bodies shaped like
// {"error":{"code":2010}} or {"code":2010}. It returns 0 when absent.
func parseORSCode(body []byte) int {
	var envelope struct {
		Error json.RawMessage `json:"error"`
		Code  *int            `json:"code"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return 0
	}

	if len(envelope.Error) > 0 {
		var inner struct {
			Code      *int `json:"code"`
			ErrorCode *int `json:"error_code"`
		}
		if err := json.Unmarshal(envelope.Error, &inner); err == nil {
			if inner.Code != nil {
				return *inner.Code
			}
			if inner.ErrorCode != nil {
				return *inner.ErrorCode
			}
		}
	}

	if envelope.Code != nil {
		return *envelope.Code
	}
	return 0
}
