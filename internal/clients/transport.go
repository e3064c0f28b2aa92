package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vadiminshakov/walletsync/internal/domain"
)

const (
	defaultTimeout      = 15 * time.Second
	maxResponseBodySize = 4 << 20
)

// Request single authenticated provider call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   []byte
}

// HTTPTransport performs provider calls against one base URL.
// Errors wrap domain.ErrTransport or domain.ErrMalformedResponse and never carry response bodies.
type HTTPTransport struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPTransport creates a transport bounded by timeout per call.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &HTTPTransport{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// RelativePath maps a server-issued link onto a path DoJSON accepts.
// Absolute links must stay on the base URL's scheme, host and path prefix.
func (t *HTTPTransport) RelativePath(link string) (string, error) {
	u, err := url.Parse(link)
	if err != nil {
		return "", errors.Wrap(domain.ErrMalformedResponse, "unparsable link")
	}
	if u.Scheme == "" && u.Host == "" {
		if !strings.HasPrefix(u.Path, "/") {
			return "", errors.Wrap(domain.ErrMalformedResponse, "link is not rooted")
		}
		return u.RequestURI(), nil
	}

	base, err := url.Parse(t.baseURL)
	if err != nil {
		return "", errors.Wrap(domain.ErrMalformedResponse, "unparsable base url")
	}
	if (u.Scheme != "" && u.Scheme != base.Scheme) || u.Host != base.Host {
		return "", errors.Wrapf(domain.ErrMalformedResponse, "link leaves host %s", base.Host)
	}

	path := u.RequestURI()
	if base.Path != "" {
		rest, ok := strings.CutPrefix(path, base.Path)
		if !ok || !strings.HasPrefix(rest, "/") {
			return "", errors.Wrap(domain.ErrMalformedResponse, "link leaves base path")
		}
		path = rest
	}

	return path, nil
}

// DoJSON sends req and decodes a 2xx JSON response into out.
func (t *HTTPTransport) DoJSON(ctx context.Context, req Request, out any) error {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	target := t.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return errors.Wrapf(domain.ErrTransport, "create request %s %s: %v", method, req.Path, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return errors.Wrapf(domain.ErrTransport, "%s %s: %v", method, req.Path, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return errors.Wrapf(domain.ErrTransport, "read response of %s: %v", req.Path, err)
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return errors.Wrapf(domain.ErrTransport, "%s %s returned status %d", method, req.Path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return errors.Wrapf(domain.ErrMalformedResponse, "decode response of %s: %s", req.Path, decodeFailure(err))
	}

	return nil
}

// decodeFailure describes a json error by position only; the raw message may quote numbers.
func decodeFailure(err error) string {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		return fmt.Sprintf("field %q expects %s at offset %d", typeErr.Field, typeErr.Type, typeErr.Offset)
	}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return fmt.Sprintf("invalid json at offset %d", syntaxErr.Offset)
	}
	return fmt.Sprintf("%T", err)
}

// BearerHeader returns an Authorization header for an OAuth token.
func BearerHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
