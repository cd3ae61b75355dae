package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const defaultHTTPTimeout = 10 * time.Second

// Credentials authenticate requests to an exchange. Empty fields leave
// requests anonymous.
type Credentials struct {
	Key        string
	Secret     string
	Passphrase string
}

// restClient is the shared HTTP plumbing of the REST ticker clients.
type restClient struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
	headers map[string]string
	// sign adds authentication headers. It receives the request path with
	// its encoded query.
	sign func(req *http.Request, pathAndQuery string)
	now  func() time.Time
}

func newRESTClient(name, baseURL string, requestsPerSecond float64) *restClient {
	limit := rate.Inf
	burst := 1
	if requestsPerSecond > 0 {
		limit = rate.Limit(requestsPerSecond)
		burst = int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &restClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: defaultHTTPTimeout},
		limiter: rate.NewLimiter(limit, burst),
		headers: make(map[string]string),
		now:     time.Now,
	}
}

// getJSON waits for the rate limiter, performs a GET and decodes the body
// into out.
func (c *restClient) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%s: rate limit wait: %w", c.name, err)
	}

	pathAndQuery := path
	if len(query) > 0 {
		pathAndQuery += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+pathAndQuery, nil)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", c.name, err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.sign != nil {
		c.sign(req, pathAndQuery)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", c.name, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", c.name, err)
	}
	return nil
}

// hmacSHA256Base64 signs message with secret and encodes the digest as
// standard base64.
func hmacSHA256Base64(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
