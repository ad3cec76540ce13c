package tiles

import (
	"context"
	"fmt"
	"time"

	"github.com/valyala/fasthttp"
)

// Fetcher retrieves raw tile bytes. Implementations must honour ctx's
// deadline.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// HTTPFetcher fetches tiles with a pooled fasthttp client.
type HTTPFetcher struct {
	client    *fasthttp.Client
	userAgent string
}

// NewHTTPFetcher creates a fetcher. Tile servers such as OSM require an
// identifying User-Agent.
func NewHTTPFetcher(userAgent string) *HTTPFetcher {
	return &HTTPFetcher{
		client: &fasthttp.Client{
			Name:                userAgent,
			MaxConnsPerHost:     64,
			MaxIdleConnDuration: 30 * time.Second,
			ReadTimeout:         10 * time.Second,
			WriteTimeout:        5 * time.Second,
		},
		userAgent: userAgent,
	}
}

// Fetch performs a GET and returns the body of a 200 response.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("User-Agent", f.userAgent)

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(10 * time.Second)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := f.client.DoDeadline(req, resp, deadline); err != nil {
		if err == fasthttp.ErrTimeout {
			return nil, context.DeadlineExceeded
		}
		return nil, fmt.Errorf("GET %s: %w", url, err)
	}
	if code := resp.StatusCode(); code != fasthttp.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", url, code)
	}

	body := make([]byte, len(resp.Body()))
	copy(body, resp.Body())
	return body, nil
}
