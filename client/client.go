package client

import (
	"bytes"
	"context"
	"io"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-trade-client/types"
)

// ServiceClient is the transport for one backend service.
type ServiceClient struct {
	name    string
	baseURL string
	timeout time.Duration
	client  *fasthttp.Client
	breaker *CircuitBreaker
}

type response struct {
	status    int
	body      []byte
	decodeErr error
}

func NewServiceClient(logger types.Logger, name string, config *types.ServiceConfig, defaultTimeout time.Duration, breaker *types.CircuitBreakerConfig, dial fasthttp.DialFunc) *ServiceClient {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	httpClient := &fasthttp.Client{
		Name:                      "sai-trade-client",
		ReadTimeout:               timeout,
		WriteTimeout:              timeout,
		MaxIdleConnDuration:       90 * time.Second,
		MaxIdemponentCallAttempts: 1,
		Dial:                      dial,
	}

	return &ServiceClient{
		name:    name,
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		timeout: timeout,
		client:  httpClient,
		breaker: NewCircuitBreaker(breaker, logger, name),
	}
}

func (c *ServiceClient) Name() string {
	return c.name
}

func (c *ServiceClient) Breaker() *CircuitBreaker {
	return c.breaker
}

// Do sends the request and returns the decoded body of any response the
// server produced. A non-nil error means no response was received; a body
// that cannot be decoded is reported on the response.
func (c *ServiceClient) Do(ctx context.Context, r *builtRequest, headers map[string]string, timeout time.Duration) (*response, error) {
	if timeout <= 0 {
		timeout = c.timeout
	}

	deadline := time.Now().Add(timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	uri := c.baseURL + r.path
	if r.query != "" {
		uri += "?" + r.query
	}

	type result struct {
		resp *response
		err  error
	}

	done := make(chan result, 1)

	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(uri)
		req.Header.SetMethod(r.method)
		req.Header.Set(fasthttp.HeaderAccept, "application/json")
		for key, value := range headers {
			req.Header.Set(key, value)
		}
		if r.body != nil {
			req.Header.SetContentType("application/json")
			req.SetBody(r.body)
		}

		if err := c.client.DoDeadline(req, resp, deadline); err != nil {
			done <- result{err: errors.Wrapf(err, "%s %s", r.method, uri)}
			return
		}

		body, err := decodeBody(resp)
		if err != nil {
			done <- result{resp: &response{
				status:    resp.StatusCode(),
				decodeErr: errors.Wrapf(err, "decode %s response from %s", resp.Header.Peek(fasthttp.HeaderContentEncoding), uri),
			}}
			return
		}

		done <- result{resp: &response{status: resp.StatusCode(), body: body}}
	}()

	select {
	case res := <-done:
		return res.resp, res.err
	case <-ctx.Done():
		return nil, errors.Wrapf(ctx.Err(), "%s %s aborted", r.method, uri)
	}
}

func (c *ServiceClient) Close() {
	c.client.CloseIdleConnections()
}

func decodeBody(resp *fasthttp.Response) ([]byte, error) {
	encoding := strings.ToLower(strings.TrimSpace(string(resp.Header.Peek(fasthttp.HeaderContentEncoding))))

	switch encoding {
	case "br":
		return io.ReadAll(brotli.NewReader(bytes.NewReader(resp.Body())))
	case "gzip":
		return resp.BodyGunzip()
	default:
		body := make([]byte, len(resp.Body()))
		copy(body, resp.Body())
		return body, nil
	}
}
