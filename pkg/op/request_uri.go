package op

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	httphelper "github.com/idpserver/idp/pkg/http"
	"github.com/idpserver/idp/pkg/oidc"
)

// RequestObjectResolver turns a request_uri into the signed request object it references.
type RequestObjectResolver struct {
	Fetcher RequestObjectFetcher
}

// Resolve checks that requestURI is registered for the client before anything
// is fetched. Every failure is an invalid_request error, verification is never skipped.
func (r *RequestObjectResolver) Resolve(ctx context.Context, client *ClientConfiguration, requestURI string) (string, error) {
	ctx, span := tracer.Start(ctx, "RequestObjectResolver.Resolve")
	defer span.End()

	if !client.IsRegisteredRequestURI(requestURI) {
		requestURIFetches.WithLabelValues("unregistered").Inc()
		return "", oidc.ErrInvalidRequest().WithDescription("request_uri is not registered for client (%s)", requestURI)
	}
	object, err := r.Fetcher.Fetch(ctx, requestURI)
	if err != nil {
		requestURIFetches.WithLabelValues("failed").Inc()
		return "", oidc.ErrInvalidRequest().WithParent(err).WithDescription("unable to retrieve request object from request_uri")
	}
	requestURIFetches.WithLabelValues("ok").Inc()
	return object, nil
}

const (
	DefaultRequestURITimeout     = 5 * time.Second
	DefaultRequestURIMaxAttempts = 3
	DefaultRequestObjectMaxBytes = 64 << 10

	requestObjectContentType = "application/oauth-authz-req+jwt"
)

// HTTPRequestObjectFetcher fetches request objects over HTTPS.
// Network errors and 5xx responses are retried with exponential backoff
// within the timeout. Other failures are permanent.
type HTTPRequestObjectFetcher struct {
	Client       *http.Client
	Timeout      time.Duration
	MaxAttempts  uint
	MaxBodyBytes int64
	// AllowHTTP permits plain http request_uris, for development only.
	AllowHTTP bool
}

func NewHTTPRequestObjectFetcher(timeout time.Duration, maxAttempts uint, allowHTTP bool) *HTTPRequestObjectFetcher {
	if timeout <= 0 {
		timeout = DefaultRequestURITimeout
	}
	if maxAttempts == 0 {
		maxAttempts = DefaultRequestURIMaxAttempts
	}
	return &HTTPRequestObjectFetcher{
		Client:       httphelper.DefaultHTTPClient,
		Timeout:      timeout,
		MaxAttempts:  maxAttempts,
		MaxBodyBytes: DefaultRequestObjectMaxBytes,
		AllowHTTP:    allowHTTP,
	}
}

var ErrRequestURIScheme = errors.New("request_uri scheme is not allowed")

func (f *HTTPRequestObjectFetcher) Fetch(ctx context.Context, requestURI string) (string, error) {
	u, err := url.Parse(requestURI)
	if err != nil {
		return "", fmt.Errorf("request_uri: %w", err)
	}
	if u.Scheme != "https" && !(f.AllowHTTP && u.Scheme == "http") {
		return "", fmt.Errorf("%w: %q", ErrRequestURIScheme, u.Scheme)
	}

	ctx, cancel := context.WithTimeout(ctx, f.Timeout)
	defer cancel()

	fetch := func() ([]byte, error) {
		body, err := httphelper.Get(ctx, f.Client, requestURI, requestObjectContentType, f.MaxBodyBytes)
		if err == nil {
			return body, nil
		}
		var statusErr *httphelper.StatusError
		if errors.As(err, &statusErr) && !statusErr.Temporary() {
			return nil, backoff.Permanent(err)
		}
		if errors.Is(err, httphelper.ErrBodyTooLarge) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 100 * time.Millisecond
	expBackoff.MaxInterval = time.Second

	body, err := backoff.Retry(ctx, fetch,
		backoff.WithBackOff(expBackoff),
		backoff.WithMaxTries(f.MaxAttempts),
	)
	if err != nil {
		return "", err
	}
	object := strings.TrimSpace(string(body))
	if object == "" {
		return "", errors.New("request_uri returned an empty body")
	}
	return object, nil
}
