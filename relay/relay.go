package relay

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/vultisig/octra-wallet/rpc"
)

// legacyTargetHeader is accepted from older clients that name the upstream directly.
const legacyTargetHeader = "X-RPC-URL"

type Options struct {
	Prefix          string
	TargetHeader    string
	DefaultUpstream string
	Timeout         time.Duration
}

// Relay is a same-origin pass-through that picks the upstream per request.
type Relay struct {
	opts     Options
	fallback *url.URL
	client   *http.Client
	logger   *logrus.Logger
}

func New(opts Options, logger *logrus.Logger) (*Relay, error) {
	if opts.TargetHeader == "" {
		opts.TargetHeader = rpc.DefaultTargetHeader
	}
	if opts.DefaultUpstream == "" {
		opts.DefaultUpstream = rpc.DefaultProviderURL
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	fallback, err := url.Parse(opts.DefaultUpstream)
	if err != nil || fallback.Scheme == "" || fallback.Host == "" {
		return nil, fmt.Errorf("invalid default upstream %q", opts.DefaultUpstream)
	}
	return &Relay{
		opts:     opts,
		fallback: fallback,
		client: &http.Client{
			Timeout: opts.Timeout,
			// redirects are the caller's business
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		logger: logger,
	}, nil
}

// Register mounts the relay on every method under the prefix.
func (r *Relay) Register(e *echo.Echo) {
	e.Any(r.opts.Prefix+"/*", r.Handle)
}

// ResolveUpstream picks the upstream base from the target header. A missing header, or one that
// is not an absolute http(s) URL, resolves to fallback.
func ResolveUpstream(h http.Header, targetHeader string, fallback *url.URL) *url.URL {
	raw := strings.TrimSpace(h.Get(targetHeader))
	if raw == "" {
		raw = strings.TrimSpace(h.Get(legacyTargetHeader))
	}
	if raw == "" {
		return fallback
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fallback
	}
	return &url.URL{
		Scheme: u.Scheme,
		Host:   u.Host,
		Path:   strings.TrimRight(u.Path, "/"),
	}
}

func (r *Relay) Handle(c echo.Context) error {
	req := c.Request()
	upstream := ResolveUpstream(req.Header, r.opts.TargetHeader, r.fallback)
	target := *upstream
	target.Path = upstream.Path + strings.TrimPrefix(req.URL.Path, r.opts.Prefix)
	target.RawQuery = req.URL.RawQuery

	var body io.Reader
	if req.Method != http.MethodGet && req.Method != http.MethodHead {
		body = req.Body
	}
	out, err := http.NewRequestWithContext(req.Context(), req.Method, target.String(), body)
	if err != nil {
		return r.fail(c, err)
	}
	copyRequestHeaders(out.Header, req.Header, r.opts.TargetHeader)
	out.Host = target.Host

	start := time.Now()
	resp, err := r.client.Do(out)
	if err != nil {
		r.logger.WithError(err).WithField("upstream", upstream.Host).Warn("relay request failed")
		return r.fail(c, err)
	}
	defer resp.Body.Close()

	copyResponseHeaders(c.Response().Header(), resp.Header)
	c.Response().WriteHeader(resp.StatusCode)
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		// status is already on the wire, nothing left to report to the client
		r.logger.WithError(err).Warn("relay response copy interrupted")
	}
	r.logger.WithFields(logrus.Fields{
		"method":   req.Method,
		"upstream": upstream.Host,
		"path":     target.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	}).Debug("relayed")
	return nil
}

func (r *Relay) fail(c echo.Context, err error) error {
	c.Response().Header().Set(rpc.RelayErrorHeader, "1")
	return c.JSON(http.StatusInternalServerError, map[string]any{
		"error":     "Proxy failed",
		"details":   err.Error(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

var hopByHop = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
	"Content-Length":      true,
}

// copyRequestHeaders forwards the safe subset: content negotiation, Authorization and custom
// X- headers, minus the routing header and forwarding metadata.
func copyRequestHeaders(dst, src http.Header, targetHeader string) {
	for k, vs := range src {
		ck := http.CanonicalHeaderKey(k)
		switch {
		case ck == "Content-Type", ck == "Accept", ck == "Authorization":
		case strings.HasPrefix(ck, "X-"):
			if ck == http.CanonicalHeaderKey(targetHeader) || ck == legacyTargetHeader || strings.HasPrefix(ck, "X-Forwarded-") {
				continue
			}
		default:
			continue
		}
		for _, v := range vs {
			dst.Add(ck, v)
		}
	}
}

// copyResponseHeaders drops hop-by-hop headers and upstream CORS headers, the relay sets its own.
func copyResponseHeaders(dst, src http.Header) {
	for k, vs := range src {
		ck := http.CanonicalHeaderKey(k)
		if hopByHop[ck] || strings.HasPrefix(ck, "Access-Control-") {
			continue
		}
		for _, v := range vs {
			dst.Add(ck, v)
		}
	}
}
