package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/hamed0406/monitorcore/internal/domain"
)

const (
	userAgent       = "monitorcore/1.0"
	snippetRadius   = 50
	defaultBodyCap  = 10 << 20
	acceptEncodings = "gzip, deflate, zstd"
)

// reported back in details; everything else is dropped
var keptHeaders = []string{"Content-Type", "Content-Length", "Server", "Location", "Cache-Control", "Retry-After"}

type HTTPChecker struct {
	Client       *http.Client
	MaxBodyBytes int64
	Resolver     Resolver
	Logger       *zap.Logger
}

// NewHTTPChecker uses client as-is; its transport should disable automatic
// compression so the checker controls decoding and the size cap.
func NewHTTPChecker(client *http.Client, maxBody int64, logger *zap.Logger) *HTTPChecker {
	if client == nil {
		client = &http.Client{Transport: &http.Transport{DisableCompression: true}}
	}
	if maxBody <= 0 {
		maxBody = defaultBodyCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPChecker{Client: client, MaxBodyBytes: maxBody, Logger: logger}
}

func (h *HTTPChecker) Check(ctx context.Context, req Request) Result {
	cfg := req.Config
	var det domain.ResultDetails

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodGet
	}
	var body io.Reader
	if cfg.Body != "" && method != http.MethodGet && method != http.MethodHead {
		body = strings.NewReader(cfg.Body)
	}

	start := time.Now()
	hreq, err := http.NewRequestWithContext(ctx, method, req.Target, body)
	if err != nil {
		return failed(domain.ResultError, 0, det, "invalid request: "+err.Error(), err)
	}
	hreq.Header.Set("User-Agent", userAgent)
	hreq.Header.Set("Accept-Encoding", acceptEncodings)
	for k, v := range cfg.Headers {
		hreq.Header.Set(k, v)
	}
	h.applyAuth(hreq, cfg.Auth)

	resp, err := h.Client.Do(hreq)
	if err != nil {
		elapsed := time.Since(start)
		status, msg := ClassifyNetError(err)
		if status != domain.ResultTimeout {
			det.DNSClass = ClassifyDNS(ctx, h.Resolver, hostOf(req.Target)).Class
		}
		return failed(status, elapsed, det, msg, err)
	}
	defer resp.Body.Close()

	det.StatusCode = resp.StatusCode
	det.StatusText = http.StatusText(resp.StatusCode)
	det.Headers = pickHeaders(resp.Header)

	text, n, truncated, err := h.readBody(resp)
	elapsed := time.Since(start)
	det.BodyBytes = n
	det.Truncated = truncated
	if err != nil {
		if IsTimeout(err) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return failed(domain.ResultTimeout, elapsed, det, "timed out reading response body", err)
		}
		return failed(domain.ResultError, elapsed, det, "failed to read response body", err)
	}

	if !IsExpectedStatus(resp.StatusCode, cfg.ExpectedStatusCodes) {
		return failed(domain.ResultDown, elapsed, det,
			fmt.Sprintf("unexpected status code %d", resp.StatusCode), nil)
	}

	if cfg.KeywordInBody != "" {
		found, snip := matchKeyword(text, cfg.KeywordInBody)
		det.KeywordFound = &found
		det.KeywordSnippet = SanitizeSnippet(snip)
		want := cfg.KeywordMustBePresent()
		if found != want {
			msg := fmt.Sprintf("keyword %q not found in response", cfg.KeywordInBody)
			if !want {
				msg = fmt.Sprintf("keyword %q found in response but should be absent", cfg.KeywordInBody)
			}
			return failed(domain.ResultDown, elapsed, det, msg, nil)
		}
	}

	return up(elapsed, det)
}

func (h *HTTPChecker) applyAuth(req *http.Request, a *domain.AuthConfig) {
	if a == nil {
		return
	}
	switch strings.ToLower(a.Type) {
	case "basic":
		req.SetBasicAuth(a.Username, a.Password)
		h.Logger.Debug("http_auth_basic",
			zap.String("username", MaskCredential(a.Username)),
			zap.String("password", MaskCredential(a.Password)))
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+a.Token)
		h.Logger.Debug("http_auth_bearer", zap.String("token", MaskCredential(a.Token)))
	}
}

// readBody decodes the response and reads at most MaxBodyBytes of it.
func (h *HTTPChecker) readBody(resp *http.Response) (string, int64, bool, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return "", 0, false, err
		}
		defer gz.Close()
		r = gz
	case "deflate":
		fr := flate.NewReader(resp.Body)
		defer fr.Close()
		r = fr
	case "zstd":
		zr, err := zstd.NewReader(resp.Body, zstd.WithDecoderMaxMemory(uint64(h.MaxBodyBytes)*2))
		if err != nil {
			return "", 0, false, err
		}
		defer zr.Close()
		r = zr
	}

	buf, err := io.ReadAll(io.LimitReader(r, h.MaxBodyBytes+1))
	if err != nil {
		return "", int64(len(buf)), false, err
	}
	truncated := int64(len(buf)) > h.MaxBodyBytes
	if truncated {
		buf = buf[:h.MaxBodyBytes]
	}
	return string(buf), int64(len(buf)), truncated, nil
}

// matchKeyword does a case-insensitive search and returns the surrounding
// text when found, or the start of the body when not.
func matchKeyword(body, keyword string) (bool, string) {
	lb, lk := strings.ToLower(body), strings.ToLower(keyword)
	if i := strings.Index(lb, lk); i >= 0 {
		return true, snippet(body, i, i+len(keyword), snippetRadius)
	}
	return false, snippet(body, 0, 0, snippetRadius*2)
}

func pickHeaders(h http.Header) map[string]string {
	out := make(map[string]string)
	for _, k := range keptHeaders {
		if v := h.Get(k); v != "" {
			out[k] = v
		}
	}
	return out
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
