package catlux

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"os"
	"strings"
	"time"

	"catlux/pkg/config"
	errs "catlux/pkg/errors"
	"catlux/pkg/logger"
	"catlux/pkg/ratelimit"
	"catlux/pkg/retry"

	"github.com/PuerkitoBio/goquery"
)

// maxBodySize bounds how much of a response is read into memory
const maxBodySize = 64 << 20

var pdfMagic = []byte("%PDF")

// Options configures a Client
type Options struct {
	BaseURL   string
	LoginURL  string
	PageParam string
	UserAgent string
	// CertPath is an optional PEM bundle trusted in addition to the system roots
	CertPath string
	Limiter  ratelimit.Limiter
	// Retry governs the login handshake only
	Retry  *retry.Config
	Logger logger.Logger
}

// Client is an HTTP session against the CatLux site. It keeps the login
// cookies and paces every request through its limiter.
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    *url.URL
	loginURL   string
	pageParam  string
	limiter    ratelimit.Limiter
	retry      *retry.Config
	logger     logger.Logger
}

// NewClient creates a client with an empty cookie jar
func NewClient(opts Options) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = logger.GetLogger()
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", opts.BaseURL)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.CertPath != "" {
		pool, err := loadCertPool(opts.CertPath)
		if err != nil {
			return nil, err
		}
		transport.TLSClientConfig = &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	}

	loginURL := opts.LoginURL
	if loginURL == "" {
		loginURL = base.ResolveReference(&url.URL{Path: "/login"}).String()
	}
	pageParam := opts.PageParam
	if pageParam == "" {
		pageParam = "p"
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	retryCfg := opts.Retry
	if retryCfg == nil {
		retryCfg = retry.DefaultConfig()
	}
	if retryCfg.Logger == nil {
		retryCfg.Logger = log
	}

	headers := map[string]string{
		"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,application/pdf;q=0.9,*/*;q=0.8",
		"Accept-Language": "de-DE,de;q=0.9,en;q=0.8",
		"Cache-Control":   "no-cache",
	}
	if opts.UserAgent != "" {
		headers["User-Agent"] = opts.UserAgent
	}

	return &Client{
		httpClient: &http.Client{Jar: jar, Transport: transport},
		headers:    headers,
		baseURL:    base,
		loginURL:   loginURL,
		pageParam:  pageParam,
		limiter:    limiter,
		retry:      retryCfg,
		logger:     logger.Component(log, "catlux"),
	}, nil
}

// NewClientFromConfig wires a client from the application configuration
func NewClientFromConfig(cfg *config.Config, log logger.Logger) (*Client, error) {
	backoff := retry.DefaultExponentialBackoff()
	if d := cfg.RateLimit.RetryDelay(); d > 0 {
		backoff.BaseDelay = d
	}
	if cfg.RateLimit.BackoffMultiplier > 0 {
		backoff.Multiplier = cfg.RateLimit.BackoffMultiplier
	}

	client, err := NewClient(Options{
		BaseURL:   cfg.Catlux.BaseURL,
		LoginURL:  cfg.Catlux.LoginURL(),
		PageParam: cfg.Download.PageParam,
		UserAgent: cfg.Catlux.UserAgent,
		CertPath:  cfg.Catlux.CertPath,
		Limiter:   ratelimit.FromConfig(&cfg.RateLimit),
		Retry: &retry.Config{
			MaxAttempts: cfg.RateLimit.LoginAttempts,
			Backoff:     backoff,
			RetryIf:     retry.DefaultRetryIf,
			Logger:      log,
		},
		Logger: log,
	})
	if err != nil {
		return nil, err
	}
	for key, value := range cfg.Catlux.Headers {
		client.SetHeader(key, value)
	}
	return client, nil
}

func loadCertPool(path string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate bundle: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", path)
	}
	return pool, nil
}

// SetHeader sets a custom header for every request
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// Resolve turns a possibly relative locator into an absolute URL
func (c *Client) Resolve(locator string) (string, error) {
	ref, err := url.Parse(strings.TrimSpace(locator))
	if err != nil {
		return "", errs.NewFetchError(errs.ErrorTypeParsing, 0, fmt.Sprintf("invalid locator %q", locator), err)
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}

// Login authenticates the session. The login form carries a one-time
// REQUEST_TOKEN that has to be scraped before the credentials are posted.
func (c *Client) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return errs.NewFetchError(errs.ErrorTypeAuth, 0, "username and password are required", nil)
	}

	c.logger.InfoWithFields("Logging in", map[string]interface{}{"username": username})

	err := retry.Do(ctx, func(ctx context.Context) error {
		return c.login(ctx, username, password)
	}, c.retry)
	if err != nil {
		return err
	}

	c.logger.Info("Login successful")
	return nil
}

func (c *Client) login(ctx context.Context, username, password string) error {
	body, err := c.fetch(ctx, http.MethodGet, c.loginURL, nil, "")
	if err != nil {
		return err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return errs.NewFetchError(errs.ErrorTypeParsing, 0, "failed to parse login page", err)
	}
	token := requestToken(doc)
	if token == "" {
		return errs.NewFetchError(errs.ErrorTypeParsing, 0, "login token not found on login page", nil)
	}

	form := url.Values{
		"FORM_SUBMIT":   {"tl_login"},
		"REQUEST_TOKEN": {token},
		"username":      {username},
		"password":      {password},
	}
	body, err = c.fetch(ctx, http.MethodPost, c.loginURL, strings.NewReader(form.Encode()), "application/x-www-form-urlencoded")
	if err != nil {
		return err
	}

	doc, err = goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return errs.NewFetchError(errs.ErrorTypeParsing, 0, "failed to parse login response", err)
	}
	if loginRejected(doc) {
		return errs.NewFetchError(errs.ErrorTypeAuth, http.StatusOK, "login rejected, check username and password", nil)
	}
	return nil
}

// requestToken prefers the token of the form that actually holds the
// credential fields
func requestToken(doc *goquery.Document) string {
	var token string
	doc.Find("form").EachWithBreak(func(_ int, form *goquery.Selection) bool {
		if form.Find(`input[name="username"]`).Length() == 0 || form.Find(`input[name="password"]`).Length() == 0 {
			return true
		}
		token, _ = form.Find(`input[name="REQUEST_TOKEN"]`).Attr("value")
		return token == ""
	})
	if token == "" {
		token, _ = doc.Find(`input[name="REQUEST_TOKEN"]`).First().Attr("value")
	}
	return strings.TrimSpace(token)
}

// loginRejected reports whether the response is the login form again with an error
func loginRejected(doc *goquery.Document) bool {
	form := doc.Find(`form:has(input[name="FORM_SUBMIT"][value="tl_login"])`)
	if form.Length() == 0 || form.Find(`input[name="password"]`).Length() == 0 {
		return false
	}
	return form.Find(".error, p.error, .tl_error").Length() > 0 || doc.Find(".login_error, .tl_error").Length() > 0
}

// Get downloads one document. The attempt is bounded by timeout and the
// payload must be a PDF.
func (c *Client) Get(ctx context.Context, locator string, timeout time.Duration) ([]byte, error) {
	target, err := c.Resolve(locator)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	body, err := c.fetch(ctx, http.MethodGet, target, nil, "")
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, errs.NewTimeoutError(target, err)
		}
		return nil, err
	}

	if !bytes.HasPrefix(body, pdfMagic) {
		return nil, errs.NewFetchError(errs.ErrorTypeInvalidContent, http.StatusOK, fmt.Sprintf("%s did not return a PDF", target), nil)
	}
	return body, nil
}

// fetch performs one paced request and returns the body of a 2xx response
func (c *Client) fetch(ctx context.Context, method, target string, payload io.Reader, contentType string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		// the limiter refuses up front when the wait would outlast the deadline
		if _, ok := ctx.Deadline(); ok {
			return nil, fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
		}
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, target, payload)
	if err != nil {
		return nil, errs.NewFetchError(errs.ErrorTypeUnknown, 0, fmt.Sprintf("failed to create request: %v", err), err)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		logger.LogRequest(c.logger, method, target, 0, time.Since(start))
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.NewFetchError(errs.ErrorTypeNetwork, 0, fmt.Sprintf("request to %s failed", target), err)
	}
	defer resp.Body.Close()
	logger.LogRequest(c.logger, method, target, resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, errs.NewFetchError(errs.TypeForStatus(resp.StatusCode), resp.StatusCode,
			fmt.Sprintf("%s %s returned %s", method, target, resp.Status), nil)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errs.NewFetchError(errs.ErrorTypeNetwork, resp.StatusCode, "failed to read response body", err)
	}
	return body, nil
}
