package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/anoixa/image-gallery/config"
	"github.com/anoixa/image-gallery/internal/metrics"
	"github.com/anoixa/image-gallery/utils"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/time/rate"
)

// Kind 期望的响应类型
type Kind int

const (
	KindJSON Kind = iota
	KindBinary
)

func (k Kind) accept() string {
	if k == KindBinary {
		return "*/*"
	}
	return "application/json, text/plain, */*"
}

const (
	defaultTimeout          = 30 * time.Second
	defaultMaxResponseBytes = 64 << 20
	maxErrorBodyLen         = 256
	requestIDHeader         = "X-Request-ID"
)

// Request 一次远端调用
type Request struct {
	Method      string
	Path        string
	Query       url.Values
	Body        io.Reader
	ContentType string
}

// Response 完整读取后的响应
type Response struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// Options 客户端可选参数
type Options struct {
	Timeout          time.Duration
	RateLimitRPS     float64 // <=0 不限速
	RateLimitBurst   int
	MaxResponseBytes int64
	HTTPClient       *http.Client
}

// Client 远端图片服务的 HTTP 适配器，不持有任何缓存状态
type Client struct {
	baseURL          *url.URL
	http             *http.Client
	limiter          *rate.Limiter
	maxResponseBytes int64
}

// NewClient 创建传输客户端
func NewClient(baseURL string, opts Options) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("empty base URL")
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: unsupported scheme", baseURL)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		}
	}

	c := &Client{
		baseURL:          u,
		http:             httpClient,
		maxResponseBytes: opts.MaxResponseBytes,
	}
	if c.maxResponseBytes <= 0 {
		c.maxResponseBytes = defaultMaxResponseBytes
	}
	if opts.RateLimitRPS > 0 {
		burst := opts.RateLimitBurst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitRPS), burst)
	}
	return c, nil
}

// NewFromConfig 根据应用配置创建客户端
func NewFromConfig(cfg *config.Config) (*Client, error) {
	return NewClient(cfg.RemoteBaseURL, Options{
		Timeout:        cfg.RemoteTimeout,
		RateLimitRPS:   cfg.RemoteRateLimitRPS,
		RateLimitBurst: cfg.RemoteRateLimitBurst,
	})
}

// BaseURL 返回远端服务地址
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Do 发送请求并完整读取响应体；非 2xx 或网络错误返回 *Error
func (c *Client) Do(ctx context.Context, req Request, kind Kind) (*Response, error) {
	fail := func(status int, body string, cause error) error {
		metrics.ObserveRequest(req.Method, status)
		return &Error{Method: req.Method, Path: req.Path, StatusCode: status, Body: body, Cause: cause}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fail(0, "", err)
		}
	}

	target := c.resolve(req.Path, req.Query)
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, req.Body)
	if err != nil {
		return nil, fail(0, "", err)
	}
	if req.ContentType != "" {
		httpReq.Header.Set("Content-Type", req.ContentType)
	}
	httpReq.Header.Set("Accept", kind.accept())
	httpReq.Header.Set(requestIDHeader, RequestIDFrom(ctx))

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if !utils.IsContextCanceled(err) {
			log.Printf("[Transport] %s %s failed: %v", req.Method, req.Path, err)
		}
		return nil, fail(0, "", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("read body: %w", err))
	}
	if int64(len(body)) > c.maxResponseBytes {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("response exceeds %d bytes", c.maxResponseBytes))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fail(resp.StatusCode, truncate(body), ErrUnexpectedStatus)
	}

	metrics.ObserveRequest(req.Method, resp.StatusCode)
	return &Response{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

type requestIDKey struct{}

// WithRequestID 让后续的远端请求沿用同一个请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom 取出上下文中的请求 ID，没有时新生成一个
func RequestIDFrom(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// GetJSON GET 并解码 JSON
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	return c.SendJSON(ctx, http.MethodGet, path, query, nil, out)
}

// GetBinary GET 二进制内容
func (c *Client) GetBinary(ctx context.Context, path string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, KindBinary)
}

// SendJSON 发送可选的 JSON 请求体；out 为 nil 时忽略响应内容
func (c *Client) SendJSON(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	req := Request{Method: method, Path: path, Query: query}
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		req.Body = bytes.NewReader(data)
		req.ContentType = "application/json"
	}

	resp, err := c.Do(ctx, req, KindJSON)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return resp.DecodeJSON(method, path, out)
}

// DecodeJSON 解码响应体，失败时返回 *Error 而不是部分结果
func (r *Response) DecodeJSON(method, path string, out interface{}) error {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return &Error{Method: method, Path: path, StatusCode: r.StatusCode, Cause: errors.New("empty response body")}
	}
	if err := json.Unmarshal(r.Body, out); err != nil {
		return &Error{Method: method, Path: path, StatusCode: r.StatusCode, Body: truncate(r.Body), Cause: fmt.Errorf("decode json: %w", err)}
	}
	return nil
}

// File multipart 中的文件部分
type File struct {
	Field       string
	Name        string
	ContentType string
	Content     io.Reader
}

// PostMultipart 以 multipart/form-data 上传文件和表单字段
func (c *Client) PostMultipart(ctx context.Context, path string, file File, fields map[string]string) (*Response, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return nil, fmt.Errorf("write field %s: %w", k, err)
		}
	}

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		escapeQuotes(file.Field), escapeQuotes(file.Name)))
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	header.Set("Content-Type", contentType)

	part, err := w.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, file.Content); err != nil {
		return nil, fmt.Errorf("copy file content: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	return c.Do(ctx, Request{
		Method:      http.MethodPost,
		Path:        path,
		Body:        &buf,
		ContentType: w.FormDataContentType(),
	}, KindJSON)
}

// resolve 拼接地址，path 中已转义的片段（如用户 id）保持原样
func (c *Client) resolve(path string, query url.Values) string {
	u := *c.baseURL
	u.RawPath = strings.TrimRight(c.baseURL.EscapedPath(), "/") + "/" + strings.TrimLeft(path, "/")
	if unescaped, err := url.PathUnescape(u.RawPath); err == nil {
		u.Path = unescaped
	} else {
		u.Path, u.RawPath = u.RawPath, ""
	}
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

func truncate(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBodyLen {
		s = s[:maxErrorBodyLen] + "..."
	}
	return utils.SanitizeLogMessage(s)
}
