package governor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxResponseBytes = 8 << 20

// send performs a single attempt of req. Non-2xx responses and transport
// failures come back as *RequestError; encoding problems are plain errors.
func (g *Governor) send(ctx context.Context, req *Request) (*Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = g.cfg.RequestTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := g.buildRequest(ctx, req)
	if err != nil {
		return nil, err
	}
	if token := g.tokens.Token(ctx); token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	start := g.now()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.hooks.OnDispatch(req.Method, 0, g.now().Sub(start))
		reqErr := &RequestError{Method: req.Method, Path: req.Path, Message: "network error", Err: err}
		g.logFailure(reqErr)
		return nil, reqErr
	}
	defer resp.Body.Close() // nolint:errcheck // best-effort cleanup

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	g.hooks.OnDispatch(req.Method, resp.StatusCode, g.now().Sub(start))
	if err != nil {
		reqErr := &RequestError{Method: req.Method, Path: req.Path, Message: "read response", Err: err}
		g.logFailure(reqErr)
		return nil, reqErr
	}
	oversized := len(body) > maxResponseBytes

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if oversized {
			// a truncated body must not be mistaken for a successful payload
			reqErr := &RequestError{
				Method:     req.Method,
				Path:       req.Path,
				StatusCode: resp.StatusCode,
				Message:    "response too large",
				Err:        ErrResponseTooLarge,
			}
			g.logFailure(reqErr)
			return nil, reqErr
		}
		return decodeResult(body), nil
	}
	if oversized {
		body = body[:maxResponseBytes]
	}

	reqErr := &RequestError{
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: resp.StatusCode,
		Message:    serverMessage(body),
		RetryAfter: resp.Header.Get("Retry-After"),
	}
	if resp.StatusCode == http.StatusUnauthorized {
		g.tokens.Invalidate(ctx)
	}
	g.logFailure(reqErr)
	return nil, reqErr
}

func (g *Governor) buildRequest(ctx context.Context, req *Request) (*http.Request, error) {
	target, err := g.resolve(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		payload, ct, err := encodeForm(req.Form)
		if err != nil {
			return nil, err
		}
		body, contentType = bytes.NewReader(payload), ct
	default:
		payload, err := req.encodeBody()
		if err != nil {
			return nil, err
		}
		if payload != nil {
			body, contentType = bytes.NewReader(payload), "application/json"
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("User-Agent", g.cfg.UserAgent)
	httpReq.Header.Set("X-Request-ID", uuid.NewString())
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for key, values := range req.Header {
		httpReq.Header.Del(key)
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	return httpReq, nil
}

// resolve joins path onto the backend base URL, keeping any base path prefix.
func (g *Governor) resolve(path string, query url.Values) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path: %w", err)
	}
	if ref.IsAbs() {
		return "", fmt.Errorf("request path must be relative: %s", path)
	}

	target := *g.base
	target.Path = strings.TrimRight(g.base.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")
	target.RawPath = ""

	merged := ref.Query()
	for key, values := range query {
		for _, v := range values {
			merged.Add(key, v)
		}
	}
	target.RawQuery = merged.Encode()
	target.Fragment = ""

	return target.String(), nil
}

func encodeForm(form *Form) ([]byte, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	for _, file := range form.Files {
		field := file.Field
		if field == "" {
			field = "file"
		}
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, field, file.Name))
		ct := file.ContentType
		if ct == "" {
			ct = http.DetectContentType(file.Data)
		}
		header.Set("Content-Type", ct)

		part, err := writer.CreatePart(header)
		if err != nil {
			return nil, "", fmt.Errorf("encode form file: %w", err)
		}
		if _, err := part.Write(file.Data); err != nil {
			return nil, "", fmt.Errorf("encode form file: %w", err)
		}
	}

	keys := make([]string, 0, len(form.Fields))
	for key := range form.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if err := writer.WriteField(key, form.Fields[key]); err != nil {
			return nil, "", fmt.Errorf("encode form field: %w", err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("encode form: %w", err)
	}
	return buf.Bytes(), writer.FormDataContentType(), nil
}

// logFailure reports a failed attempt at a level chosen by status class.
func (g *Governor) logFailure(err *RequestError) {
	if g.logger == nil || err == nil {
		return
	}

	fields := []zap.Field{
		zap.String("method", err.Method),
		zap.String("path", err.Path),
		zap.Int("status", err.StatusCode),
	}
	if err.Message != "" {
		fields = append(fields, zap.String("message", err.Message))
	}

	switch {
	case err.StatusCode == 0:
		g.errorf("Network error", append(fields, zap.Error(err.Err))...)
	case err.StatusCode == http.StatusUnauthorized:
		g.errorf("Authentication failed, cached token cleared", fields...)
	case err.StatusCode == http.StatusForbidden:
		g.warn("Access denied", fields...)
	case err.StatusCode == http.StatusNotFound:
		g.debug("Resource not found", fields...)
	case err.StatusCode == http.StatusTooManyRequests:
		g.warn("Rate limited by backend", append(fields, zap.String("retry_after", err.RetryAfter))...)
	case err.StatusCode >= 500:
		g.errorf("Backend server error", fields...)
	default:
		g.warn("Backend request failed", fields...)
	}
}
