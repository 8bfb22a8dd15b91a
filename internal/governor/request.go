package governor

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Request describes one backend operation. It is re-encoded on every attempt,
// so the same descriptor can be retried safely.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	Body    any
	Form    *Form
	Header  http.Header
	Timeout time.Duration
}

// Form is a multipart body. Files are sent before plain fields.
type Form struct {
	Fields map[string]string
	Files  []File
}

// File is a single multipart file part.
type File struct {
	Field       string
	Name        string
	ContentType string
	Data        []byte
}

// Result is the uniform outcome handed to callers.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Decode unmarshals the result payload into v.
func (r *Result) Decode(v any) error {
	if r == nil || len(r.Data) == 0 {
		return errors.New("result has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("decode result data: %w", err)
	}
	return nil
}

// Err converts an unsuccessful result into an error.
func (r *Result) Err() error {
	if r == nil {
		return errors.New("no result")
	}
	if r.Success {
		return nil
	}
	switch {
	case r.Error != "":
		return errors.New(r.Error)
	case r.Message != "":
		return errors.New(r.Message)
	default:
		return errors.New("request failed")
	}
}

func failureResult(err error) *Result {
	res := &Result{Success: false}
	if err == nil {
		res.Error = "request failed"
		return res
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.Message != "" {
		res.Message = reqErr.Message
	}
	res.Error = err.Error()
	return res
}

// decodeResult maps a 2xx body onto Result. Bodies that are not the backend
// envelope, or envelopes without a data field, are kept whole as data.
func decodeResult(body []byte) *Result {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return &Result{Success: true}
	}

	var envelope struct {
		Success *bool           `json:"success"`
		Data    json.RawMessage `json:"data"`
		Message string          `json:"message"`
		Error   string          `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err == nil && envelope.Success != nil {
		res := &Result{
			Success: *envelope.Success,
			Data:    envelope.Data,
			Message: envelope.Message,
			Error:   envelope.Error,
		}
		// Some endpoints put the payload beside success instead of under data.
		if len(res.Data) == 0 || string(res.Data) == "null" {
			res.Data = json.RawMessage(trimmed)
		}
		return res
	}

	if json.Valid(trimmed) {
		return &Result{Success: true, Data: json.RawMessage(trimmed)}
	}
	encoded, _ := json.Marshal(string(trimmed))
	return &Result{Success: true, Data: encoded}
}

// serverMessage pulls a human-readable message out of an error body.
func serverMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Error   any    `json:"error"`
	}
	if err := json.Unmarshal(trimmed, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		switch v := payload.Error.(type) {
		case string:
			return v
		case map[string]any:
			if msg, ok := v["message"].(string); ok {
				return msg
			}
		}
		return ""
	}

	text := strings.TrimSpace(string(trimmed))
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

func (r *Request) normalize() error {
	if r == nil {
		return errors.New("request is required")
	}
	r.Method = strings.ToUpper(strings.TrimSpace(r.Method))
	if r.Method == "" {
		r.Method = http.MethodGet
	}
	r.Path = strings.TrimSpace(r.Path)
	if r.Path == "" {
		return errors.New("request path is required")
	}
	if r.Form != nil && r.Body != nil {
		return errors.New("request cannot carry both a body and a form")
	}
	return nil
}

func (r *Request) encodeBody() ([]byte, error) {
	switch body := r.Body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return body, nil
	case json.RawMessage:
		return body, nil
	case string:
		return []byte(body), nil
	default:
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		return data, nil
	}
}
