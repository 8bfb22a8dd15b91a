package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/closetiq/closetiq/internal/errors"
	"github.com/closetiq/closetiq/internal/governor"
)

const (
	maxForwardBody   = 8 << 20
	maxMultipartBody = 32 << 20
)

// Gateway is the governor surface exposed over HTTP.
type Gateway interface {
	Do(ctx context.Context, req *governor.Request) (*governor.Result, error)
	CheckHealth(ctx context.Context) bool
	Status() governor.QueueStatus
	Clear() int
}

// GovernorHandlers serves the governor status routes and forwards /api calls.
type GovernorHandlers struct {
	Gateway Gateway
}

// StatusResponse is the JSON form of governor.QueueStatus.
type StatusResponse struct {
	governor.QueueStatus
	TimeToResetMS int64 `json:"time_to_reset_ms"`
}

// Status reports queue depth and window usage.
func (h *GovernorHandlers) Status(w http.ResponseWriter, r *http.Request) {
	status := h.Gateway.Status()
	writeJSON(w, http.StatusOK, StatusResponse{
		QueueStatus:   status,
		TimeToResetMS: status.TimeToReset.Milliseconds(),
	})
}

// Clear drops every queued request.
func (h *GovernorHandlers) Clear(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]int{"dropped": h.Gateway.Clear()})
}

// BackendHealth probes the backend outside the queue.
func (h *GovernorHandlers) BackendHealth(w http.ResponseWriter, r *http.Request) {
	if !h.Gateway.CheckHealth(r.Context()) {
		respondWithError(w, r, apperrors.FromGovernor(r.Context(), &governor.RequestError{
			Method: http.MethodGet,
			Path:   "health",
		}))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Forward replays the inbound request through the governor and answers
// with the uniform result shape.
func (h *GovernorHandlers) Forward(w http.ResponseWriter, r *http.Request) {
	req, err := forwardRequest(w, r)
	if err != nil {
		respondWithError(w, r, apperrors.NewInvalidInputError(err.Error()))
		return
	}

	res, err := h.Gateway.Do(r.Context(), req)
	status := http.StatusOK
	if err != nil {
		status = apperrors.HTTPStatusFromEnvelope(apperrors.FromGovernor(r.Context(), err))
	}
	writeJSON(w, status, res)
}

func forwardRequest(w http.ResponseWriter, r *http.Request) (*governor.Request, error) {
	req := &governor.Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
	}
	if len(req.Query) == 0 {
		req.Query = nil
	}

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		form, err := readForm(w, r)
		if err != nil {
			return nil, err
		}
		req.Form = form
		return req, nil
	}

	if r.Body == nil {
		return req, nil
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxForwardBody+1))
	if err != nil {
		return nil, errors.New("unable to read request body")
	}
	if len(body) > maxForwardBody {
		return nil, errors.New("request body too large")
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return req, nil
	}
	if !json.Valid(body) {
		return nil, errors.New("request body must be JSON")
	}
	req.Body = json.RawMessage(body)
	return req, nil
}

func readForm(w http.ResponseWriter, r *http.Request) (*governor.Form, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxMultipartBody)
	if err := r.ParseMultipartForm(maxMultipartBody); err != nil {
		return nil, errors.New("invalid multipart body")
	}

	form := &governor.Form{Fields: map[string]string{}}
	for name, values := range r.MultipartForm.Value {
		if len(values) > 0 {
			form.Fields[name] = values[0]
		}
	}
	for field, headers := range r.MultipartForm.File {
		for _, header := range headers {
			file, err := readPart(field, header)
			if err != nil {
				return nil, err
			}
			form.Files = append(form.Files, file)
		}
	}
	return form, nil
}

func readPart(field string, header *multipart.FileHeader) (governor.File, error) {
	f, err := header.Open()
	if err != nil {
		return governor.File{}, errors.New("unable to read uploaded file")
	}
	defer f.Close() // nolint:errcheck // best-effort cleanup

	data, err := io.ReadAll(f)
	if err != nil {
		return governor.File{}, errors.New("unable to read uploaded file")
	}
	return governor.File{
		Field:       field,
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
