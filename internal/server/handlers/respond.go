package handlers

import (
	"net/http"

	apperrors "github.com/closetiq/closetiq/internal/errors"
)

// ErrorResponder writes err to w as an HTTP error body.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

var errorResponder ErrorResponder = apperrors.RespondWithError

// SetHTTPErrorResponder routes handler errors through responder. A nil
// responder restores the envelope writer from internal/errors.
func SetHTTPErrorResponder(responder ErrorResponder) {
	if responder == nil {
		responder = apperrors.RespondWithError
	}
	errorResponder = responder
}

func respondWithError(w http.ResponseWriter, r *http.Request, err error) {
	errorResponder(w, r, err)
}
