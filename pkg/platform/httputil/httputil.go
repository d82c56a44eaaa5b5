// Package httputil holds the JSON response helpers shared by every handler.
package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	dErrors "annogate/pkg/domain-errors"
)

// StatusCoder is implemented by errors that know the HTTP status they must be
// rendered with, such as an upstream failure relayed verbatim.
type StatusCoder interface {
	StatusCode() int
}

type errorBody struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError renders err as {"error","error_description"}. Internal errors
// never expose their description.
func WriteError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := errorBody{Error: string(dErrors.CodeInternal)}

	if de, ok := dErrors.As(err); ok {
		status = dErrors.ToHTTPStatus(de.Code)
		body.Error = string(de.Code)
		if de.Code != dErrors.CodeInternal {
			body.ErrorDescription = de.Message
		}
	}
	var sc StatusCoder
	if errors.As(err, &sc) {
		status = sc.StatusCode()
	}

	WriteJSON(w, status, body)
}
