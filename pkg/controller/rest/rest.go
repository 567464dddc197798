/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package rest

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/agevault/agevault/pkg/controller/command"
)

var logger = log.New("agevault/rest")

// Handler http handler for each controller API endpoint.
type Handler interface {
	Path() string
	Method() string
	Handle() http.HandlerFunc
}

// genericErrorBody for error response
// Valid is only set for verification failures.
type genericErrorBody struct {
	Valid   *bool        `json:"valid,omitempty"`
	Code    command.Code `json:"code"`
	Message string       `json:"message"`
}

// genericError model
//
// This is used for returning errors of any operation.
//
// swagger:response genericError
type genericError struct { // nolint: unused,deadcode

	// in: body
	Body genericErrorBody
}

// Execute executes given command with args provided and writes command error to response writer.
func Execute(exec command.Exec, rw http.ResponseWriter, req io.Reader) {
	rw.Header().Set("Content-Type", "application/json")

	if err := exec(rw, req); err != nil {
		SendError(rw, err)
	}
}

// SendError sends error response with http status based on command error type.
func SendError(rw http.ResponseWriter, err command.Error) {
	var status int

	switch err.Type() {
	case command.ValidationError, command.VerificationError:
		status = http.StatusBadRequest
	case command.NotFoundError:
		status = http.StatusNotFound
	default:
		status = http.StatusInternalServerError
	}

	body := genericErrorBody{Code: err.Code(), Message: err.Error()}

	if err.Type() == command.VerificationError {
		valid := false
		body.Valid = &valid
	}

	sendErrorBody(rw, status, &body)
}

// SendHTTPStatusError sends given http status code to response with error body.
func SendHTTPStatusError(rw http.ResponseWriter, httpStatus int, code command.Code, err error) {
	sendErrorBody(rw, httpStatus, &genericErrorBody{Code: code, Message: err.Error()})
}

func sendErrorBody(rw http.ResponseWriter, httpStatus int, body *genericErrorBody) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(httpStatus)

	if err := json.NewEncoder(rw).Encode(body); err != nil {
		logger.Errorf("Unable to send error response, %s", err)
	}
}
