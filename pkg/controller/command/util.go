/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hyperledger/aries-framework-go/spi/log"
)

// ErrEmptyRequest is returned by DecodeRequest for a missing or empty request body.
var ErrEmptyRequest = errors.New("request body is empty")

// WriteNillableResponse is a utility function that writes v to w.
// If v is nil then an empty object is written.
func WriteNillableResponse(w io.Writer, v interface{}, l log.Logger) {
	obj := v
	if v == nil {
		obj = map[string]interface{}{}
	}

	if err := json.NewEncoder(w).Encode(obj); err != nil {
		l.Errorf("Unable to send error response, %s", err)
	}
}

// DecodeRequest decodes a JSON request body into v.
// A nil or empty body is reported as an error so that callers can reply with a validation error.
func DecodeRequest(req io.Reader, v interface{}) error {
	if req == nil {
		return ErrEmptyRequest
	}

	if err := json.NewDecoder(req).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrEmptyRequest
		}

		return fmt.Errorf("failed request decode : %w", err)
	}

	return nil
}
