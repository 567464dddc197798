/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package verifier

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agevault/agevault/pkg/controller/command"
	cmdverifier "github.com/agevault/agevault/pkg/controller/command/verifier"
	"github.com/agevault/agevault/pkg/controller/internal/cmdutil"
	"github.com/agevault/agevault/pkg/controller/rest"
	"github.com/agevault/agevault/pkg/verifier"
)

// constants for verifier operations.
const (
	HealthPath = "/health"
	VerifyPath = "/verify"
)

// provider contains dependencies for the verifier command and is typically created by using context.New().
type provider interface {
	KeyResolver() verifier.KeyResolver
	Clock() func() time.Time
	ClockSkew() time.Duration
	RedactErrors() bool
}

type verifierCommand interface {
	Health(rw io.Writer, req io.Reader) command.Error
	Verify(rw io.Writer, req io.Reader) command.Error
}

// Operation contains basic common operations provided by controller REST API.
type Operation struct {
	handlers []rest.Handler
	command  verifierCommand
}

// New returns new verifier operations rest client instance.
func New(p provider, expectedIssuer string, opts ...cmdverifier.Option) (*Operation, error) {
	cmd, err := cmdverifier.New(p, expectedIssuer, opts...)
	if err != nil {
		return nil, fmt.Errorf("create verifier command : %w", err)
	}

	o := &Operation{command: cmd}
	o.registerHandler()

	return o, nil
}

// GetRESTHandlers get all controller API handler available for this service.
func (o *Operation) GetRESTHandlers() []rest.Handler {
	return o.handlers
}

// registerHandler register handlers to be exposed from this protocol service as REST API endpoints.
func (o *Operation) registerHandler() {
	o.handlers = []rest.Handler{
		cmdutil.NewHTTPHandler(HealthPath, http.MethodGet, o.Health),
		cmdutil.NewHTTPHandler(VerifyPath, http.MethodPost, o.Verify),
	}
}

// Health swagger:route GET /health verifier health
//
// Reports relying party liveness and the key set it trusts.
//
// Responses:
//    default: genericError
//        200: healthRes
func (o *Operation) Health(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Health, rw, req.Body)
}

// Verify swagger:route POST /verify verifier verify
//
// Verifies an assertion and returns the disclosed claims.
//
// Responses:
//    default: genericError
//        200: verifyRes
func (o *Operation) Verify(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Verify, rw, req.Body)
}
