/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuer

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/agevault/agevault/pkg/controller/command"
	cmdissuer "github.com/agevault/agevault/pkg/controller/command/issuer"
	"github.com/agevault/agevault/pkg/controller/internal/cmdutil"
	"github.com/agevault/agevault/pkg/controller/rest"
	"github.com/agevault/agevault/pkg/doc/claim"
	"github.com/agevault/agevault/pkg/kms"
	"github.com/agevault/agevault/pkg/pseudonym"
	"github.com/agevault/agevault/pkg/store/relyingparty"
	"github.com/agevault/agevault/pkg/store/user"
	"github.com/agevault/agevault/pkg/token"
)

// constants for issuer operations.
const (
	HealthPath     = "/health"
	KeySetPath     = "/.well-known/jwks.json"
	EnrollPath     = "/enroll"
	IssueTokenPath = "/token"
	IntrospectPath = "/introspect"
	RevokePath     = "/revoke"
)

// provider contains dependencies for the issuer command and is typically created by using context.New().
type provider interface {
	IssuerID() string
	TokenTTL() time.Duration
	Clock() func() time.Time
	UserStore() *user.Store
	RelyingPartyRegistry() *relyingparty.Registry
	TokenRegistry() *token.Registry
	PseudonymDeriver() *pseudonym.Deriver
	ClaimProjector() *claim.Projector
	KeyMaterial() *kms.KeyMaterial
}

type issuerCommand interface {
	Health(rw io.Writer, req io.Reader) command.Error
	GetKeySet(rw io.Writer, req io.Reader) command.Error
	Enroll(rw io.Writer, req io.Reader) command.Error
	IssueToken(rw io.Writer, req io.Reader) command.Error
	Introspect(rw io.Writer, req io.Reader) command.Error
	Revoke(rw io.Writer, req io.Reader) command.Error
}

// Operation contains basic common operations provided by controller REST API.
type Operation struct {
	handlers []rest.Handler
	command  issuerCommand
}

// New returns new issuer operations rest client instance.
func New(p provider) (*Operation, error) {
	cmd, err := cmdissuer.New(p)
	if err != nil {
		return nil, fmt.Errorf("create issuer command : %w", err)
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
		cmdutil.NewHTTPHandler(KeySetPath, http.MethodGet, o.GetKeySet),
		cmdutil.NewHTTPHandler(EnrollPath, http.MethodPost, o.Enroll),
		cmdutil.NewHTTPHandler(IssueTokenPath, http.MethodPost, o.IssueToken),
		cmdutil.NewHTTPHandler(IntrospectPath, http.MethodPost, o.Introspect),
		cmdutil.NewHTTPHandler(RevokePath, http.MethodPost, o.Revoke),
	}
}

// Health swagger:route GET /health issuer health
//
// Reports issuer liveness and identity.
//
// Responses:
//    default: genericError
//        200: healthRes
func (o *Operation) Health(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Health, rw, req.Body)
}

// GetKeySet swagger:route GET /.well-known/jwks.json issuer getKeySet
//
// Publishes the assertion verification key set.
//
// Responses:
//    default: genericError
//        200: keySetRes
func (o *Operation) GetKeySet(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.GetKeySet, rw, req.Body)
}

// Enroll swagger:route POST /enroll issuer enroll
//
// Enrolls a user with a date of birth.
//
// Responses:
//    default: genericError
//        200: enrollRes
func (o *Operation) Enroll(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Enroll, rw, req.Body)
}

// IssueToken swagger:route POST /token issuer issueToken
//
// Issues a pairwise assertion and network token to a relying party.
//
// Responses:
//    default: genericError
//        200: issueTokenRes
func (o *Operation) IssueToken(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.IssueToken, rw, req.Body)
}

// Introspect swagger:route POST /introspect issuer introspect
//
// Reports whether a network token is active.
//
// Responses:
//    default: genericError
//        200: introspectRes
func (o *Operation) Introspect(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Introspect, rw, req.Body)
}

// Revoke swagger:route POST /revoke issuer revoke
//
// Revokes a network token.
//
// Responses:
//    default: genericError
//        200: revokeRes
func (o *Operation) Revoke(rw http.ResponseWriter, req *http.Request) {
	rest.Execute(o.command.Revoke, rw, req.Body)
}
