/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package verifier

import (
	"errors"
	"io"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/agevault/agevault/pkg/controller/command"
	"github.com/agevault/agevault/pkg/controller/internal/cmdutil"
	"github.com/agevault/agevault/pkg/internal/logutil"
	"github.com/agevault/agevault/pkg/verifier"
)

var logger = log.New("agevault/command/verifier")

// Error codes.
const (
	// InvalidRequestErrorCode is typically a code for invalid requests.
	InvalidRequestErrorCode = command.Code(iota + command.Verifier)
	// VerifyAssertionErrorCode is for assertions that failed verification.
	VerifyAssertionErrorCode
)

// constants for verifier commands.
const (
	// command name.
	CommandName = "verifier"

	// command methods.
	HealthCommandMethod = "Health"
	VerifyCommandMethod = "Verify"

	// error messages.
	errEmptyAssertion = "assertion (JWT) required"
	errEmptyAudience  = "audience is mandatory"
)

// provider contains dependencies for the verifier command and is typically created by using context.New().
type provider interface {
	KeyResolver() verifier.KeyResolver
	Clock() func() time.Time
	ClockSkew() time.Duration
	RedactErrors() bool
}

// Command contains command operations provided by the verifier controller.
type Command struct {
	verifier       *verifier.Verifier
	expectedIssuer string
	audience       string
	keySetURL      string
}

// Option configures the verifier command.
type Option func(c *Command)

// WithAudience binds the command to a relying party. Assertions must name it as audience.
func WithAudience(rpID string) Option {
	return func(c *Command) {
		c.audience = rpID
	}
}

// WithKeySetURL sets the key set location reported by Health.
func WithKeySetURL(url string) Option {
	return func(c *Command) {
		c.keySetURL = url
	}
}

// New returns new verifier command instance expecting assertions from expectedIssuer.
func New(ctx provider, expectedIssuer string, opts ...Option) (*Command, error) {
	if expectedIssuer == "" {
		return nil, errors.New("expected issuer is mandatory")
	}

	if ctx.KeyResolver() == nil {
		return nil, errors.New("key resolver is mandatory")
	}

	verifierOpts := []verifier.Option{
		verifier.WithClock(ctx.Clock()),
		verifier.WithLeeway(ctx.ClockSkew()),
	}

	if ctx.RedactErrors() {
		verifierOpts = append(verifierOpts, verifier.WithRedactedErrors())
	}

	c := &Command{
		verifier:       verifier.New(ctx.KeyResolver(), verifierOpts...),
		expectedIssuer: expectedIssuer,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// GetHandlers returns list of all commands supported by this controller command.
func (c *Command) GetHandlers() []command.Handler {
	return []command.Handler{
		cmdutil.NewCommandHandler(CommandName, HealthCommandMethod, c.Health),
		cmdutil.NewCommandHandler(CommandName, VerifyCommandMethod, c.Verify),
	}
}

// Health reports that the relying party verifier is serving.
func (c *Command) Health(rw io.Writer, _ io.Reader) command.Error {
	command.WriteNillableResponse(rw, &HealthResponse{OK: true, RPID: c.audience, KeySetURL: c.keySetURL}, logger)

	return nil
}

// Verify verifies an assertion and returns its disclosed claims.
func (c *Command) Verify(rw io.Writer, req io.Reader) command.Error {
	var request VerifyRequest

	err := command.DecodeRequest(req, &request)
	if err != nil && !errors.Is(err, command.ErrEmptyRequest) {
		logutil.LogInfo(logger, CommandName, VerifyCommandMethod, err.Error())
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if request.Assertion == "" {
		logutil.LogDebug(logger, CommandName, VerifyCommandMethod, errEmptyAssertion)
		return command.NewValidationError(InvalidRequestErrorCode, errors.New(errEmptyAssertion))
	}

	audience := c.audience
	if audience == "" {
		audience = request.Audience
	}

	if audience == "" {
		logutil.LogDebug(logger, CommandName, VerifyCommandMethod, errEmptyAudience)
		return command.NewValidationError(InvalidRequestErrorCode, errors.New(errEmptyAudience))
	}

	result, err := c.verifier.Verify(request.Assertion, c.expectedIssuer, audience)
	if err != nil {
		var reason *verifier.Error
		if errors.As(err, &reason) {
			logutil.LogInfo(logger, CommandName, VerifyCommandMethod, reason.Reason.Error())
		}

		return command.NewVerificationError(VerifyAssertionErrorCode, err)
	}

	command.WriteNillableResponse(rw, &VerifyResponse{
		Valid:     result.Valid,
		Subject:   result.Subject,
		Claims:    result.Claims,
		IssuedAt:  result.IssuedAt.Unix(),
		ExpiresAt: result.ExpiresAt.Unix(),
	}, logger)

	logutil.LogDebug(logger, CommandName, VerifyCommandMethod, "success")

	return nil
}
