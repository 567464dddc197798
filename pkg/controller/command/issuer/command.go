/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/agevault/agevault/pkg/controller/command"
	"github.com/agevault/agevault/pkg/controller/internal/cmdutil"
	"github.com/agevault/agevault/pkg/doc/claim"
	"github.com/agevault/agevault/pkg/internal/logutil"
	"github.com/agevault/agevault/pkg/issuer"
	"github.com/agevault/agevault/pkg/kms"
	"github.com/agevault/agevault/pkg/pseudonym"
	"github.com/agevault/agevault/pkg/store/relyingparty"
	"github.com/agevault/agevault/pkg/store/user"
	"github.com/agevault/agevault/pkg/token"
)

var logger = log.New("agevault/command/issuer")

// Error codes.
const (
	// InvalidRequestErrorCode is typically a code for invalid requests.
	InvalidRequestErrorCode = command.Code(iota + command.Issuer)
	// EnrollErrorCode is for failures while enrolling a user.
	EnrollErrorCode
	// IssueTokenErrorCode is for failures while issuing an assertion.
	IssueTokenErrorCode
	// UnknownUserErrorCode is for issuance requests naming an unknown user.
	UnknownUserErrorCode
	// UnknownRelyingPartyErrorCode is for issuance requests naming an unknown relying party.
	UnknownRelyingPartyErrorCode
	// IntrospectErrorCode is for failures while introspecting a network token.
	IntrospectErrorCode
	// RevokeErrorCode is for failures while revoking a network token.
	RevokeErrorCode
)

// constants for issuer commands.
const (
	// command name.
	CommandName = "issuer"

	// command methods.
	HealthCommandMethod     = "Health"
	GetKeySetCommandMethod  = "GetKeySet"
	EnrollCommandMethod     = "Enroll"
	IssueTokenCommandMethod = "IssueToken"
	IntrospectCommandMethod = "Introspect"
	RevokeCommandMethod     = "Revoke"

	// error messages.
	errEmptyDateOfBirth = "dob (YYYY-MM-DD) required"

	// log constants.
	userIDString  = "userID"
	rpIDString    = "rpID"
	tokenIDString = "tokenID"
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

// Command contains command operations provided by the issuer controller.
type Command struct {
	issuer   *issuer.Issuer
	issuerID string
	users    *user.Store
	tokens   *token.Registry
	keys     *kms.KeyMaterial
}

// New returns new issuer command instance.
func New(ctx provider) (*Command, error) {
	iss, err := issuer.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create issuer: %w", err)
	}

	return &Command{
		issuer:   iss,
		issuerID: ctx.IssuerID(),
		users:    ctx.UserStore(),
		tokens:   ctx.TokenRegistry(),
		keys:     ctx.KeyMaterial(),
	}, nil
}

// GetHandlers returns list of all commands supported by this controller command.
func (c *Command) GetHandlers() []command.Handler {
	return []command.Handler{
		cmdutil.NewCommandHandler(CommandName, HealthCommandMethod, c.Health),
		cmdutil.NewCommandHandler(CommandName, GetKeySetCommandMethod, c.GetKeySet),
		cmdutil.NewCommandHandler(CommandName, EnrollCommandMethod, c.Enroll),
		cmdutil.NewCommandHandler(CommandName, IssueTokenCommandMethod, c.IssueToken),
		cmdutil.NewCommandHandler(CommandName, IntrospectCommandMethod, c.Introspect),
		cmdutil.NewCommandHandler(CommandName, RevokeCommandMethod, c.Revoke),
	}
}

// Health reports that the issuer is serving.
func (c *Command) Health(rw io.Writer, _ io.Reader) command.Error {
	command.WriteNillableResponse(rw, &HealthResponse{OK: true, Issuer: c.issuerID}, logger)

	return nil
}

// GetKeySet writes the public verification key set.
func (c *Command) GetKeySet(rw io.Writer, _ io.Reader) command.Error {
	keySet := c.keys.PublicKeySet()

	command.WriteNillableResponse(rw, &keySet, logger)

	logutil.LogDebug(logger, CommandName, GetKeySetCommandMethod, "success")

	return nil
}

// Enroll enrolls a user with a date of birth.
func (c *Command) Enroll(rw io.Writer, req io.Reader) command.Error {
	var request EnrollRequest

	err := command.DecodeRequest(req, &request)
	if err != nil && !errors.Is(err, command.ErrEmptyRequest) {
		logutil.LogInfo(logger, CommandName, EnrollCommandMethod, err.Error())
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if request.DateOfBirth == "" {
		logutil.LogDebug(logger, CommandName, EnrollCommandMethod, errEmptyDateOfBirth)
		return command.NewValidationError(InvalidRequestErrorCode, errors.New(errEmptyDateOfBirth))
	}

	u, err := c.users.Enroll(request.DateOfBirth)
	if errors.Is(err, user.ErrInvalidDateOfBirth) {
		logutil.LogDebug(logger, CommandName, EnrollCommandMethod, err.Error())
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if err != nil {
		logutil.LogError(logger, CommandName, EnrollCommandMethod, err.Error())
		return command.NewExecuteError(EnrollErrorCode, err)
	}

	command.WriteNillableResponse(rw, &EnrollResponse{UserID: u.ID}, logger)

	logutil.LogDebug(logger, CommandName, EnrollCommandMethod, "success",
		logutil.CreateKeyValueString(userIDString, u.ID))

	return nil
}

// IssueToken issues an assertion and a network token for a user to a relying party.
func (c *Command) IssueToken(rw io.Writer, req io.Reader) command.Error {
	var request IssueTokenRequest

	err := command.DecodeRequest(req, &request)
	if err != nil {
		logutil.LogInfo(logger, CommandName, IssueTokenCommandMethod, err.Error())
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	result, err := c.issuer.Issue(request.UserID, request.RPID, request.Claims)
	if err != nil {
		logutil.LogInfo(logger, CommandName, IssueTokenCommandMethod, err.Error(),
			logutil.CreateKeyValueString(userIDString, request.UserID),
			logutil.CreateKeyValueString(rpIDString, request.RPID))

		switch {
		case errors.Is(err, issuer.ErrUnknownUser):
			return command.NewNotFoundError(UnknownUserErrorCode, err)
		case errors.Is(err, issuer.ErrUnknownRelyingParty):
			return command.NewNotFoundError(UnknownRelyingPartyErrorCode, err)
		default:
			return command.NewExecuteError(IssueTokenErrorCode, err)
		}
	}

	command.WriteNillableResponse(rw, &IssueTokenResponse{
		PPID:         result.PPID,
		NetworkToken: result.TokenID,
		Assertion:    result.Assertion,
		ExpiresAt:    result.ExpiresAt.UnixMilli(),
	}, logger)

	logutil.LogDebug(logger, CommandName, IssueTokenCommandMethod, "success",
		logutil.CreateKeyValueString(rpIDString, request.RPID),
		logutil.CreateMaskedKeyValueString(tokenIDString, result.TokenID))

	return nil
}

// Introspect reports whether a network token is active. Unknown tokens are reported inactive.
func (c *Command) Introspect(rw io.Writer, req io.Reader) command.Error {
	var request TokenRequest

	err := command.DecodeRequest(req, &request)
	if err != nil && !errors.Is(err, command.ErrEmptyRequest) {
		logutil.LogInfo(logger, CommandName, IntrospectCommandMethod, err.Error())
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	result, err := c.tokens.Introspect(request.NetworkToken)
	if err != nil {
		logutil.LogError(logger, CommandName, IntrospectCommandMethod, err.Error())
		return command.NewExecuteError(IntrospectErrorCode, err)
	}

	response := &IntrospectResponse{Active: result.Active, PPID: result.PPID, RPID: result.RPID}

	if result.ExpiresAt != nil {
		exp := result.ExpiresAt.UnixMilli()
		response.ExpiresAt = &exp
	}

	command.WriteNillableResponse(rw, response, logger)

	logutil.LogDebug(logger, CommandName, IntrospectCommandMethod, "success",
		logutil.CreateMaskedKeyValueString(tokenIDString, request.NetworkToken))

	return nil
}

// Revoke revokes a network token. Revoking an unknown token succeeds.
func (c *Command) Revoke(rw io.Writer, req io.Reader) command.Error {
	var request TokenRequest

	err := command.DecodeRequest(req, &request)
	if err != nil && !errors.Is(err, command.ErrEmptyRequest) {
		logutil.LogInfo(logger, CommandName, RevokeCommandMethod, err.Error())
		return command.NewValidationError(InvalidRequestErrorCode, err)
	}

	if err := c.tokens.Revoke(request.NetworkToken); err != nil {
		logutil.LogError(logger, CommandName, RevokeCommandMethod, err.Error())
		return command.NewExecuteError(RevokeErrorCode, err)
	}

	command.WriteNillableResponse(rw, &RevokeResponse{Revoked: true}, logger)

	logutil.LogDebug(logger, CommandName, RevokeCommandMethod, "success",
		logutil.CreateMaskedKeyValueString(tokenIDString, request.NetworkToken))

	return nil
}
