/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package issuer issues signed age assertions addressed to a single relying party.
//
// Each assertion names the holder by a pairwise pseudonym and discloses only the requested age claims. Issuance
// also registers a network token that the relying party can introspect or revoke.
package issuer

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
	"github.com/hyperledger/aries-framework-go/component/log"

	"github.com/agevault/agevault/pkg/doc/claim"
	"github.com/agevault/agevault/pkg/kms"
	"github.com/agevault/agevault/pkg/pseudonym"
	"github.com/agevault/agevault/pkg/store/relyingparty"
	"github.com/agevault/agevault/pkg/store/user"
	"github.com/agevault/agevault/pkg/token"
)

// AttrsClaim is the assertion payload member that carries the disclosed claims.
const AttrsClaim = "attrs"

var logger = log.New("agevault/issuer")

var (
	// ErrUnknownUser is returned when the user ID is not enrolled.
	ErrUnknownUser = errors.New("unknown user_id")
	// ErrUnknownRelyingParty is returned when the relying party is not registered.
	ErrUnknownRelyingParty = errors.New("unknown rp_id")
)

type userStore interface {
	Get(id string) (*user.User, error)
}

type relyingPartyRegistry interface {
	Get(id string) (*relyingparty.RelyingParty, error)
}

type tokenRegistry interface {
	Create(userID, rpID, ppid string, expiresAt time.Time) (string, error)
}

type pseudonymDeriver interface {
	Derive(userID, rpID string) string
}

type claimProjector interface {
	Project(dob time.Time, requested []string, now time.Time) map[claim.Name]bool
}

type signer interface {
	Signer() jose.Signer
}

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

// Result of an issuance.
type Result struct {
	PPID      string
	TokenID   string
	Assertion string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Claims    map[claim.Name]bool
}

// Issuer issues assertions.
type Issuer struct {
	issuerID  string
	ttl       time.Duration
	now       func() time.Time
	users     userStore
	rps       relyingPartyRegistry
	tokens    tokenRegistry
	deriver   pseudonymDeriver
	projector claimProjector
	keys      signer
}

// New returns an issuer backed by the services of ctx.
func New(ctx provider) (*Issuer, error) {
	if ctx.IssuerID() == "" {
		return nil, errors.New("issuer identity is mandatory")
	}

	if ctx.TokenTTL() <= 0 {
		return nil, fmt.Errorf("invalid token ttl %s", ctx.TokenTTL())
	}

	if ctx.UserStore() == nil || ctx.RelyingPartyRegistry() == nil || ctx.TokenRegistry() == nil {
		return nil, errors.New("storage provider is mandatory")
	}

	if ctx.PseudonymDeriver() == nil {
		return nil, errors.New("pseudonym deriver is mandatory")
	}

	if ctx.KeyMaterial() == nil {
		return nil, errors.New("key material is mandatory")
	}

	if ctx.ClaimProjector() == nil {
		return nil, errors.New("claim projector is mandatory")
	}

	return &Issuer{
		issuerID:  ctx.IssuerID(),
		ttl:       ctx.TokenTTL(),
		now:       ctx.Clock(),
		users:     ctx.UserStore(),
		rps:       ctx.RelyingPartyRegistry(),
		tokens:    ctx.TokenRegistry(),
		deriver:   ctx.PseudonymDeriver(),
		projector: ctx.ClaimProjector(),
		keys:      ctx.KeyMaterial(),
	}, nil
}

// Issue issues an assertion about userID to rpID disclosing the recognized claims of requested.
func (i *Issuer) Issue(userID, rpID string, requested []string) (*Result, error) {
	u, err := i.users.Get(userID)
	if errors.Is(err, user.ErrNotFound) {
		return nil, ErrUnknownUser
	}

	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}

	rp, err := i.rps.Get(rpID)
	if errors.Is(err, relyingparty.ErrNotFound) {
		return nil, ErrUnknownRelyingParty
	}

	if err != nil {
		return nil, fmt.Errorf("resolve relying party: %w", err)
	}

	// JWT times have second precision; truncating keeps token and assertion expiry identical.
	issuedAt := i.now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(i.ttl)

	ppid := i.deriver.Derive(u.ID, rp.ID)
	claims := i.projector.Project(u.DateOfBirth, requested, issuedAt)

	assertion, err := i.sign(ppid, rp.ID, issuedAt, expiresAt, claims)
	if err != nil {
		return nil, err
	}

	tokenID, err := i.tokens.Create(u.ID, rp.ID, ppid, expiresAt)
	if err != nil {
		return nil, fmt.Errorf("register network token: %w", err)
	}

	logger.Debugf("issued assertion to rp %s for ppid %s (token %s)", rp.ID, ppid, tokenID)

	return &Result{
		PPID:      ppid,
		TokenID:   tokenID,
		Assertion: assertion,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
		Claims:    claims,
	}, nil
}

func (i *Issuer) sign(ppid, audience string, issuedAt, expiresAt time.Time, claims map[claim.Name]bool) (string, error) {
	attrs := make(map[string]bool, len(claims))
	for name, value := range claims {
		attrs[string(name)] = value
	}

	assertion, err := jwt.Signed(i.keys.Signer()).
		Claims(&jwt.Claims{
			Issuer:   i.issuerID,
			Subject:  ppid,
			Audience: jwt.Audience{audience},
			IssuedAt: jwt.NewNumericDate(issuedAt),
			Expiry:   jwt.NewNumericDate(expiresAt),
		}).
		Claims(map[string]interface{}{AttrsClaim: attrs}).
		CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("sign assertion: %w", err)
	}

	return assertion, nil
}
