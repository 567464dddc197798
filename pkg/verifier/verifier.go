/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package verifier checks assertions on behalf of a relying party.
//
// An assertion is valid when its signature verifies against the key named by its kid, its issuer and audience
// match exactly, and the current time lies within [iat, exp].
package verifier

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/go-jose/go-jose/v3/jwt"
)

// KeyResolver resolves a verification key by its key ID.
type KeyResolver interface {
	Resolve(kid string) (*jose.JSONWebKey, error)
}

// Result of a successful verification.
type Result struct {
	Valid     bool
	Subject   string
	Claims    map[string]bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type assertionClaims struct {
	jwt.Claims
	Attrs map[string]bool `json:"attrs"`
}

// Verifier verifies assertions.
type Verifier struct {
	resolver   KeyResolver
	now        func() time.Time
	leeway     time.Duration
	redact     bool
	algorithms map[jose.SignatureAlgorithm]struct{}
}

// Option configures the verifier.
type Option func(v *Verifier)

// WithClock sets the time source for the iat and exp checks.
func WithClock(now func() time.Time) Option {
	return func(v *Verifier) {
		v.now = now
	}
}

// WithLeeway tolerates clock skew of d on both time boundaries.
func WithLeeway(d time.Duration) Option {
	return func(v *Verifier) {
		v.leeway = d
	}
}

// WithRedactedErrors hides the failure reason from error messages. The reason stays available to errors.Is.
func WithRedactedErrors() Option {
	return func(v *Verifier) {
		v.redact = true
	}
}

// New returns a verifier resolving keys through resolver.
func New(resolver KeyResolver, opts ...Option) *Verifier {
	v := &Verifier{
		resolver: resolver,
		now:      time.Now,
		algorithms: map[jose.SignatureAlgorithm]struct{}{
			jose.RS256: {},
			jose.ES256: {},
		},
	}

	for _, opt := range opts {
		opt(v)
	}

	return v
}

// Verify checks assertion against the expected issuer and audience and returns the disclosed claims.
func (v *Verifier) Verify(assertion, expectedIssuer, expectedAudience string) (*Result, error) {
	if strings.Count(assertion, ".") != 2 { //nolint:gomnd
		return nil, v.fail(ErrMalformed, "not a compact JWS")
	}

	jws, err := jose.ParseSigned(assertion)
	if err != nil {
		return nil, v.fail(ErrMalformed, err.Error())
	}

	if len(jws.Signatures) != 1 {
		return nil, v.fail(ErrMalformed, "expected exactly one signature")
	}

	header := jws.Signatures[0].Protected

	if _, ok := v.algorithms[jose.SignatureAlgorithm(header.Algorithm)]; !ok {
		return nil, v.fail(ErrUnsupportedAlgorithm, header.Algorithm)
	}

	if header.KeyID == "" {
		return nil, v.fail(ErrMalformed, "missing kid")
	}

	key, err := v.resolver.Resolve(header.KeyID)
	if err != nil {
		return nil, v.fail(ErrUnknownKey, fmt.Sprintf("kid %s: %s", header.KeyID, err.Error()))
	}

	if key.Algorithm != "" && key.Algorithm != header.Algorithm {
		return nil, v.fail(ErrUnsupportedAlgorithm,
			fmt.Sprintf("key %s is for %s, assertion uses %s", header.KeyID, key.Algorithm, header.Algorithm))
	}

	payload, err := jws.Verify(key.Key)
	if err != nil {
		return nil, v.fail(ErrSignature, "")
	}

	var claims assertionClaims

	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, v.fail(ErrMalformed, "invalid claims: "+err.Error())
	}

	return v.validate(&claims, expectedIssuer, expectedAudience)
}

func (v *Verifier) validate(claims *assertionClaims, expectedIssuer, expectedAudience string) (*Result, error) {
	if claims.Issuer != expectedIssuer {
		return nil, v.fail(ErrIssuerMismatch, fmt.Sprintf("got %q", claims.Issuer))
	}

	if len(claims.Audience) != 1 || claims.Audience[0] != expectedAudience {
		return nil, v.fail(ErrAudienceMismatch, fmt.Sprintf("got %q", []string(claims.Audience)))
	}

	if claims.Subject == "" {
		return nil, v.fail(ErrMalformed, "missing sub")
	}

	if claims.IssuedAt == nil || claims.Expiry == nil {
		return nil, v.fail(ErrMalformed, "missing iat or exp")
	}

	now := v.now()
	issuedAt, expiresAt := claims.IssuedAt.Time(), claims.Expiry.Time()

	if now.Add(v.leeway).Before(issuedAt) {
		return nil, v.fail(ErrNotYetValid, "iat is in the future")
	}

	if claims.NotBefore != nil && now.Add(v.leeway).Before(claims.NotBefore.Time()) {
		return nil, v.fail(ErrNotYetValid, "nbf is in the future")
	}

	if now.Add(-v.leeway).After(expiresAt) {
		return nil, v.fail(ErrExpired, "")
	}

	attrs := claims.Attrs
	if attrs == nil {
		attrs = map[string]bool{}
	}

	return &Result{
		Valid:     true,
		Subject:   claims.Subject,
		Claims:    attrs,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func (v *Verifier) fail(reason error, detail string) error {
	return &Error{Reason: reason, Detail: detail, redacted: v.redact}
}

// IsVerificationError reports whether err is a verification failure.
func IsVerificationError(err error) bool {
	var e *Error

	return errors.As(err, &e)
}
