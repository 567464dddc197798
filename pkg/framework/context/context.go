/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package context creates a framework Provider context holding the issuer and verifier services and provides
// simple accessor methods to those same services.
package context

import (
	"errors"
	"fmt"
	"time"

	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/agevault/agevault/pkg/doc/claim"
	"github.com/agevault/agevault/pkg/doc/jose/jwks"
	"github.com/agevault/agevault/pkg/kms"
	"github.com/agevault/agevault/pkg/pseudonym"
	"github.com/agevault/agevault/pkg/store/relyingparty"
	"github.com/agevault/agevault/pkg/store/user"
	"github.com/agevault/agevault/pkg/token"
	"github.com/agevault/agevault/pkg/verifier"
)

const (
	// DefaultTokenTTL is the lifetime of assertions and network tokens.
	DefaultTokenTTL = 1800 * time.Second
)

// Provider supplies the framework configuration to client objects.
type Provider struct {
	storeProvider    storage.Provider
	keyMaterial      *kms.KeyMaterial
	keyResolver      verifier.KeyResolver
	pseudonymDeriver *pseudonym.Deriver
	claimProjector   *claim.Projector
	relyingParties   []relyingparty.RelyingParty
	issuerID         string
	tokenTTL         time.Duration
	clockSkew        time.Duration
	redactErrors     bool
	clock            func() time.Time

	userStore     *user.Store
	rpRegistry    *relyingparty.Registry
	tokenRegistry *token.Registry
}

// ProviderOption configures the framework.
type ProviderOption func(opts *Provider) error

// New instantiates a new context provider.
func New(opts ...ProviderOption) (*Provider, error) {
	ctxProvider := Provider{
		tokenTTL:       DefaultTokenTTL,
		clock:          time.Now,
		claimProjector: claim.NewProjector(),
	}

	for _, opt := range opts {
		err := opt(&ctxProvider)
		if err != nil {
			return nil, fmt.Errorf("option failed: %w", err)
		}
	}

	if ctxProvider.keyResolver == nil && ctxProvider.keyMaterial != nil {
		ctxProvider.keyResolver = jwks.NewStaticResolver(ctxProvider.keyMaterial.PublicKeySet())
	}

	if ctxProvider.storeProvider != nil {
		if err := ctxProvider.openStores(); err != nil {
			return nil, err
		}
	}

	return &ctxProvider, nil
}

func (p *Provider) openStores() error {
	var err error

	p.userStore, err = user.New(p, user.WithClock(p.clock))
	if err != nil {
		return fmt.Errorf("initialize context user store: %w", err)
	}

	p.rpRegistry, err = relyingparty.New(p, p.relyingParties...)
	if err != nil {
		return fmt.Errorf("initialize context relying party registry: %w", err)
	}

	p.tokenRegistry, err = token.New(p, token.WithClock(p.clock))
	if err != nil {
		return fmt.Errorf("initialize context token registry: %w", err)
	}

	return nil
}

// StorageProvider return a storage provider.
func (p *Provider) StorageProvider() storage.Provider {
	return p.storeProvider
}

// KeyMaterial returns the assertion signing key material.
func (p *Provider) KeyMaterial() *kms.KeyMaterial {
	return p.keyMaterial
}

// KeyResolver returns the resolver of assertion verification keys.
func (p *Provider) KeyResolver() verifier.KeyResolver {
	return p.keyResolver
}

// PseudonymDeriver returns the PPID deriver.
func (p *Provider) PseudonymDeriver() *pseudonym.Deriver {
	return p.pseudonymDeriver
}

// ClaimProjector returns the claim projector.
func (p *Provider) ClaimProjector() *claim.Projector {
	return p.claimProjector
}

// UserStore returns the enrolled user store.
func (p *Provider) UserStore() *user.Store {
	return p.userStore
}

// RelyingPartyRegistry returns the relying party registry.
func (p *Provider) RelyingPartyRegistry() *relyingparty.Registry {
	return p.rpRegistry
}

// TokenRegistry returns the network token registry.
func (p *Provider) TokenRegistry() *token.Registry {
	return p.tokenRegistry
}

// IssuerID returns the issuer identity stamped into assertions.
func (p *Provider) IssuerID() string {
	return p.issuerID
}

// TokenTTL returns the lifetime of assertions and network tokens.
func (p *Provider) TokenTTL() time.Duration {
	return p.tokenTTL
}

// ClockSkew returns the tolerance applied to assertion time checks.
func (p *Provider) ClockSkew() time.Duration {
	return p.clockSkew
}

// RedactErrors reports whether verification failures hide their reason.
func (p *Provider) RedactErrors() bool {
	return p.redactErrors
}

// Clock returns the time source.
func (p *Provider) Clock() func() time.Time {
	return p.clock
}

// WithStorageProvider injects a storage provider into the context.
func WithStorageProvider(s storage.Provider) ProviderOption {
	return func(opts *Provider) error {
		opts.storeProvider = s
		return nil
	}
}

// WithKeyMaterial injects the assertion signing key material into the context.
func WithKeyMaterial(km *kms.KeyMaterial) ProviderOption {
	return func(opts *Provider) error {
		opts.keyMaterial = km
		return nil
	}
}

// WithKeyResolver injects a verification key resolver into the context.
// Without it keys are resolved from the key material's public key set.
func WithKeyResolver(r verifier.KeyResolver) ProviderOption {
	return func(opts *Provider) error {
		opts.keyResolver = r
		return nil
	}
}

// WithHMACSecret injects the secret PPIDs are derived with.
func WithHMACSecret(secret []byte) ProviderOption {
	return func(opts *Provider) error {
		d, err := pseudonym.New(secret)
		if err != nil {
			return err
		}

		opts.pseudonymDeriver = d

		return nil
	}
}

// WithClaimProjector injects a claim projector into the context.
func WithClaimProjector(p *claim.Projector) ProviderOption {
	return func(opts *Provider) error {
		opts.claimProjector = p
		return nil
	}
}

// WithRelyingParties preloads the relying party registry.
func WithRelyingParties(rps ...relyingparty.RelyingParty) ProviderOption {
	return func(opts *Provider) error {
		opts.relyingParties = append(opts.relyingParties, rps...)
		return nil
	}
}

// WithIssuerID injects the issuer identity into the context.
func WithIssuerID(id string) ProviderOption {
	return func(opts *Provider) error {
		opts.issuerID = id
		return nil
	}
}

// WithTokenTTL sets the lifetime of assertions and network tokens.
func WithTokenTTL(ttl time.Duration) ProviderOption {
	return func(opts *Provider) error {
		if ttl <= 0 {
			return fmt.Errorf("invalid token ttl %s", ttl)
		}

		opts.tokenTTL = ttl

		return nil
	}
}

// WithClockSkew sets the tolerance applied to assertion time checks.
func WithClockSkew(d time.Duration) ProviderOption {
	return func(opts *Provider) error {
		if d < 0 {
			return errors.New("clock skew cannot be negative")
		}

		opts.clockSkew = d

		return nil
	}
}

// WithRedactedErrors hides the reason of verification failures from error messages.
func WithRedactedErrors() ProviderOption {
	return func(opts *Provider) error {
		opts.redactErrors = true
		return nil
	}
}

// WithClock injects the time source.
func WithClock(now func() time.Time) ProviderOption {
	return func(opts *Provider) error {
		if now == nil {
			return errors.New("clock is mandatory")
		}

		opts.clock = now

		return nil
	}
}
