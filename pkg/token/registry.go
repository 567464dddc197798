/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package token manages opaque network tokens that let a relying party check server-side whether an issued
// assertion is still live.
//
// A token is active until its expiry passes and is removed when revoked. Revoking a token does not invalidate
// the signature of the assertion issued with it.
package token

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/agevault/agevault/pkg/internal/randutil"
)

const (
	// NameSpace for token store.
	NameSpace = "agevault_token"

	// IDLength is the number of [a-z0-9] characters of a token ID.
	IDLength = 24

	maxCreateAttempts = 5
)

var logger = log.New("agevault/token")

// Record is a registered network token.
type Record struct {
	ID        string    `json:"token_id"`
	UserID    string    `json:"user_id"`
	RPID      string    `json:"rp_id"`
	PPID      string    `json:"ppid"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Introspection is the state of a token. Only Active is set for unknown tokens.
type Introspection struct {
	Active    bool
	PPID      string
	RPID      string
	ExpiresAt *time.Time
}

// Registry issues, introspects and revokes network tokens.
type Registry struct {
	store storage.Store
	mu    sync.Mutex
	now   func() time.Time
	newID func() (string, error)
}

type provider interface {
	StorageProvider() storage.Provider
}

// Option configures the registry.
type Option func(r *Registry)

// WithClock sets the time source used to decide whether a token is active.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// New returns a token registry.
func New(ctx provider, opts ...Option) (*Registry, error) {
	store, err := ctx.StorageProvider().OpenStore(NameSpace)
	if err != nil {
		return nil, fmt.Errorf("failed to open token store: %w", err)
	}

	r := &Registry{
		store: store,
		now:   time.Now,
		newID: func() (string, error) { return randutil.AlphaNumeric(IDLength) },
	}

	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// Create registers a token for the (user, relying party) pair and returns its ID.
func (r *Registry) Create(userID, rpID, ppid string, expiresAt time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		id, err := r.newID()
		if err != nil {
			return "", fmt.Errorf("failed to generate token id: %w", err)
		}

		_, err = r.store.Get(id)
		if err == nil {
			logger.Warnf("token id collision, regenerating")

			continue
		}

		if !errors.Is(err, storage.ErrDataNotFound) {
			return "", fmt.Errorf("failed to check token id: %w", err)
		}

		recordBytes, err := json.Marshal(&Record{
			ID:        id,
			UserID:    userID,
			RPID:      rpID,
			PPID:      ppid,
			ExpiresAt: expiresAt.UTC(),
		})
		if err != nil {
			return "", fmt.Errorf("failed to marshal token: %w", err)
		}

		if err := r.store.Put(id, recordBytes); err != nil {
			return "", fmt.Errorf("failed to put token: %w", err)
		}

		return id, nil
	}

	return "", fmt.Errorf("failed to generate unique token id after %d attempts", maxCreateAttempts)
}

// Introspect reports whether tokenID is active. Unknown and empty IDs are inactive.
func (r *Registry) Introspect(tokenID string) (*Introspection, error) {
	record, err := r.get(tokenID)
	if err != nil {
		return nil, err
	}

	if record == nil {
		return &Introspection{Active: false}, nil
	}

	expiresAt := record.ExpiresAt

	return &Introspection{
		Active:    expiresAt.After(r.now()),
		PPID:      record.PPID,
		RPID:      record.RPID,
		ExpiresAt: &expiresAt,
	}, nil
}

// Revoke removes tokenID. Revoking an unknown or already revoked token succeeds.
func (r *Registry) Revoke(tokenID string) error {
	if tokenID == "" {
		return nil
	}

	if err := r.store.Delete(tokenID); err != nil && !errors.Is(err, storage.ErrDataNotFound) {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	return nil
}

func (r *Registry) get(tokenID string) (*Record, error) {
	if tokenID == "" {
		return nil, nil
	}

	recordBytes, err := r.store.Get(tokenID)
	if errors.Is(err, storage.ErrDataNotFound) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}

	var record Record

	if err := json.Unmarshal(recordBytes, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}

	return &record, nil
}
