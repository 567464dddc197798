/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package user

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/spi/storage"

	"github.com/agevault/agevault/pkg/doc/claim"
)

const (
	// NameSpace for user store.
	NameSpace = "agevault_user"

	idPrefix = "usr_"
)

var logger = log.New("agevault/store/user")

var (
	// ErrNotFound is returned when no user is enrolled under an ID.
	ErrNotFound = errors.New("user not found")
	// ErrInvalidDateOfBirth is returned when enrollment is given a malformed or future date of birth.
	ErrInvalidDateOfBirth = errors.New("invalid date of birth")
)

// User is an enrolled holder.
type User struct {
	ID          string    `json:"user_id"`
	DateOfBirth time.Time `json:"date_of_birth"`
}

// Store keeps enrolled users.
type Store struct {
	store storage.Store
	now   func() time.Time
}

type provider interface {
	StorageProvider() storage.Provider
}

// Option configures the user store.
type Option func(s *Store)

// WithClock sets the time source used to reject future dates of birth.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New returns a new user store.
func New(ctx provider, opts ...Option) (*Store, error) {
	store, err := ctx.StorageProvider().OpenStore(NameSpace)
	if err != nil {
		return nil, fmt.Errorf("failed to open user store: %w", err)
	}

	s := &Store{store: store, now: time.Now}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Enroll creates a user with the given YYYY-MM-DD date of birth.
func (s *Store) Enroll(dob string) (*User, error) {
	dateOfBirth, err := claim.ParseDate(dob)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDateOfBirth, err.Error())
	}

	if dateOfBirth.After(s.now().UTC()) {
		return nil, fmt.Errorf("%w: date is in the future", ErrInvalidDateOfBirth)
	}

	u := &User{ID: idPrefix + uuid.New().String(), DateOfBirth: dateOfBirth}

	userBytes, err := json.Marshal(u)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal user: %w", err)
	}

	if err := s.store.Put(u.ID, userBytes); err != nil {
		return nil, fmt.Errorf("failed to put user: %w", err)
	}

	logger.Debugf("enrolled user %s", u.ID)

	return u, nil
}

// Get returns the user enrolled under id.
func (s *Store) Get(id string) (*User, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	userBytes, err := s.store.Get(id)
	if errors.Is(err, storage.ErrDataNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	var u User

	if err := json.Unmarshal(userBytes, &u); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user: %w", err)
	}

	return &u, nil
}
