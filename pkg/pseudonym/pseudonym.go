/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package pseudonym derives pairwise pseudonymous identifiers (PPIDs).
//
// A PPID is stable for a (user, relying party) pair and cannot be linked across relying parties
// without the issuer secret.
package pseudonym

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
)

const separator = ":"

// ErrEmptySecret is returned when a Deriver is created without a secret.
var ErrEmptySecret = errors.New("pseudonym secret is empty")

// Deriver computes PPIDs as base64url(HMAC-SHA-256(secret, userID ":" rpID)) without padding.
type Deriver struct {
	secret []byte
}

// New returns a Deriver keyed with secret.
func New(secret []byte) (*Deriver, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}

	key := make([]byte, len(secret))
	copy(key, secret)

	return &Deriver{secret: key}, nil
}

// Derive returns the PPID of userID at rpID. The result is 43 characters long.
func (d *Deriver) Derive(userID, rpID string) string {
	mac := hmac.New(sha256.New, d.secret)
	mac.Write([]byte(userID + separator + rpID)) //nolint:errcheck

	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}
