/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package jwks resolves assertion verification keys by key ID from a JSON Web Key Set.
package jwks

import (
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v3"
)

// ErrKeyNotFound is returned when no key carries the requested key ID.
var ErrKeyNotFound = errors.New("key not found")

// StaticResolver resolves keys from a fixed key set.
type StaticResolver struct {
	keys map[string]jose.JSONWebKey
}

// NewStaticResolver returns a resolver over the usable signature keys of keySet.
func NewStaticResolver(keySet jose.JSONWebKeySet) *StaticResolver {
	return &StaticResolver{keys: index(keySet)}
}

// Resolve returns the key with the given key ID.
func (r *StaticResolver) Resolve(kid string) (*jose.JSONWebKey, error) {
	key, ok := r.keys[kid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, kid)
	}

	return &key, nil
}

func index(keySet jose.JSONWebKeySet) map[string]jose.JSONWebKey {
	keys := make(map[string]jose.JSONWebKey, len(keySet.Keys))

	for i := range keySet.Keys {
		key := keySet.Keys[i]

		if !usable(&key) {
			logger.Debugf("skipping key set entry %d (kid %q)", i, key.KeyID)

			continue
		}

		keys[key.KeyID] = key
	}

	return keys
}

func usable(key *jose.JSONWebKey) bool {
	return key.KeyID != "" && key.IsPublic() && (key.Use == "" || key.Use == "sig")
}
