/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package jwks

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T, kid string) (*ecdsa.PrivateKey, jose.JSONWebKey) {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	return priv, jose.JSONWebKey{Key: priv.Public(), KeyID: kid, Algorithm: string(jose.ES256), Use: "sig"}
}

func TestStaticResolver(t *testing.T) {
	priv, current := newKey(t, "cur00001")
	_, previous := newKey(t, "old00001")
	_, encryption := newKey(t, "enc00001")
	encryption.Use = "enc"

	r := NewStaticResolver(jose.JSONWebKeySet{Keys: []jose.JSONWebKey{
		current,
		previous,
		encryption,
		{Key: priv, KeyID: "private1"},
		{Key: previous.Key},
	}})

	t.Run("test resolve - multiple live keys", func(t *testing.T) {
		key, err := r.Resolve("cur00001")
		require.NoError(t, err)
		require.Equal(t, "cur00001", key.KeyID)

		key, err = r.Resolve("old00001")
		require.NoError(t, err)
		require.Equal(t, "old00001", key.KeyID)
	})

	t.Run("test resolve - unusable keys are skipped", func(t *testing.T) {
		for _, kid := range []string{"enc00001", "private1", "", "missing1"} {
			_, err := r.Resolve(kid)
			require.ErrorIs(t, err, ErrKeyNotFound)
		}
	})
}
