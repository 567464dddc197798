/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kms

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-jose/go-jose/v3"
	"github.com/stretchr/testify/require"
)

func TestGenerateKey(t *testing.T) {
	t.Run("test generate key - unsupported algorithm", func(t *testing.T) {
		_, err := GenerateKey(jose.HS256)
		require.EqualError(t, err, "unsupported signature algorithm HS256")

		_, err = Generate(jose.PS512)
		require.Error(t, err)
	})
}

func TestSaveLoad(t *testing.T) {
	t.Run("test save and load - success", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "keys")

		km, err := Generate(jose.ES256)
		require.NoError(t, err)
		require.NoError(t, km.Save(dir))

		info, err := os.Stat(filepath.Join(dir, PrivateKeyFile))
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

		loaded, err := Load(dir)
		require.NoError(t, err)
		require.Equal(t, km.KeyID(), loaded.KeyID())
		require.Equal(t, km.Algorithm(), loaded.Algorithm())

		compact, err := loaded.Sign([]byte("payload"))
		require.NoError(t, err)

		jws, err := jose.ParseSigned(compact)
		require.NoError(t, err)

		_, err = jws.Verify(km.PublicKeySet().Keys[0].Key)
		require.NoError(t, err)
	})

	t.Run("test load - pkcs1 rsa key", func(t *testing.T) {
		dir := t.TempDir()

		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		block := pem.EncodeToMemory(&pem.Block{Type: pemTypePKCS1, Bytes: x509.MarshalPKCS1PrivateKey(key)})
		require.NoError(t, os.WriteFile(filepath.Join(dir, PrivateKeyFile), block, 0o600))

		set := `{"keys":[` + string(mustMarshalJWK(t, publicJWK(key, "abc12345", jose.RS256))) + `]}`
		require.NoError(t, os.WriteFile(filepath.Join(dir, KeySetFile), []byte(set), 0o600))

		km, err := Load(dir)
		require.NoError(t, err)
		require.Equal(t, "abc12345", km.KeyID())
		require.Equal(t, jose.RS256, km.Algorithm())
	})

	t.Run("test load - missing files", func(t *testing.T) {
		_, err := Load(t.TempDir())
		require.Error(t, err)
		require.Contains(t, err.Error(), "read private key")
	})

	t.Run("test load - invalid pem", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, PrivateKeyFile), []byte("not a pem"), 0o600))

		_, err := Load(dir)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no PEM block")
	})

	t.Run("test load - unsupported pem type", func(t *testing.T) {
		dir := t.TempDir()
		block := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: []byte{1}})
		require.NoError(t, os.WriteFile(filepath.Join(dir, PrivateKeyFile), block, 0o600))

		_, err := Load(dir)
		require.EqualError(t, err, "unsupported PEM block type CERTIFICATE")
	})

	t.Run("test load - invalid key set", func(t *testing.T) {
		dir := t.TempDir()

		km, err := Generate(jose.ES256)
		require.NoError(t, err)
		require.NoError(t, km.Save(dir))
		require.NoError(t, os.WriteFile(filepath.Join(dir, KeySetFile), []byte("{"), 0o600))

		_, err = Load(dir)
		require.Error(t, err)
		require.Contains(t, err.Error(), "parse key set")
	})

	t.Run("test load - key set does not match private key", func(t *testing.T) {
		dir := t.TempDir()

		km, err := Generate(jose.ES256)
		require.NoError(t, err)
		require.NoError(t, km.Save(dir))

		other, err := Generate(jose.ES256)
		require.NoError(t, err)

		raw := mustMarshalJWK(t, other.PublicKeySet().Keys[0])
		require.NoError(t, os.WriteFile(filepath.Join(dir, KeySetFile), []byte(`{"keys":[`+string(raw)+`]}`), 0o600))

		_, err = Load(dir)
		require.Error(t, err)
		require.Contains(t, err.Error(), "no key set entry matches the private key")
	})
}

func TestRotateRetire(t *testing.T) {
	dir := t.TempDir()

	first, err := Generate(jose.RS256)
	require.NoError(t, err)
	require.NoError(t, first.Save(dir))

	oldAssertion, err := first.Sign([]byte("issued before rotation"))
	require.NoError(t, err)

	rotated, err := Rotate(dir, jose.ES256)
	require.NoError(t, err)
	require.NotEqual(t, first.KeyID(), rotated.KeyID())
	require.Equal(t, jose.ES256, rotated.Algorithm())

	keys := rotated.PublicKeySet().Keys
	require.Len(t, keys, 2)
	require.Equal(t, rotated.KeyID(), keys[0].KeyID)
	require.Equal(t, first.KeyID(), keys[1].KeyID)

	t.Run("test rotate - old assertion still verifies", func(t *testing.T) {
		jws, err := jose.ParseSigned(oldAssertion)
		require.NoError(t, err)

		set := rotated.PublicKeySet()
		old := set.Key(first.KeyID())
		require.Len(t, old, 1)

		_, err = jws.Verify(old[0].Key)
		require.NoError(t, err)
	})

	t.Run("test rotate - persisted", func(t *testing.T) {
		loaded, err := Load(dir)
		require.NoError(t, err)
		require.Equal(t, rotated.KeyID(), loaded.KeyID())
		require.Len(t, loaded.PublicKeySet().Keys, 2)
	})

	t.Run("test retire - signing key", func(t *testing.T) {
		_, err := Retire(dir, rotated.KeyID())
		require.EqualError(t, err, "key "+rotated.KeyID()+" is the current signing key")
	})

	t.Run("test retire - unknown key", func(t *testing.T) {
		_, err := Retire(dir, "zzzzzzzz")
		require.EqualError(t, err, "key zzzzzzzz not found in key set")
	})

	t.Run("test retire - success", func(t *testing.T) {
		km, err := Retire(dir, first.KeyID())
		require.NoError(t, err)
		require.Len(t, km.PublicKeySet().Keys, 1)

		loaded, err := Load(dir)
		require.NoError(t, err)
		set := loaded.PublicKeySet()
		require.Empty(t, set.Key(first.KeyID()))
	})

	t.Run("test rotate - missing dir", func(t *testing.T) {
		_, err := Rotate(filepath.Join(dir, "missing"), jose.RS256)
		require.Error(t, err)
	})
}

func mustMarshalJWK(t *testing.T, key jose.JSONWebKey) []byte {
	t.Helper()

	raw, err := key.MarshalJSON()
	require.NoError(t, err)

	return raw
}
