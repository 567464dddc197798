/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package kms holds the issuer's assertion signing key together with the public key set that verifiers use
// to check assertion signatures.
//
// The signing key is one entry of the published key set. During a rotation the set carries the new signing key
// next to keys that still verify assertions issued before the rotation.
package kms

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v3"
)

const (
	// UseSignature is the JWK "use" value of every published key.
	UseSignature = "sig"

	minRSAKeyBits = 2048
)

// KeyMaterial signs assertions with a private key and publishes the matching verification key set.
// It is immutable after construction and safe for concurrent use.
type KeyMaterial struct {
	privateKey crypto.Signer
	keyID      string
	alg        jose.SignatureAlgorithm
	keySet     jose.JSONWebKeySet
	signer     jose.Signer
}

// New creates KeyMaterial from a private key and the published key set.
// The signing key ID is taken from the key set entry whose public key matches privateKey.
func New(privateKey crypto.Signer, keySet jose.JSONWebKeySet) (*KeyMaterial, error) {
	if privateKey == nil {
		return nil, errors.New("private key is mandatory")
	}

	if len(keySet.Keys) == 0 {
		return nil, errors.New("key set is empty")
	}

	published := make([]jose.JSONWebKey, 0, len(keySet.Keys))
	seen := make(map[string]struct{}, len(keySet.Keys))

	km := &KeyMaterial{privateKey: privateKey}

	for i := range keySet.Keys {
		key, err := normalizePublicKey(keySet.Keys[i])
		if err != nil {
			return nil, fmt.Errorf("key set entry %d: %w", i, err)
		}

		if _, ok := seen[key.KeyID]; ok {
			return nil, fmt.Errorf("duplicate key id %s in key set", key.KeyID)
		}

		seen[key.KeyID] = struct{}{}

		if km.keyID == "" && publicKeysEqual(privateKey.Public(), key.Key) {
			km.keyID = key.KeyID
			km.alg = jose.SignatureAlgorithm(key.Algorithm)
		}

		published = append(published, key)
	}

	if km.keyID == "" {
		return nil, errors.New("no key set entry matches the private key")
	}

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: km.alg,
		Key:       jose.JSONWebKey{Key: privateKey, KeyID: km.keyID, Algorithm: string(km.alg)},
	}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}

	km.signer = signer
	km.keySet = jose.JSONWebKeySet{Keys: published}

	return km, nil
}

// KeyID returns the ID of the current signing key.
func (k *KeyMaterial) KeyID() string {
	return k.keyID
}

// Algorithm returns the JWS algorithm of the current signing key.
func (k *KeyMaterial) Algorithm() jose.SignatureAlgorithm {
	return k.alg
}

// Signer returns a JWS signer that stamps kid, alg and typ=JWT into the protected header.
func (k *KeyMaterial) Signer() jose.Signer {
	return k.signer
}

// Sign signs payload and returns the compact JWS serialization.
func (k *KeyMaterial) Sign(payload []byte) (string, error) {
	jws, err := k.signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}

	return jws.CompactSerialize()
}

// PublicKeySet returns the verification key set. Only public key material is included.
func (k *KeyMaterial) PublicKeySet() jose.JSONWebKeySet {
	keys := make([]jose.JSONWebKey, len(k.keySet.Keys))
	copy(keys, k.keySet.Keys)

	return jose.JSONWebKeySet{Keys: keys}
}

func normalizePublicKey(key jose.JSONWebKey) (jose.JSONWebKey, error) {
	if key.KeyID == "" {
		return jose.JSONWebKey{}, errors.New("key id is mandatory")
	}

	if !key.IsPublic() {
		return jose.JSONWebKey{}, fmt.Errorf("key %s is not a public key", key.KeyID)
	}

	if key.Use != "" && key.Use != UseSignature {
		return jose.JSONWebKey{}, fmt.Errorf("key %s has use %q, expected %q", key.KeyID, key.Use, UseSignature)
	}

	alg, err := AlgorithmFor(key.Key)
	if err != nil {
		return jose.JSONWebKey{}, fmt.Errorf("key %s: %w", key.KeyID, err)
	}

	if key.Algorithm != "" && key.Algorithm != string(alg) {
		return jose.JSONWebKey{}, fmt.Errorf("key %s: algorithm %s does not match key type", key.KeyID, key.Algorithm)
	}

	key.Algorithm = string(alg)
	key.Use = UseSignature

	return key, nil
}

// AlgorithmFor returns the signature algorithm used with the given public key.
// RSA keys of at least 2048 bits sign with RS256 and P-256 keys sign with ES256.
func AlgorithmFor(pub interface{}) (jose.SignatureAlgorithm, error) {
	switch k := pub.(type) {
	case *rsa.PublicKey:
		if k.N.BitLen() < minRSAKeyBits {
			return "", fmt.Errorf("rsa key size %d is below %d bits", k.N.BitLen(), minRSAKeyBits)
		}

		return jose.RS256, nil
	case *ecdsa.PublicKey:
		if k.Curve != elliptic.P256() {
			return "", fmt.Errorf("unsupported curve %s", k.Curve.Params().Name)
		}

		return jose.ES256, nil
	default:
		return "", fmt.Errorf("unsupported key type %T", pub)
	}
}

func publicKeysEqual(a crypto.PublicKey, b interface{}) bool {
	eq, ok := a.(interface{ Equal(x crypto.PublicKey) bool })
	if !ok {
		return false
	}

	return eq.Equal(b)
}
