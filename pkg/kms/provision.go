/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package kms

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-jose/go-jose/v3"
	"github.com/pkg/errors"

	"github.com/agevault/agevault/pkg/internal/randutil"
)

const (
	// PrivateKeyFile is the name of the PKCS#8 PEM file holding the signing key.
	PrivateKeyFile = "private.pem"
	// KeySetFile is the name of the published JWKS document.
	KeySetFile = "jwks.json"

	keyIDLength = 8
	rsaKeyBits  = 2048

	pemTypePKCS8 = "PRIVATE KEY"
	pemTypePKCS1 = "RSA PRIVATE KEY"
)

// GenerateKey creates a new private key for the given algorithm.
func GenerateKey(alg jose.SignatureAlgorithm) (crypto.Signer, error) {
	switch alg {
	case jose.RS256:
		key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
		if err != nil {
			return nil, errors.Wrap(err, "generate rsa key")
		}

		return key, nil
	case jose.ES256:
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, errors.Wrap(err, "generate ecdsa key")
		}

		return key, nil
	default:
		return nil, fmt.Errorf("unsupported signature algorithm %s", alg)
	}
}

// Generate creates KeyMaterial with a fresh key whose key set holds only that key.
func Generate(alg jose.SignatureAlgorithm) (*KeyMaterial, error) {
	privateKey, kid, err := generateWithID(alg)
	if err != nil {
		return nil, err
	}

	return New(privateKey, jose.JSONWebKeySet{Keys: []jose.JSONWebKey{publicJWK(privateKey, kid, alg)}})
}

// Save writes the private key and the key set to dir, creating dir if needed.
func (k *KeyMaterial) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return errors.Wrapf(err, "create keys dir %s", dir)
	}

	der, err := x509.MarshalPKCS8PrivateKey(k.privateKey)
	if err != nil {
		return errors.Wrap(err, "marshal private key")
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: pemTypePKCS8, Bytes: der})

	if err = os.WriteFile(filepath.Join(dir, PrivateKeyFile), keyPEM, 0o600); err != nil {
		return errors.Wrap(err, "write private key")
	}

	keySet, err := json.MarshalIndent(k.PublicKeySet(), "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal key set")
	}

	if err = os.WriteFile(filepath.Join(dir, KeySetFile), keySet, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, "write key set")
	}

	return nil
}

// Load reads KeyMaterial previously written by Save.
func Load(dir string) (*KeyMaterial, error) {
	privateKey, err := readPrivateKey(filepath.Join(dir, PrivateKeyFile))
	if err != nil {
		return nil, err
	}

	keySet, err := readKeySet(filepath.Join(dir, KeySetFile))
	if err != nil {
		return nil, err
	}

	km, err := New(privateKey, keySet)
	if err != nil {
		return nil, errors.Wrapf(err, "load key material from %s", dir)
	}

	return km, nil
}

// Rotate generates a new signing key in dir. The new key is published first in the key set and the previous
// public keys stay published so that assertions issued before the rotation still verify.
func Rotate(dir string, alg jose.SignatureAlgorithm) (*KeyMaterial, error) {
	current, err := Load(dir)
	if err != nil {
		return nil, err
	}

	privateKey, kid, err := generateWithID(alg)
	if err != nil {
		return nil, err
	}

	keys := []jose.JSONWebKey{publicJWK(privateKey, kid, alg)}
	keys = append(keys, current.PublicKeySet().Keys...)

	km, err := New(privateKey, jose.JSONWebKeySet{Keys: keys})
	if err != nil {
		return nil, err
	}

	if err = km.Save(dir); err != nil {
		return nil, err
	}

	return km, nil
}

// Retire removes a public key from the key set in dir. The current signing key cannot be retired.
func Retire(dir, kid string) (*KeyMaterial, error) {
	current, err := Load(dir)
	if err != nil {
		return nil, err
	}

	if kid == current.KeyID() {
		return nil, fmt.Errorf("key %s is the current signing key", kid)
	}

	published := current.PublicKeySet().Keys
	keys := make([]jose.JSONWebKey, 0, len(published))

	for _, key := range published {
		if key.KeyID != kid {
			keys = append(keys, key)
		}
	}

	if len(keys) == len(published) {
		return nil, fmt.Errorf("key %s not found in key set", kid)
	}

	km, err := New(current.privateKey, jose.JSONWebKeySet{Keys: keys})
	if err != nil {
		return nil, err
	}

	if err = km.Save(dir); err != nil {
		return nil, err
	}

	return km, nil
}

func generateWithID(alg jose.SignatureAlgorithm) (crypto.Signer, string, error) {
	privateKey, err := GenerateKey(alg)
	if err != nil {
		return nil, "", err
	}

	kid, err := randutil.AlphaNumeric(keyIDLength)
	if err != nil {
		return nil, "", errors.Wrap(err, "generate key id")
	}

	return privateKey, kid, nil
}

func publicJWK(privateKey crypto.Signer, kid string, alg jose.SignatureAlgorithm) jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       privateKey.Public(),
		KeyID:     kid,
		Algorithm: string(alg),
		Use:       UseSignature,
	}
}

func readPrivateKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, errors.Wrap(err, "read private key")
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	var key interface{}

	switch block.Type {
	case pemTypePKCS8:
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
	case pemTypePKCS1:
		key, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	default:
		return nil, fmt.Errorf("unsupported PEM block type %s", block.Type)
	}

	if err != nil {
		return nil, errors.Wrap(err, "parse private key")
	}

	signer, ok := key.(crypto.Signer)
	if !ok {
		return nil, fmt.Errorf("private key type %T cannot sign", key)
	}

	return signer, nil
}

func readKeySet(path string) (jose.JSONWebKeySet, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return jose.JSONWebKeySet{}, errors.Wrap(err, "read key set")
	}

	var keySet jose.JSONWebKeySet

	if err = json.Unmarshal(data, &keySet); err != nil {
		return jose.JSONWebKeySet{}, errors.Wrap(err, "parse key set")
	}

	return keySet, nil
}
