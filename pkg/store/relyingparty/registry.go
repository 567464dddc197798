/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package relyingparty keeps the relying parties an issuer may issue assertions to.
package relyingparty

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hyperledger/aries-framework-go/spi/storage"
	"gopkg.in/yaml.v3"
)

// NameSpace for relying party store.
const NameSpace = "agevault_relyingparty"

// ErrNotFound is returned when no relying party is registered under an ID.
var ErrNotFound = errors.New("relying party not found")

// RelyingParty is a registered assertion audience.
type RelyingParty struct {
	ID          string `json:"rp_id" yaml:"rp_id"`
	DisplayName string `json:"display_name" yaml:"display_name"`
}

// Default is registered when no relying parties are configured.
var Default = RelyingParty{ID: "com.example.shop", DisplayName: "Example Shop"} //nolint:gochecknoglobals

// Registry looks up relying parties by ID.
type Registry struct {
	store storage.Store
}

type provider interface {
	StorageProvider() storage.Provider
}

// New returns a registry preloaded with rps.
func New(ctx provider, rps ...RelyingParty) (*Registry, error) {
	store, err := ctx.StorageProvider().OpenStore(NameSpace)
	if err != nil {
		return nil, fmt.Errorf("failed to open relying party store: %w", err)
	}

	r := &Registry{store: store}

	for _, rp := range rps {
		if err := r.Register(rp); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// Register adds or replaces a relying party.
func (r *Registry) Register(rp RelyingParty) error {
	if rp.ID == "" {
		return errors.New("relying party id is mandatory")
	}

	rpBytes, err := json.Marshal(rp)
	if err != nil {
		return fmt.Errorf("failed to marshal relying party: %w", err)
	}

	if err := r.store.Put(rp.ID, rpBytes); err != nil {
		return fmt.Errorf("failed to put relying party: %w", err)
	}

	return nil
}

// Get returns the relying party registered under id.
func (r *Registry) Get(id string) (*RelyingParty, error) {
	if id == "" {
		return nil, ErrNotFound
	}

	rpBytes, err := r.store.Get(id)
	if errors.Is(err, storage.ErrDataNotFound) {
		return nil, ErrNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get relying party: %w", err)
	}

	var rp RelyingParty

	if err := json.Unmarshal(rpBytes, &rp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal relying party: %w", err)
	}

	return &rp, nil
}

type registryFile struct {
	RelyingParties []RelyingParty `yaml:"relying_parties"`
}

// LoadFile reads relying parties from a YAML file of the form:
//
//	relying_parties:
//	  - rp_id: com.example.shop
//	    display_name: Example Shop
func LoadFile(path string) ([]RelyingParty, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read relying parties file: %w", err)
	}

	var file registryFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse relying parties file: %w", err)
	}

	seen := make(map[string]struct{}, len(file.RelyingParties))

	for i, rp := range file.RelyingParties {
		if rp.ID == "" {
			return nil, fmt.Errorf("relying party %d: rp_id is required", i)
		}

		if _, ok := seen[rp.ID]; ok {
			return nil, fmt.Errorf("relying party %q is defined more than once", rp.ID)
		}

		seen[rp.ID] = struct{}{}
	}

	return file.RelyingParties, nil
}
