/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package relyingparty

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	mockstore "github.com/hyperledger/aries-framework-go/component/storageutil/mock/storage"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/stretchr/testify/require"
)

type mockProvider struct {
	storageProvider storage.Provider
}

func (p *mockProvider) StorageProvider() storage.Provider {
	return p.storageProvider
}

func TestNew(t *testing.T) {
	t.Run("test new - preloaded", func(t *testing.T) {
		r, err := New(&mockProvider{storageProvider: mem.NewProvider()}, Default)
		require.NoError(t, err)

		rp, err := r.Get(Default.ID)
		require.NoError(t, err)
		require.Equal(t, Default, *rp)
	})

	t.Run("test new - error from open store", func(t *testing.T) {
		_, err := New(&mockProvider{storageProvider: &mockstore.MockStoreProvider{
			ErrOpenStoreHandle: fmt.Errorf("failed to open store"),
		}})
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to open store")
	})

	t.Run("test new - invalid relying party", func(t *testing.T) {
		_, err := New(&mockProvider{storageProvider: mem.NewProvider()}, RelyingParty{DisplayName: "no id"})
		require.EqualError(t, err, "relying party id is mandatory")
	})

	t.Run("test new - error from store put", func(t *testing.T) {
		_, err := New(&mockProvider{storageProvider: mockstore.NewCustomMockStoreProvider(&mockstore.MockStore{
			Store:  make(map[string]mockstore.DBEntry),
			ErrPut: fmt.Errorf("error put"),
		})}, Default)
		require.Error(t, err)
		require.Contains(t, err.Error(), "error put")
	})
}

func TestRegistry_Get(t *testing.T) {
	t.Run("test get - unknown and empty id", func(t *testing.T) {
		r, err := New(&mockProvider{storageProvider: mem.NewProvider()}, Default)
		require.NoError(t, err)

		_, err = r.Get("com.unknown")
		require.ErrorIs(t, err, ErrNotFound)

		_, err = r.Get("")
		require.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("test get - error from store get", func(t *testing.T) {
		r, err := New(&mockProvider{storageProvider: mockstore.NewCustomMockStoreProvider(&mockstore.MockStore{
			Store:  make(map[string]mockstore.DBEntry),
			ErrGet: errors.New("error get"),
		})})
		require.NoError(t, err)

		_, err = r.Get(Default.ID)
		require.Error(t, err)
		require.NotErrorIs(t, err, ErrNotFound)
	})

	t.Run("test get - corrupt record", func(t *testing.T) {
		store := &mockstore.MockStore{Store: map[string]mockstore.DBEntry{"rp": {Value: []byte("[")}}}

		r, err := New(&mockProvider{storageProvider: mockstore.NewCustomMockStoreProvider(store)})
		require.NoError(t, err)

		_, err = r.Get("rp")
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to unmarshal relying party")
	})
}

func TestLoadFile(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()

		path := filepath.Join(t.TempDir(), "rps.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

		return path
	}

	t.Run("test load file - success", func(t *testing.T) {
		rps, err := LoadFile(write(t, `
relying_parties:
  - rp_id: com.example.shop
    display_name: Example Shop
  - rp_id: org.example.bar
    display_name: Example Bar
`))
		require.NoError(t, err)
		require.Equal(t, []RelyingParty{
			{ID: "com.example.shop", DisplayName: "Example Shop"},
			{ID: "org.example.bar", DisplayName: "Example Bar"},
		}, rps)
	})

	t.Run("test load file - missing file", func(t *testing.T) {
		_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to read relying parties file")
	})

	t.Run("test load file - invalid yaml", func(t *testing.T) {
		_, err := LoadFile(write(t, "relying_parties: [\n"))
		require.Error(t, err)
		require.Contains(t, err.Error(), "failed to parse relying parties file")
	})

	t.Run("test load file - missing id", func(t *testing.T) {
		_, err := LoadFile(write(t, "relying_parties:\n  - display_name: Nameless\n"))
		require.EqualError(t, err, "relying party 0: rp_id is required")
	})

	t.Run("test load file - duplicate id", func(t *testing.T) {
		_, err := LoadFile(write(t, "relying_parties:\n  - rp_id: a\n  - rp_id: a\n"))
		require.EqualError(t, err, `relying party "a" is defined more than once`)
	})
}
