/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package keygencmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-jose/go-jose/v3"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/spf13/cobra"

	"github.com/agevault/agevault/pkg/kms"
)

const (
	keysDirFlagName      = "keys-dir"
	keysDirEnvKey        = "AGEVAULT_KEYS_DIR"
	keysDirFlagShorthand = "k"
	keysDirFlagUsage     = "Directory " + kms.PrivateKeyFile + " and " + kms.KeySetFile + " are written to." +
		" Default: " + keysDirDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + keysDirEnvKey
	keysDirDefault = "keys"

	algorithmFlagName      = "algorithm"
	algorithmFlagShorthand = "g"
	algorithmFlagUsage     = "Signature algorithm of the generated key. Possible values [RS256] [ES256]."

	rotateFlagName  = "rotate"
	rotateFlagUsage = "Generate a new signing key and keep the previous public keys published."

	retireFlagName  = "retire"
	retireFlagUsage = "Key ID of a previous key to remove from the published key set."
)

var logger = log.New("agevault/keygen")

// Cmd returns the Cobra keygen command.
func Cmd(out io.Writer) *cobra.Command {
	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate signing keys",
		Long:  `Generate, rotate or retire the issuer signing keys`,
		RunE: func(cmd *cobra.Command, args []string) error {
			keysDir, err := cmd.Flags().GetString(keysDirFlagName)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed(keysDirFlagName) {
				if env, ok := os.LookupEnv(keysDirEnvKey); ok && env != "" {
					keysDir = env
				}
			}

			algorithm, err := cmd.Flags().GetString(algorithmFlagName)
			if err != nil {
				return err
			}

			rotate, err := cmd.Flags().GetBool(rotateFlagName)
			if err != nil {
				return err
			}

			retire, err := cmd.Flags().GetString(retireFlagName)
			if err != nil {
				return err
			}

			km, err := run(keysDir, jose.SignatureAlgorithm(algorithm), rotate, retire)
			if err != nil {
				return err
			}

			fmt.Fprintf(out, "Generated %s (%s + %s). kid: %s\n", // nolint:errcheck
				keysDir, kms.PrivateKeyFile, kms.KeySetFile, km.KeyID())

			return nil
		},
	}

	keygenCmd.Flags().StringP(keysDirFlagName, keysDirFlagShorthand, keysDirDefault, keysDirFlagUsage)
	keygenCmd.Flags().StringP(algorithmFlagName, algorithmFlagShorthand, string(jose.RS256), algorithmFlagUsage)
	keygenCmd.Flags().Bool(rotateFlagName, false, rotateFlagUsage)
	keygenCmd.Flags().String(retireFlagName, "", retireFlagUsage)

	return keygenCmd
}

func run(keysDir string, alg jose.SignatureAlgorithm, rotate bool, retire string) (*kms.KeyMaterial, error) {
	if rotate && retire != "" {
		return nil, errors.New("rotate and retire cannot be combined")
	}

	switch {
	case rotate:
		logger.Infof("rotating signing key in %s", keysDir)

		return kms.Rotate(keysDir, alg)
	case retire != "":
		logger.Infof("retiring key %s in %s", retire, keysDir)

		return kms.Retire(keysDir, retire)
	}

	if _, err := os.Stat(filepath.Join(keysDir, kms.PrivateKeyFile)); err == nil {
		return nil, fmt.Errorf("signing key already exists in %s, use --%s to replace it", keysDir, rotateFlagName)
	}

	km, err := kms.Generate(alg)
	if err != nil {
		return nil, err
	}

	if err := km.Save(keysDir); err != nil {
		return nil, err
	}

	return km, nil
}
