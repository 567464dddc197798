/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package randutil generates random identifiers drawn from a small alphabet.
package randutil

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

// Alphabet is the 36 symbol alphabet used for key and token identifiers.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// largest multiple of len(Alphabet) that fits in a byte, so that the modulo below is unbiased.
const maxUnbiased = 256 - (256 % len(Alphabet))

// AlphaNumeric returns n symbols chosen uniformly from Alphabet using crypto/rand.
func AlphaNumeric(n int) (string, error) {
	return alphaNumeric(rand.Reader, n)
}

func alphaNumeric(r io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", errors.New("length must be positive")
	}

	out := make([]byte, 0, n)
	buf := make([]byte, n)

	for len(out) < n {
		if _, err := io.ReadFull(r, buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}

		for _, b := range buf {
			if int(b) >= maxUnbiased {
				continue
			}

			out = append(out, Alphabet[int(b)%len(Alphabet)])

			if len(out) == n {
				break
			}
		}
	}

	return string(out), nil
}
