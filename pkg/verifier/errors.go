/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package verifier

import "errors"

// Reasons an assertion fails verification. Every failure returned by Verify is an *Error wrapping one of these.
var (
	ErrMalformed            = errors.New("malformed assertion")
	ErrUnknownKey           = errors.New("unknown signing key")
	ErrUnsupportedAlgorithm = errors.New("unsupported signature algorithm")
	ErrSignature            = errors.New("signature verification failed")
	ErrIssuerMismatch       = errors.New("unexpected issuer")
	ErrAudienceMismatch     = errors.New("unexpected audience")
	ErrExpired              = errors.New("assertion expired")
	ErrNotYetValid          = errors.New("assertion not yet valid")
)

const redactedMessage = "assertion verification failed"

// Error is a verification failure.
type Error struct {
	// Reason is one of the sentinel errors of this package.
	Reason error
	// Detail describes the failure in terms of the assertion, e.g. the offending claim value.
	Detail string

	redacted bool
}

func (e *Error) Error() string {
	if e.redacted {
		return redactedMessage
	}

	if e.Detail == "" {
		return e.Reason.Error()
	}

	return e.Reason.Error() + ": " + e.Detail
}

// Unwrap returns the failure reason.
func (e *Error) Unwrap() error {
	return e.Reason
}

// Redacted reports whether the message hides the failure reason.
func (e *Error) Redacted() bool {
	return e.redacted
}
