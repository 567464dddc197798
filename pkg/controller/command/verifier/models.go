/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package verifier

// VerifyRequest model
//
// This is used for verifying an assertion.
type VerifyRequest struct {
	Assertion string `json:"assertion"`
	// Expected audience. Ignored when the verifier is bound to a relying party.
	Audience string `json:"audience,omitempty"`
}

// VerifyResponse model
//
// This is used for returning the disclosed claims of a valid assertion.
type VerifyResponse struct {
	Valid   bool            `json:"valid"`
	Subject string          `json:"sub"`
	Claims  map[string]bool `json:"attrs"`
	// Issued at, seconds since the Unix epoch.
	IssuedAt int64 `json:"iat"`
	// Expiry, seconds since the Unix epoch.
	ExpiresAt int64 `json:"exp"`
}

// HealthResponse model
//
// This is used for reporting relying party liveness.
type HealthResponse struct {
	OK        bool   `json:"ok"`
	RPID      string `json:"rp_id"`
	KeySetURL string `json:"iss_jwks,omitempty"`
}
