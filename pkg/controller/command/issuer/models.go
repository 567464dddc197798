/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuer

// EnrollRequest model
//
// This is used for enrolling a user.
type EnrollRequest struct {
	// Date of birth in YYYY-MM-DD format.
	DateOfBirth string `json:"dob"`
}

// EnrollResponse model
//
// This is used for returning the enrolled user.
type EnrollResponse struct {
	UserID string `json:"user_id"`
}

// IssueTokenRequest model
//
// This is used for issuing an assertion and network token to a relying party.
type IssueTokenRequest struct {
	UserID string `json:"user_id"`
	RPID   string `json:"rp_id"`
	// Requested claims, e.g. age_over_18. Unrecognized claims are ignored.
	Claims []string `json:"claims"`
}

// IssueTokenResponse model
//
// This is used for returning an issued assertion.
type IssueTokenResponse struct {
	PPID         string `json:"ppid"`
	NetworkToken string `json:"network_token"`
	Assertion    string `json:"assertion"`
	// Expiry in milliseconds since the Unix epoch.
	ExpiresAt int64 `json:"exp"`
}

// TokenRequest model
//
// This is used for introspecting or revoking a network token.
type TokenRequest struct {
	NetworkToken string `json:"network_token"`
}

// IntrospectResponse model
//
// Only Active is set for unknown tokens.
type IntrospectResponse struct {
	Active bool   `json:"active"`
	PPID   string `json:"ppid,omitempty"`
	RPID   string `json:"rp_id,omitempty"`
	// Expiry in milliseconds since the Unix epoch.
	ExpiresAt *int64 `json:"exp,omitempty"`
}

// RevokeResponse model
//
// This is used for acknowledging a revocation.
type RevokeResponse struct {
	Revoked bool `json:"revoked"`
}

// HealthResponse model
//
// This is used for reporting issuer liveness.
type HealthResponse struct {
	OK     bool   `json:"ok"`
	Issuer string `json:"iss"`
}
