/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuer

import (
	"github.com/go-jose/go-jose/v3"

	cmdissuer "github.com/agevault/agevault/pkg/controller/command/issuer"
)

// healthRes model
//
// This is used for returning the issuer health.
//
// swagger:response healthRes
type healthRes struct { // nolint: unused,deadcode

	// in: body
	cmdissuer.HealthResponse
}

// keySetRes model
//
// This is used for returning the published verification key set.
//
// swagger:response keySetRes
type keySetRes struct { // nolint: unused,deadcode

	// in: body
	jose.JSONWebKeySet
}

// enrollReq model
//
// swagger:parameters enroll
type enrollReq struct { // nolint: unused,deadcode

	// Params for enroll
	//
	// in: body
	cmdissuer.EnrollRequest
}

// enrollRes model
//
// This is used for returning the enrolled user id.
//
// swagger:response enrollRes
type enrollRes struct { // nolint: unused,deadcode

	// in: body
	cmdissuer.EnrollResponse
}

// issueTokenReq model
//
// swagger:parameters issueToken
type issueTokenReq struct { // nolint: unused,deadcode

	// Params for issueToken
	//
	// in: body
	cmdissuer.IssueTokenRequest
}

// issueTokenRes model
//
// This is used for returning the issued assertion and network token.
//
// swagger:response issueTokenRes
type issueTokenRes struct { // nolint: unused,deadcode

	// in: body
	cmdissuer.IssueTokenResponse
}

// tokenReq model
//
// swagger:parameters introspect revoke
type tokenReq struct { // nolint: unused,deadcode

	// Params for introspect and revoke
	//
	// in: body
	cmdissuer.TokenRequest
}

// introspectRes model
//
// This is used for returning the network token state.
//
// swagger:response introspectRes
type introspectRes struct { // nolint: unused,deadcode

	// in: body
	cmdissuer.IntrospectResponse
}

// revokeRes model
//
// swagger:response revokeRes
type revokeRes struct { // nolint: unused,deadcode

	// in: body
	cmdissuer.RevokeResponse
}
