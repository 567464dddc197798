/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package verifier

import (
	cmdverifier "github.com/agevault/agevault/pkg/controller/command/verifier"
)

// healthRes model
//
// This is used for returning the relying party health.
//
// swagger:response healthRes
type healthRes struct { // nolint: unused,deadcode

	// in: body
	cmdverifier.HealthResponse
}

// verifyReq model
//
// swagger:parameters verify
type verifyReq struct { // nolint: unused,deadcode

	// Params for verify
	//
	// in: body
	cmdverifier.VerifyRequest
}

// verifyRes model
//
// This is used for returning the disclosed claims of a valid assertion.
//
// swagger:response verifyRes
type verifyRes struct { // nolint: unused,deadcode

	// in: body
	cmdverifier.VerifyResponse
}
