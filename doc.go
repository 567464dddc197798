/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package agevault issues and verifies selective-disclosure age assertions.
//
// An issuer holds the dates of birth of enrolled users. A relying party asks for age claims such as age_over_18
// and receives a signed assertion that carries only those claims, addressed to the holder by a pairwise pseudonym
// (PPID). The same holder gets a different PPID at every relying party, so relying parties cannot correlate users.
//
// Packages for end developer usage
//
// pkg/framework/context: Holds the key material, stores and settings shared by the issuer and the verifier.
//
// pkg/issuer: Issues signed assertions and registers the matching network tokens.
//
// pkg/verifier: Verifies assertions against a key set, an expected issuer and an audience.
//
// pkg/controller: Exposes issuance, introspection, revocation and verification as commands and REST handlers.
//
// Basic workflow
//
//      1) Generate signing keys with `agevault-rest keygen`.
//      2) Start the issuer with `agevault-rest start`.
//      3) Enroll a user, then request an assertion for a relying party.
//      4) Verify the assertion with `relying-party-rest start` or the issuer /verify endpoint.
package agevault
