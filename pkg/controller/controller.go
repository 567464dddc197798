/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package controller

import (
	"fmt"

	"github.com/agevault/agevault/pkg/controller/command"
	issuercmd "github.com/agevault/agevault/pkg/controller/command/issuer"
	verifiercmd "github.com/agevault/agevault/pkg/controller/command/verifier"
	"github.com/agevault/agevault/pkg/controller/rest"
	issuerrest "github.com/agevault/agevault/pkg/controller/rest/issuer"
	verifierrest "github.com/agevault/agevault/pkg/controller/rest/verifier"
	"github.com/agevault/agevault/pkg/framework/context"
)

type allOpts struct {
	expectedIssuer string
	audience       string
	keySetURL      string
}

// Opt represents a controller option.
type Opt func(opts *allOpts)

// WithExpectedIssuer is an option setting the issuer that verified assertions must come from.
// The issuer server defaults to its own identity.
func WithExpectedIssuer(issuer string) Opt {
	return func(opts *allOpts) {
		opts.expectedIssuer = issuer
	}
}

// WithAudience is an option binding verification to a relying party.
func WithAudience(rpID string) Opt {
	return func(opts *allOpts) {
		opts.audience = rpID
	}
}

// WithKeySetURL is an option setting the key set location reported by the relying party health endpoint.
func WithKeySetURL(url string) Opt {
	return func(opts *allOpts) {
		opts.keySetURL = url
	}
}

func (o *allOpts) verifierOptions() []verifiercmd.Option {
	var opts []verifiercmd.Option

	if o.audience != "" {
		opts = append(opts, verifiercmd.WithAudience(o.audience))
	}

	if o.keySetURL != "" {
		opts = append(opts, verifiercmd.WithKeySetURL(o.keySetURL))
	}

	return opts
}

func collectOpts(opts []Opt) *allOpts {
	all := &allOpts{}
	for _, opt := range opts {
		opt(all)
	}

	return all
}

// GetIssuerRESTHandlers returns all REST handlers of the issuer server.
// Assertion verification is served next to the issuer operations.
func GetIssuerRESTHandlers(ctx *context.Provider, opts ...Opt) ([]rest.Handler, error) {
	restAPIOpts := collectOpts(opts)

	issuerOp, err := issuerrest.New(ctx)
	if err != nil {
		return nil, err
	}

	expectedIssuer := restAPIOpts.expectedIssuer
	if expectedIssuer == "" {
		expectedIssuer = ctx.IssuerID()
	}

	verifierOp, err := verifierrest.New(ctx, expectedIssuer, restAPIOpts.verifierOptions()...)
	if err != nil {
		return nil, err
	}

	var allHandlers []rest.Handler
	allHandlers = append(allHandlers, issuerOp.GetRESTHandlers()...)

	for _, h := range verifierOp.GetRESTHandlers() {
		if h.Path() == verifierrest.HealthPath {
			continue
		}

		allHandlers = append(allHandlers, h)
	}

	return allHandlers, nil
}

// GetRelyingPartyRESTHandlers returns all REST handlers of the relying party server.
func GetRelyingPartyRESTHandlers(ctx *context.Provider, opts ...Opt) ([]rest.Handler, error) {
	restAPIOpts := collectOpts(opts)

	verifierOp, err := verifierrest.New(ctx, restAPIOpts.expectedIssuer, restAPIOpts.verifierOptions()...)
	if err != nil {
		return nil, err
	}

	return verifierOp.GetRESTHandlers(), nil
}

// GetCommandHandlers returns all command handlers provided by the issuer controller.
func GetCommandHandlers(ctx *context.Provider, opts ...Opt) ([]command.Handler, error) {
	cmdOpts := collectOpts(opts)

	issuerCmd, err := issuercmd.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("create issuer command : %w", err)
	}

	expectedIssuer := cmdOpts.expectedIssuer
	if expectedIssuer == "" {
		expectedIssuer = ctx.IssuerID()
	}

	verifierCmd, err := verifiercmd.New(ctx, expectedIssuer, cmdOpts.verifierOptions()...)
	if err != nil {
		return nil, fmt.Errorf("create verifier command : %w", err)
	}

	var allHandlers []command.Handler
	allHandlers = append(allHandlers, issuerCmd.GetHandlers()...)
	allHandlers = append(allHandlers, verifierCmd.GetHandlers()...)

	return allHandlers, nil
}
