/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package startutil holds the flag, logging and routing helpers shared by the start commands.
package startutil

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/spf13/cobra"

	"github.com/agevault/agevault/pkg/controller/rest"
)

// GetUserSetVar returns the value of flagName, falling back to the envKey environment variable.
func GetUserSetVar(cmd *cobra.Command, flagName, envKey string, isOptional bool) (string, error) {
	if cmd.Flags().Changed(flagName) {
		value, err := cmd.Flags().GetString(flagName)
		if err != nil {
			return "", fmt.Errorf(flagName+" flag not found: %s", err)
		}

		return value, nil
	}

	value, isSet := os.LookupEnv(envKey)

	if isOptional || isSet {
		return value, nil
	}

	return "", errors.New("Neither " + flagName + " (command line flag) nor " + envKey +
		" (environment variable) have been set.")
}

// GetUserSetVarWithDefault is GetUserSetVar for optional values, returning defaultValue when neither is set.
func GetUserSetVarWithDefault(cmd *cobra.Command, flagName, envKey, defaultValue string) (string, error) {
	value, err := GetUserSetVar(cmd, flagName, envKey, true)
	if err != nil {
		return "", err
	}

	if value == "" {
		return defaultValue, nil
	}

	return value, nil
}

// SetLogLevel sets the level of all module loggers. An empty level leaves them unchanged.
func SetLogLevel(logger *log.Log, logLevel string) error {
	if logLevel != "" {
		level, err := log.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("failed to parse log level '%s' : %w", logLevel, err)
		}

		log.SetLevel("", level)

		logger.Infof("logger level set to %s", logLevel)
	}

	return nil
}

func validateAuthorizationBearerToken(w http.ResponseWriter, r *http.Request, token string) bool {
	actHdr := r.Header.Get("Authorization")
	expHdr := "Bearer " + token

	if subtle.ConstantTimeCompare([]byte(actHdr), []byte(expHdr)) != 1 {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("Unauthorised.\n")) // nolint:gosec,errcheck

		return false
	}

	return true
}

// AuthorizationMiddleware rejects requests that do not carry the bearer token.
func AuthorizationMiddleware(token string) mux.MiddlewareFunc {
	middleware := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validateAuthorizationBearerToken(w, r, token) {
				next.ServeHTTP(w, r)
			}
		})
	}

	return middleware
}

// NewRouter registers handlers on a router. When token is set, every handler except those on publicPaths
// requires it as a bearer token.
func NewRouter(handlers []rest.Handler, token string, publicPaths ...string) *mux.Router {
	router := mux.NewRouter()

	if token == "" {
		for _, handler := range handlers {
			router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
		}

		return router
	}

	public := make(map[string]bool, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = true
	}

	// public routes are registered first so they match before the protected subrouter
	for _, handler := range handlers {
		if public[handler.Path()] {
			router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
		}
	}

	protected := router.NewRoute().Subrouter()
	protected.Use(AuthorizationMiddleware(token))

	for _, handler := range handlers {
		if !public[handler.Path()] {
			protected.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())
		}
	}

	return router
}
