/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/agevault/agevault/cmd/internal/startutil"
	"github.com/agevault/agevault/pkg/controller"
	verifierrest "github.com/agevault/agevault/pkg/controller/rest/verifier"
	"github.com/agevault/agevault/pkg/doc/jose/jwks"
	"github.com/agevault/agevault/pkg/framework/context"
)

const (
	// api host flag.
	rpHostFlagName      = "api-host"
	rpHostEnvKey        = "RP_API_HOST"
	rpHostFlagShorthand = "a"
	rpHostFlagUsage     = "Host Name:Port." +
		" Alternatively, this can be set with the following environment variable: " + rpHostEnvKey

	// api token flag.
	rpTokenFlagName      = "api-token"
	rpTokenEnvKey        = "RP_API_TOKEN" // nolint:gosec
	rpTokenFlagShorthand = "t"
	rpTokenFlagUsage     = "Check for bearer token in the authorization header (optional)." +
		" Alternatively, this can be set with the following environment variable: " + rpTokenEnvKey

	// expected issuer flag.
	expectedIssuerFlagName      = "expected-issuer"
	expectedIssuerEnvKey        = "RP_EXPECTED_ISS"
	expectedIssuerFlagShorthand = "i"
	expectedIssuerFlagUsage     = "Issuer that assertions must come from. Default: " + expectedIssuerDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + expectedIssuerEnvKey
	expectedIssuerDefault = "http://localhost:4001"

	// relying party id flag.
	rpIDFlagName      = "rp-id"
	rpIDEnvKey        = "RP_ID"
	rpIDFlagShorthand = "r"
	rpIDFlagUsage     = "Relying party identifier that assertions must be addressed to. Default: " + rpIDDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + rpIDEnvKey
	rpIDDefault = "com.example.shop"

	// jwks url flag.
	jwksURLFlagName      = "jwks-url"
	jwksURLEnvKey        = "RP_ISSUER_JWKS_URL"
	jwksURLFlagShorthand = "j"
	jwksURLFlagUsage     = "URL of the issuer key set. Defaults to <expected-issuer>" + jwksPath + "." +
		" Alternatively, this can be set with the following environment variable: " + jwksURLEnvKey
	jwksPath = "/.well-known/jwks.json"

	// jwks cache ttl flag.
	jwksCacheTTLFlagName  = "jwks-cache-ttl"
	jwksCacheTTLEnvKey    = "RP_JWKS_CACHE_TTL"
	jwksCacheTTLFlagUsage = "Seconds a fetched issuer key stays cached. Default: " + jwksCacheTTLDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + jwksCacheTTLEnvKey
	jwksCacheTTLDefault = "600"

	// jwks fetch retries flag.
	jwksFetchRetriesFlagName  = "jwks-fetch-retries"
	jwksFetchRetriesEnvKey    = "RP_JWKS_FETCH_RETRIES"
	jwksFetchRetriesFlagUsage = "Times a failed key set fetch is retried. Default: " + jwksFetchRetriesDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + jwksFetchRetriesEnvKey
	jwksFetchRetriesDefault = "3"

	// clock skew flag.
	clockSkewFlagName  = "clock-skew"
	clockSkewEnvKey    = "RP_CLOCK_SKEW"
	clockSkewFlagUsage = "Seconds of clock skew tolerated when checking assertion times. Default: 0." +
		" Alternatively, this can be set with the following environment variable: " + clockSkewEnvKey

	// log level.
	redactErrorsFlagName  = "redact-errors"
	redactErrorsEnvKey    = "RP_REDACT_ERRORS"
	redactErrorsFlagUsage = "Hide the reason of verification failures from responses (true/false). Default: false." +
		" Alternatively, this can be set with the following environment variable: " + redactErrorsEnvKey

	rpLogLevelFlagName  = "log-level"
	rpLogLevelEnvKey    = "RP_LOG_LEVEL"
	rpLogLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + rpLogLevelEnvKey

	rpTLSCertFileFlagName      = "tls-cert-file"
	rpTLSCertFileEnvKey        = "TLS_CERT_FILE"
	rpTLSCertFileFlagShorthand = "c"
	rpTLSCertFileFlagUsage     = "tls certificate file." +
		" Alternatively, this can be set with the following environment variable: " + rpTLSCertFileEnvKey

	rpTLSKeyFileFlagName      = "tls-key-file"
	rpTLSKeyFileEnvKey        = "TLS_KEY_FILE"
	rpTLSKeyFileFlagShorthand = "x"
	rpTLSKeyFileFlagUsage     = "tls key file." +
		" Alternatively, this can be set with the following environment variable: " + rpTLSKeyFileEnvKey
)

var (
	errMissingHost = errors.New("host not provided")
	logger         = log.New("agevault/relying-party-rest")
)

type rpParameters struct {
	server                  server
	host, token             string
	expectedIssuer, rpID    string
	jwksURL                 string
	jwksCacheTTL            time.Duration
	jwksFetchRetries        uint64
	clockSkew               time.Duration
	redactErrors            bool
	tlsCertFile, tlsKeyFile string
}

type server interface {
	ListenAndServe(host string, router http.Handler, certFile, keyFile string) error
}

// HTTPServer represents an actual server implementation.
type HTTPServer struct{}

// ListenAndServe starts the server using the standard Go HTTP server implementation.
func (s *HTTPServer) ListenAndServe(host string, router http.Handler, certFile, keyFile string) error {
	if certFile != "" && keyFile != "" {
		return http.ListenAndServeTLS(host, certFile, keyFile, router)
	}

	return http.ListenAndServe(host, router) // nolint:gosec
}

// Cmd returns the Cobra start command.
func Cmd(server server) (*cobra.Command, error) {
	startCmd := createStartCMD(server)

	createFlags(startCmd)

	return startCmd, nil
}

func createStartCMD(server server) *cobra.Command { //nolint: funlen, gocyclo
	return &cobra.Command{
		Use:   "start",
		Short: "Start a relying party",
		Long:  `Start a relying party verifying age assertions against the issuer key set`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// log level
			logLevel, err := startutil.GetUserSetVar(cmd, rpLogLevelFlagName, rpLogLevelEnvKey, true)
			if err != nil {
				return err
			}

			err = startutil.SetLogLevel(logger, logLevel)
			if err != nil {
				return err
			}

			host, err := startutil.GetUserSetVar(cmd, rpHostFlagName, rpHostEnvKey, false)
			if err != nil {
				return err
			}

			token, err := startutil.GetUserSetVar(cmd, rpTokenFlagName, rpTokenEnvKey, true)
			if err != nil {
				return err
			}

			expectedIssuer, err := startutil.GetUserSetVarWithDefault(cmd, expectedIssuerFlagName, expectedIssuerEnvKey,
				expectedIssuerDefault)
			if err != nil {
				return err
			}

			rpID, err := startutil.GetUserSetVarWithDefault(cmd, rpIDFlagName, rpIDEnvKey, rpIDDefault)
			if err != nil {
				return err
			}

			jwksURL, err := startutil.GetUserSetVarWithDefault(cmd, jwksURLFlagName, jwksURLEnvKey,
				strings.TrimSuffix(expectedIssuer, "/")+jwksPath)
			if err != nil {
				return err
			}

			jwksCacheTTL, err := getSeconds(cmd, jwksCacheTTLFlagName, jwksCacheTTLEnvKey, jwksCacheTTLDefault)
			if err != nil {
				return err
			}

			if jwksCacheTTL == 0 {
				return fmt.Errorf("invalid %s: must be at least one second", jwksCacheTTLFlagName)
			}

			jwksFetchRetries, err := getUint(cmd, jwksFetchRetriesFlagName, jwksFetchRetriesEnvKey,
				jwksFetchRetriesDefault)
			if err != nil {
				return err
			}

			clockSkew, err := getSeconds(cmd, clockSkewFlagName, clockSkewEnvKey, "0")
			if err != nil {
				return err
			}

			redactErrors, err := getBool(cmd, redactErrorsFlagName, redactErrorsEnvKey)
			if err != nil {
				return err
			}

			tlsCertFile, err := startutil.GetUserSetVar(cmd, rpTLSCertFileFlagName, rpTLSCertFileEnvKey, true)
			if err != nil {
				return err
			}

			tlsKeyFile, err := startutil.GetUserSetVar(cmd, rpTLSKeyFileFlagName, rpTLSKeyFileEnvKey, true)
			if err != nil {
				return err
			}

			parameters := &rpParameters{
				server:           server,
				host:             host,
				token:            token,
				expectedIssuer:   expectedIssuer,
				rpID:             rpID,
				jwksURL:          jwksURL,
				jwksCacheTTL:     jwksCacheTTL,
				jwksFetchRetries: jwksFetchRetries,
				clockSkew:        clockSkew,
				redactErrors:     redactErrors,
				tlsCertFile:      tlsCertFile,
				tlsKeyFile:       tlsKeyFile,
			}

			return startRelyingParty(parameters)
		},
	}
}

func createFlags(startCmd *cobra.Command) {
	startCmd.Flags().StringP(rpHostFlagName, rpHostFlagShorthand, "", rpHostFlagUsage)
	startCmd.Flags().StringP(rpTokenFlagName, rpTokenFlagShorthand, "", rpTokenFlagUsage)
	startCmd.Flags().StringP(expectedIssuerFlagName, expectedIssuerFlagShorthand, "", expectedIssuerFlagUsage)
	startCmd.Flags().StringP(rpIDFlagName, rpIDFlagShorthand, "", rpIDFlagUsage)
	startCmd.Flags().StringP(jwksURLFlagName, jwksURLFlagShorthand, "", jwksURLFlagUsage)
	startCmd.Flags().StringP(jwksCacheTTLFlagName, "", "", jwksCacheTTLFlagUsage)
	startCmd.Flags().StringP(jwksFetchRetriesFlagName, "", "", jwksFetchRetriesFlagUsage)
	startCmd.Flags().StringP(clockSkewFlagName, "", "", clockSkewFlagUsage)
	startCmd.Flags().StringP(redactErrorsFlagName, "", "", redactErrorsFlagUsage)
	startCmd.Flags().StringP(rpLogLevelFlagName, "", "", rpLogLevelFlagUsage)
	startCmd.Flags().StringP(rpTLSCertFileFlagName, rpTLSCertFileFlagShorthand, "", rpTLSCertFileFlagUsage)
	startCmd.Flags().StringP(rpTLSKeyFileFlagName, rpTLSKeyFileFlagShorthand, "", rpTLSKeyFileFlagUsage)
}



func getUint(cmd *cobra.Command, flagName, envKey, defaultValue string) (uint64, error) {
	value, err := startutil.GetUserSetVarWithDefault(cmd, flagName, envKey, defaultValue)
	if err != nil {
		return 0, err
	}

	n, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", flagName, value, err)
	}

	return n, nil
}

func getSeconds(cmd *cobra.Command, flagName, envKey, defaultValue string) (time.Duration, error) {
	n, err := getUint(cmd, flagName, envKey, defaultValue)
	if err != nil {
		return 0, err
	}

	return time.Duration(n) * time.Second, nil
}

func getBool(cmd *cobra.Command, flagName, envKey string) (bool, error) {
	value, err := startutil.GetUserSetVarWithDefault(cmd, flagName, envKey, "false")
	if err != nil {
		return false, err
	}

	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", flagName, value, err)
	}

	return b, nil
}




func startRelyingParty(parameters *rpParameters) error {
	if parameters.host == "" {
		return errMissingHost
	}

	ctx, err := createContext(parameters)
	if err != nil {
		return err
	}

	handlers, err := controller.GetRelyingPartyRESTHandlers(ctx,
		controller.WithExpectedIssuer(parameters.expectedIssuer),
		controller.WithAudience(parameters.rpID),
		controller.WithKeySetURL(parameters.jwksURL))
	if err != nil {
		return fmt.Errorf("failed to start relying party rest on port [%s], failed to get rest service api :  %w",
			parameters.host, err)
	}

	// health stays reachable without the api token
	router := startutil.NewRouter(handlers, parameters.token, verifierrest.HealthPath)

	logger.Infof("Starting relying party [%s] rest on host [%s], trusting [%s]",
		parameters.rpID, parameters.host, parameters.jwksURL)

	handler := cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		},
	).Handler(router)

	err = parameters.server.ListenAndServe(parameters.host, handler, parameters.tlsCertFile, parameters.tlsKeyFile)
	if err != nil {
		return fmt.Errorf("failed to start relying party rest on port [%s], cause:  %w", parameters.host, err)
	}

	return nil
}

func createContext(parameters *rpParameters) (*context.Provider, error) {
	resolver := jwks.NewRemoteResolver(parameters.jwksURL,
		jwks.WithCacheTTL(parameters.jwksCacheTTL),
		jwks.WithRetry(parameters.jwksFetchRetries, jwks.DefaultRetryInterval),
	)

	opts := []context.ProviderOption{
		context.WithKeyResolver(resolver),
		context.WithClockSkew(parameters.clockSkew),
	}

	if parameters.redactErrors {
		opts = append(opts, context.WithRedactedErrors())
	}

	ctx, err := context.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to start relying party rest on port [%s], failed to initialize context : %w",
			parameters.host, err)
	}

	return ctx, nil
}
