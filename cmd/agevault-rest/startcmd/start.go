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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hyperledger/aries-framework-go/component/log"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/hyperledger/aries-framework-go/spi/storage"
	"github.com/rs/cors"
	"github.com/spf13/cobra"

	"github.com/agevault/agevault/cmd/internal/startutil"
	"github.com/agevault/agevault/pkg/controller"
	issuerrest "github.com/agevault/agevault/pkg/controller/rest/issuer"
	"github.com/agevault/agevault/pkg/framework/context"
	"github.com/agevault/agevault/pkg/kms"
	"github.com/agevault/agevault/pkg/store/relyingparty"
)

const (
	// api host flag.
	agentHostFlagName      = "api-host"
	agentHostEnvKey        = "AGEVAULT_API_HOST"
	agentHostFlagShorthand = "a"
	agentHostFlagUsage     = "Host Name:Port." +
		" Alternatively, this can be set with the following environment variable: " + agentHostEnvKey

	// api token flag.
	agentTokenFlagName      = "api-token"
	agentTokenEnvKey        = "AGEVAULT_API_TOKEN" // nolint:gosec
	agentTokenFlagShorthand = "t"
	agentTokenFlagUsage     = "Check for bearer token in the authorization header (optional)." +
		" Alternatively, this can be set with the following environment variable: " + agentTokenEnvKey

	// issuer identity flag.
	issuerFlagName      = "issuer"
	issuerEnvKey        = "AGEVAULT_ISSUER"
	issuerFlagShorthand = "i"
	issuerFlagUsage     = "Issuer identity stamped into assertions. Defaults to http://<api-host>." +
		" Alternatively, this can be set with the following environment variable: " + issuerEnvKey

	// hmac secret flag.
	hmacSecretFlagName  = "hmac-secret"
	hmacSecretEnvKey    = "AGEVAULT_HMAC_SECRET" // nolint:gosec
	hmacSecretFlagUsage = "Secret pairwise pseudonyms are derived with. A development secret is used if not set." +
		" Alternatively, this can be set with the following environment variable: " + hmacSecretEnvKey

	// token ttl flag.
	tokenTTLFlagName  = "token-ttl"
	tokenTTLEnvKey    = "AGEVAULT_TOKEN_TTL"
	tokenTTLFlagUsage = "Lifetime of assertions and network tokens in seconds. Default: " + tokenTTLDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + tokenTTLEnvKey
	tokenTTLDefault = "1800"

	// keys dir flag.
	keysDirFlagName      = "keys-dir"
	keysDirEnvKey        = "AGEVAULT_KEYS_DIR"
	keysDirFlagShorthand = "k"
	keysDirFlagUsage     = "Directory holding " + kms.PrivateKeyFile + " and " + kms.KeySetFile +
		". Default: " + keysDirDefault + "." +
		" Alternatively, this can be set with the following environment variable: " + keysDirEnvKey
	keysDirDefault = "keys"

	// relying parties flag.
	relyingPartiesFlagName      = "relying-parties"
	relyingPartiesEnvKey        = "AGEVAULT_RELYING_PARTIES"
	relyingPartiesFlagShorthand = "r"
	relyingPartiesFlagUsage     = "YAML file listing the registered relying parties." +
		" Only com.example.shop is registered if not set." +
		" Alternatively, this can be set with the following environment variable: " + relyingPartiesEnvKey

	databaseTypeFlagName      = "database-type"
	databaseTypeEnvKey        = "AGEVAULT_DATABASE_TYPE"
	databaseTypeFlagShorthand = "q"
	databaseTypeFlagUsage     = "The type of database to use. Supported options: mem. Default: mem." +
		" Alternatively, this can be set with the following environment variable: " + databaseTypeEnvKey

	databaseTimeoutFlagName  = "database-timeout"
	databaseTimeoutFlagUsage = "Total time in seconds to wait until the db is available before giving up." +
		" Default: " + databaseTimeoutDefault + " seconds." +
		" Alternatively, this can be set with the following environment variable: " + databaseTimeoutEnvKey
	databaseTimeoutEnvKey  = "AGEVAULT_DATABASE_TIMEOUT"
	databaseTimeoutDefault = "30"

	// log level.
	agentLogLevelFlagName  = "log-level"
	agentLogLevelEnvKey    = "AGEVAULT_LOG_LEVEL"
	agentLogLevelFlagUsage = "Log level." +
		" Possible values [INFO] [DEBUG] [ERROR] [WARNING] [CRITICAL] . Defaults to INFO if not set." +
		" Alternatively, this can be set with the following environment variable: " + agentLogLevelEnvKey

	agentTLSCertFileFlagName      = "tls-cert-file"
	agentTLSCertFileEnvKey        = "TLS_CERT_FILE"
	agentTLSCertFileFlagShorthand = "c"
	agentTLSCertFileFlagUsage     = "tls certificate file." +
		" Alternatively, this can be set with the following environment variable: " + agentTLSCertFileEnvKey

	agentTLSKeyFileFlagName      = "tls-key-file"
	agentTLSKeyFileEnvKey        = "TLS_KEY_FILE"
	agentTLSKeyFileFlagShorthand = "x"
	agentTLSKeyFileFlagUsage     = "tls key file." +
		" Alternatively, this can be set with the following environment variable: " + agentTLSKeyFileEnvKey

	databaseTypeMemOption = "mem"

	// DevHMACSecret is used when no pseudonym secret is configured.
	DevHMACSecret = "dev_secret_change_me" // nolint:gosec
)

var (
	errMissingHost = errors.New("host not provided")
	logger         = log.New("agevault/agevault-rest")
)

type agentParameters struct {
	server                  server
	host, issuer            string
	tlsCertFile, tlsKeyFile string
	token                   string
	hmacSecret              string
	tokenTTL                time.Duration
	keysDir                 string
	relyingPartiesFile      string
	dbParam                 *dbParam
}

type dbParam struct {
	dbType  string
	timeout uint64
}

// nolint:gochecknoglobals
var supportedStorageProviders = map[string]func() (storage.Provider, error){
	databaseTypeMemOption: func() (storage.Provider, error) { // nolint:unparam
		return mem.NewProvider(), nil
	},
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
		Short: "Start the issuer",
		Long:  `Start the age assertion issuer REST API`,
		RunE: func(cmd *cobra.Command, args []string) error {
			// log level
			logLevel, err := startutil.GetUserSetVar(cmd, agentLogLevelFlagName, agentLogLevelEnvKey, true)
			if err != nil {
				return err
			}

			err = startutil.SetLogLevel(logger, logLevel)
			if err != nil {
				return err
			}

			host, err := startutil.GetUserSetVar(cmd, agentHostFlagName, agentHostEnvKey, false)
			if err != nil {
				return err
			}

			token, err := startutil.GetUserSetVar(cmd, agentTokenFlagName, agentTokenEnvKey, true)
			if err != nil {
				return err
			}

			issuer, err := startutil.GetUserSetVar(cmd, issuerFlagName, issuerEnvKey, true)
			if err != nil {
				return err
			}

			if issuer == "" && host != "" {
				issuer = "http://" + host
			}

			hmacSecret, err := startutil.GetUserSetVar(cmd, hmacSecretFlagName, hmacSecretEnvKey, true)
			if err != nil {
				return err
			}

			if hmacSecret == "" {
				logger.Warnf("no %s set, pairwise pseudonyms are derived with the development secret", hmacSecretEnvKey)

				hmacSecret = DevHMACSecret
			}

			tokenTTL, err := getTokenTTL(cmd)
			if err != nil {
				return err
			}

			keysDir, err := startutil.GetUserSetVar(cmd, keysDirFlagName, keysDirEnvKey, true)
			if err != nil {
				return err
			}

			if keysDir == "" {
				keysDir = keysDirDefault
			}

			relyingPartiesFile, err := startutil.GetUserSetVar(cmd, relyingPartiesFlagName, relyingPartiesEnvKey, true)
			if err != nil {
				return err
			}

			dbParam, err := getDBParam(cmd)
			if err != nil {
				return err
			}

			tlsCertFile, err := startutil.GetUserSetVar(cmd, agentTLSCertFileFlagName, agentTLSCertFileEnvKey, true)
			if err != nil {
				return err
			}

			tlsKeyFile, err := startutil.GetUserSetVar(cmd, agentTLSKeyFileFlagName, agentTLSKeyFileEnvKey, true)
			if err != nil {
				return err
			}

			parameters := &agentParameters{
				server:             server,
				host:               host,
				issuer:             issuer,
				token:              token,
				hmacSecret:         hmacSecret,
				tokenTTL:           tokenTTL,
				keysDir:            keysDir,
				relyingPartiesFile: relyingPartiesFile,
				dbParam:            dbParam,
				tlsCertFile:        tlsCertFile,
				tlsKeyFile:         tlsKeyFile,
			}

			return startAgent(parameters)
		},
	}
}

func getTokenTTL(cmd *cobra.Command) (time.Duration, error) {
	tokenTTL, err := startutil.GetUserSetVar(cmd, tokenTTLFlagName, tokenTTLEnvKey, true)
	if err != nil {
		return 0, err
	}

	if tokenTTL == "" {
		tokenTTL = tokenTTLDefault
	}

	seconds, err := strconv.ParseUint(tokenTTL, 10, 32)
	if err != nil || seconds == 0 {
		return 0, fmt.Errorf("invalid %s %q: expected a positive number of seconds", tokenTTLFlagName, tokenTTL)
	}

	return time.Duration(seconds) * time.Second, nil
}

func getDBParam(cmd *cobra.Command) (*dbParam, error) {
	dbParam := &dbParam{}

	var err error

	dbParam.dbType, err = startutil.GetUserSetVar(cmd, databaseTypeFlagName, databaseTypeEnvKey, true)
	if err != nil {
		return nil, err
	}

	if dbParam.dbType == "" {
		dbParam.dbType = databaseTypeMemOption
	}

	dbTimeout, err := startutil.GetUserSetVar(cmd, databaseTimeoutFlagName, databaseTimeoutEnvKey, true)
	if err != nil {
		return nil, err
	}

	if dbTimeout == "" {
		dbTimeout = databaseTimeoutDefault
	}

	t, err := strconv.Atoi(dbTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to parse db timeout %s: %w", dbTimeout, err)
	}

	if t < 0 {
		return nil, fmt.Errorf("invalid db timeout %d", t)
	}

	dbParam.timeout = uint64(t)

	return dbParam, nil
}

func createFlags(startCmd *cobra.Command) {
	// agent host flag
	startCmd.Flags().StringP(agentHostFlagName, agentHostFlagShorthand, "", agentHostFlagUsage)

	// agent token flag
	startCmd.Flags().StringP(agentTokenFlagName, agentTokenFlagShorthand, "", agentTokenFlagUsage)

	// issuer identity flag
	startCmd.Flags().StringP(issuerFlagName, issuerFlagShorthand, "", issuerFlagUsage)

	// hmac secret flag
	startCmd.Flags().StringP(hmacSecretFlagName, "", "", hmacSecretFlagUsage)

	// token ttl flag
	startCmd.Flags().StringP(tokenTTLFlagName, "", "", tokenTTLFlagUsage)

	// keys dir flag
	startCmd.Flags().StringP(keysDirFlagName, keysDirFlagShorthand, "", keysDirFlagUsage)

	// relying parties flag
	startCmd.Flags().StringP(relyingPartiesFlagName, relyingPartiesFlagShorthand, "", relyingPartiesFlagUsage)

	// db type
	startCmd.Flags().StringP(databaseTypeFlagName, databaseTypeFlagShorthand, "", databaseTypeFlagUsage)

	// db timeout
	startCmd.Flags().StringP(databaseTimeoutFlagName, "", "", databaseTimeoutFlagUsage)

	// log level
	startCmd.Flags().StringP(agentLogLevelFlagName, "", "", agentLogLevelFlagUsage)

	// tls cert file
	startCmd.Flags().StringP(agentTLSCertFileFlagName,
		agentTLSCertFileFlagShorthand, "", agentTLSCertFileFlagUsage)

	// tls key file
	startCmd.Flags().StringP(agentTLSKeyFileFlagName,
		agentTLSKeyFileFlagShorthand, "", agentTLSKeyFileFlagUsage)
}





func startAgent(parameters *agentParameters) error {
	if parameters.host == "" {
		return errMissingHost
	}

	ctx, err := createContext(parameters)
	if err != nil {
		return err
	}

	// get all HTTP REST API handlers available for controller API
	handlers, err := controller.GetIssuerRESTHandlers(ctx)
	if err != nil {
		return fmt.Errorf("failed to start agevault rest on port [%s], failed to get rest service api :  %w",
			parameters.host, err)
	}

	// health and the key set stay reachable without the api token
	router := startutil.NewRouter(handlers, parameters.token, issuerrest.HealthPath, issuerrest.KeySetPath)

	logger.Infof("Starting agevault rest on host [%s] as issuer [%s] with key [%s]",
		parameters.host, ctx.IssuerID(), ctx.KeyMaterial().KeyID())
	// start server on given port and serve using given handlers
	handler := cors.New(
		cors.Options{
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodHead},
			AllowedHeaders: []string{"Origin", "Accept", "Content-Type", "X-Requested-With", "Authorization"},
		},
	).Handler(router)

	err = parameters.server.ListenAndServe(parameters.host, handler, parameters.tlsCertFile, parameters.tlsKeyFile)
	if err != nil {
		return fmt.Errorf("failed to start agevault rest on port [%s], cause:  %w", parameters.host, err)
	}

	return nil
}

func createContext(parameters *agentParameters) (*context.Provider, error) {
	storePro, err := createStoreProviders(parameters)
	if err != nil {
		return nil, err
	}

	keyMaterial, err := kms.Load(parameters.keysDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing keys from %s (run keygen first) : %w", parameters.keysDir, err)
	}

	relyingParties := []relyingparty.RelyingParty{relyingparty.Default}

	if parameters.relyingPartiesFile != "" {
		relyingParties, err = relyingparty.LoadFile(parameters.relyingPartiesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load relying parties : %w", err)
		}
	}

	ctx, err := context.New(
		context.WithStorageProvider(storePro),
		context.WithKeyMaterial(keyMaterial),
		context.WithHMACSecret([]byte(parameters.hmacSecret)),
		context.WithRelyingParties(relyingParties...),
		context.WithIssuerID(parameters.issuer),
		context.WithTokenTTL(parameters.tokenTTL),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start agevault rest on port [%s], failed to initialize context : %w",
			parameters.host, err)
	}

	return ctx, nil
}

func createStoreProviders(parameters *agentParameters) (storage.Provider, error) {
	provider, supported := supportedStorageProviders[parameters.dbParam.dbType]
	if !supported {
		return nil, fmt.Errorf("database type not set to a valid type." +
			" run start --help to see the available options")
	}

	var store storage.Provider

	err := backoff.RetryNotify(
		func() error {
			var openErr error
			store, openErr = provider()
			return openErr
		},
		backoff.WithMaxRetries(backoff.NewConstantBackOff(time.Second), parameters.dbParam.timeout),
		func(retryErr error, t time.Duration) {
			logger.Warnf(
				"failed to connect to storage, will sleep for %s before trying again : %s\n",
				t, retryErr)
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to storage : %w", err)
	}

	return store, nil
}
