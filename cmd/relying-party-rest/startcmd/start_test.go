/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package startcmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/agevault/agevault/pkg/framework/context"
	"github.com/agevault/agevault/pkg/issuer"
	"github.com/agevault/agevault/pkg/kms"
	"github.com/agevault/agevault/pkg/store/relyingparty"
)

type mockServer struct {
	host    string
	handler http.Handler
}

const rpUnexpectedExitErrMsg = "relying party server exited unexpectedly"

func (s *mockServer) ListenAndServe(host string, handler http.Handler, certFile, keyFile string) error {
	s.host = host
	s.handler = handler

	return nil
}

func randomURL() string {
	return fmt.Sprintf("localhost:%d", mustGetRandomPort(3))
}

func mustGetRandomPort(n int) int {
	for ; n > 0; n-- {
		port, err := getRandomPort()
		if err != nil {
			continue
		}

		return port
	}
	panic("cannot acquire the random port")
}

func getRandomPort() (int, error) {
	const network = "tcp"

	addr, err := net.ResolveTCPAddr(network, "localhost:0")
	if err != nil {
		return 0, err
	}

	listener, err := net.ListenTCP(network, addr)
	if err != nil {
		return 0, err
	}

	err = listener.Close()
	if err != nil {
		return 0, err
	}

	return listener.Addr().(*net.TCPAddr).Port, nil
}

func TestStartCmdContents(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	require.Equal(t, "start", startCmd.Use)
	require.Equal(t, "Start a relying party", startCmd.Short)

	checkFlagPropertiesCorrect(t, startCmd, rpHostFlagName, rpHostFlagShorthand, rpHostFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, expectedIssuerFlagName, expectedIssuerFlagShorthand,
		expectedIssuerFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, rpIDFlagName, rpIDFlagShorthand, rpIDFlagUsage)
	checkFlagPropertiesCorrect(t, startCmd, jwksURLFlagName, jwksURLFlagShorthand, jwksURLFlagUsage)
}

func checkFlagPropertiesCorrect(t *testing.T, cmd *cobra.Command, flagName, flagShorthand, flagUsage string) {
	flag := cmd.Flag(flagName)

	require.NotNil(t, flag)
	require.Equal(t, flagName, flag.Name)
	require.Equal(t, flagShorthand, flag.Shorthand)
	require.Equal(t, flagUsage, flag.Usage)
	require.Equal(t, "", flag.Value.String())
	require.Nil(t, flag.Annotations)
}

func TestStartCmdWithMissingHostArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{})

	err = startCmd.Execute()
	require.Equal(t,
		"Neither api-host (command line flag) nor RP_API_HOST (environment variable) have been set.",
		err.Error())
}

func TestStartCmdWithBlankHostArg(t *testing.T) {
	startCmd, err := Cmd(&mockServer{})
	require.NoError(t, err)

	startCmd.SetArgs([]string{"--" + rpHostFlagName, ""})

	err = startCmd.Execute()
	require.Equal(t, errMissingHost.Error(), err.Error())
}

func TestStartCmdDefaults(t *testing.T) {
	server := &mockServer{}

	startCmd, err := Cmd(server)
	require.NoError(t, err)

	host := randomURL()
	startCmd.SetArgs([]string{"--" + rpHostFlagName, host})

	require.NoError(t, startCmd.Execute())
	require.Equal(t, host, server.host)

	rr := httptest.NewRecorder()
	server.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t,
		`{"ok":true,"rp_id":"com.example.shop","iss_jwks":"http://localhost:4001/.well-known/jwks.json"}`,
		rr.Body.String())
}

func TestStartCmdValidArgsEnvVar(t *testing.T) {
	server := &mockServer{}

	startCmd, err := Cmd(server)
	require.NoError(t, err)

	t.Setenv(rpHostEnvKey, randomURL())
	t.Setenv(expectedIssuerEnvKey, "https://issuer.example.com/")
	t.Setenv(rpIDEnvKey, "com.example.bar")
	t.Setenv(jwksCacheTTLEnvKey, "60")
	t.Setenv(jwksFetchRetriesEnvKey, "1")
	t.Setenv(clockSkewEnvKey, "5")

	startCmd.SetArgs([]string{})

	require.NoError(t, startCmd.Execute())

	rr := httptest.NewRecorder()
	server.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.JSONEq(t,
		`{"ok":true,"rp_id":"com.example.bar","iss_jwks":"https://issuer.example.com/.well-known/jwks.json"}`,
		rr.Body.String())
}

func TestStartCmdInvalidArgs(t *testing.T) {
	tests := []struct {
		name   string
		args   []string
		errMsg string
	}{
		{name: "invalid cache ttl", args: []string{"--" + jwksCacheTTLFlagName, "abc"}, errMsg: "invalid jwks-cache-ttl"},
		{name: "zero cache ttl", args: []string{"--" + jwksCacheTTLFlagName, "0"}, errMsg: "invalid jwks-cache-ttl"},
		{name: "invalid retries", args: []string{"--" + jwksFetchRetriesFlagName, "-1"}, errMsg: "invalid jwks-fetch"},
		{name: "invalid clock skew", args: []string{"--" + clockSkewFlagName, "1m"}, errMsg: "invalid clock-skew"},
		{name: "invalid log level", args: []string{"--" + rpLogLevelFlagName, "LOUD"}, errMsg: "failed to parse log"},
		{name: "invalid redact flag", args: []string{"--" + redactErrorsFlagName, "maybe"}, errMsg: "invalid redact-errors"},
	}

	for _, tc := range tests {
		tc := tc

		t.Run("test start - "+tc.name, func(t *testing.T) {
			startCmd, err := Cmd(&mockServer{})
			require.NoError(t, err)

			startCmd.SetArgs(append([]string{"--" + rpHostFlagName, randomURL()}, tc.args...))

			err = startCmd.Execute()
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

func TestStartRelyingPartyRequests(t *testing.T) {
	const (
		issuerID  = "http://issuer.example.com"
		goodToken = "ABCD"
	)

	km, err := kms.Generate(jose.ES256)
	require.NoError(t, err)

	prov, err := context.New(
		context.WithStorageProvider(mem.NewProvider()),
		context.WithKeyMaterial(km),
		context.WithHMACSecret([]byte("dev_secret_change_me")),
		context.WithRelyingParties(relyingparty.Default),
		context.WithIssuerID(issuerID),
	)
	require.NoError(t, err)

	keySetServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(km.PublicKeySet()))
	}))
	defer keySetServer.Close()

	u, err := prov.UserStore().Enroll("2005-01-01")
	require.NoError(t, err)

	iss, err := issuer.New(prov)
	require.NoError(t, err)

	issued, err := iss.Issue(u.ID, relyingparty.Default.ID, []string{"age_over_18"})
	require.NoError(t, err)

	testHostURL := randomURL()

	go func() {
		parameters := &rpParameters{
			server:           &HTTPServer{},
			host:             testHostURL,
			token:            goodToken,
			expectedIssuer:   issuerID,
			rpID:             relyingparty.Default.ID,
			jwksURL:          keySetServer.URL,
			jwksCacheTTL:     time.Minute,
			jwksFetchRetries: 1,
		}

		err := startRelyingParty(parameters)
		require.FailNow(t, rpUnexpectedExitErrMsg+": "+err.Error())
	}()

	require.NoError(t, listenFor(testHostURL))

	t.Run("test verify - success", func(t *testing.T) {
		status, body := send(t, "http://"+testHostURL+"/verify", "Bearer "+goodToken,
			fmt.Sprintf(`{"assertion":%q}`, issued.Assertion))
		require.Equal(t, http.StatusOK, status)
		require.Contains(t, string(body), `"valid":true`)
		require.Contains(t, string(body), issued.PPID)
	})

	t.Run("test verify - request audience ignored", func(t *testing.T) {
		status, _ := send(t, "http://"+testHostURL+"/verify", "Bearer "+goodToken,
			fmt.Sprintf(`{"assertion":%q,"audience":"com.example.other"}`, issued.Assertion))
		require.Equal(t, http.StatusOK, status)
	})

	t.Run("test verify - invalid assertion", func(t *testing.T) {
		status, body := send(t, "http://"+testHostURL+"/verify", "Bearer "+goodToken, `{"assertion":"a.b.c"}`)
		require.Equal(t, http.StatusBadRequest, status)
		require.Contains(t, string(body), `"valid":false`)
	})

	t.Run("test health - without token", func(t *testing.T) {
		resp, err := http.Get("http://" + testHostURL + "/health") // nolint:noctx
		require.NoError(t, err)
		require.NoError(t, resp.Body.Close())
		require.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("test verify - unauthorized", func(t *testing.T) {
		status, _ := send(t, "http://"+testHostURL+"/verify", "Bearer BCDE",
			fmt.Sprintf(`{"assertion":%q}`, issued.Assertion))
		require.Equal(t, http.StatusUnauthorized, status)
	})
}

func send(t *testing.T, url, authorizationHdr, body string) (int, []byte) {
	t.Helper()

	r, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	require.NoError(t, err)

	r.Header.Add("Content-Type", "application/json")

	if authorizationHdr != "" {
		r.Header.Add("Authorization", authorizationHdr)
	}

	resp, err := http.DefaultClient.Do(r)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, resp.Body.Close())
	}()

	response, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, response
}

func listenFor(host string) error {
	timeout := time.After(10 * time.Second)

	for {
		select {
		case <-timeout:
			return fmt.Errorf("timeout: %s is not available", host)
		default:
			conn, err := net.Dial("tcp", host)
			if err != nil {
				continue
			}

			return conn.Close()
		}
	}
}

func TestCreateContext(t *testing.T) {
	t.Run("test create context - redacted errors", func(t *testing.T) {
		ctx, err := createContext(&rpParameters{
			jwksURL:      "http://localhost/.well-known/jwks.json",
			jwksCacheTTL: time.Minute,
			redactErrors: true,
		})
		require.NoError(t, err)
		require.True(t, ctx.RedactErrors())
		require.NotNil(t, ctx.KeyResolver())
	})

	t.Run("test create context - defaults", func(t *testing.T) {
		ctx, err := createContext(&rpParameters{
			jwksURL:      "http://localhost/.well-known/jwks.json",
			jwksCacheTTL: time.Minute,
		})
		require.NoError(t, err)
		require.False(t, ctx.RedactErrors())
	})
}
