/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package issuer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/gorilla/mux"
	"github.com/hyperledger/aries-framework-go/component/storageutil/mem"
	"github.com/stretchr/testify/require"

	"github.com/agevault/agevault/pkg/controller/command"
	cmdissuer "github.com/agevault/agevault/pkg/controller/command/issuer"
	"github.com/agevault/agevault/pkg/controller/rest"
	"github.com/agevault/agevault/pkg/framework/context"
	"github.com/agevault/agevault/pkg/kms"
	"github.com/agevault/agevault/pkg/store/relyingparty"
)

func newOperation(t *testing.T) *Operation {
	t.Helper()

	km, err := kms.Generate(jose.ES256)
	require.NoError(t, err)

	prov, err := context.New(
		context.WithStorageProvider(mem.NewProvider()),
		context.WithKeyMaterial(km),
		context.WithHMACSecret([]byte("dev_secret_change_me")),
		context.WithRelyingParties(relyingparty.Default),
		context.WithIssuerID("http://localhost:4001"),
		context.WithClock(func() time.Time { return time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	op, err := New(prov)
	require.NoError(t, err)

	return op
}

func TestNew(t *testing.T) {
	t.Run("test new - success", func(t *testing.T) {
		op := newOperation(t)
		require.Len(t, op.GetRESTHandlers(), 6)
	})

	t.Run("test new - command failure", func(t *testing.T) {
		prov, err := context.New()
		require.NoError(t, err)

		_, err = New(prov)
		require.Error(t, err)
		require.Contains(t, err.Error(), "create issuer command")
	})
}

func TestOperation_Flow(t *testing.T) {
	op := newOperation(t)

	t.Run("test health", func(t *testing.T) {
		buf, code, err := sendRequestToHandler(lookupHandler(t, op, HealthPath, http.MethodGet), nil, HealthPath)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, code)
		require.JSONEq(t, `{"ok":true,"iss":"http://localhost:4001"}`, buf.String())
	})

	t.Run("test key set", func(t *testing.T) {
		buf, code, err := sendRequestToHandler(lookupHandler(t, op, KeySetPath, http.MethodGet), nil, KeySetPath)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, code)

		var keySet jose.JSONWebKeySet
		require.NoError(t, json.Unmarshal(buf.Bytes(), &keySet))
		require.Len(t, keySet.Keys, 1)
	})

	var enrolled cmdissuer.EnrollResponse

	t.Run("test enroll", func(t *testing.T) {
		handler := lookupHandler(t, op, EnrollPath, http.MethodPost)

		buf, err := getSuccessResponseFromHandler(handler, bytes.NewBufferString(`{"dob":"2005-01-01"}`), EnrollPath)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(buf.Bytes(), &enrolled))
		require.NotEmpty(t, enrolled.UserID)

		buf, code, err := sendRequestToHandler(handler, nil, EnrollPath)
		require.NoError(t, err)
		require.Equal(t, http.StatusBadRequest, code)
		verifyError(t, cmdissuer.InvalidRequestErrorCode, "dob (YYYY-MM-DD) required", buf.Bytes())
	})

	var issued cmdissuer.IssueTokenResponse

	t.Run("test issue token", func(t *testing.T) {
		handler := lookupHandler(t, op, IssueTokenPath, http.MethodPost)

		request := fmt.Sprintf(`{"user_id":%q,"rp_id":"com.example.shop","claims":["age_over_18","age_over_21"]}`,
			enrolled.UserID)

		buf, err := getSuccessResponseFromHandler(handler, bytes.NewBufferString(request), IssueTokenPath)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(buf.Bytes(), &issued))
		require.NotEmpty(t, issued.Assertion)
		require.NotEmpty(t, issued.NetworkToken)
	})

	t.Run("test issue token - not found", func(t *testing.T) {
		handler := lookupHandler(t, op, IssueTokenPath, http.MethodPost)

		buf, code, err := sendRequestToHandler(handler,
			bytes.NewBufferString(`{"user_id":"usr_x","rp_id":"com.example.shop"}`), IssueTokenPath)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, code)
		verifyError(t, cmdissuer.UnknownUserErrorCode, "unknown user_id", buf.Bytes())

		request := fmt.Sprintf(`{"user_id":%q,"rp_id":"com.unknown"}`, enrolled.UserID)

		buf, code, err = sendRequestToHandler(handler, bytes.NewBufferString(request), IssueTokenPath)
		require.NoError(t, err)
		require.Equal(t, http.StatusNotFound, code)
		verifyError(t, cmdissuer.UnknownRelyingPartyErrorCode, "unknown rp_id", buf.Bytes())
	})

	t.Run("test introspect and revoke", func(t *testing.T) {
		introspect := lookupHandler(t, op, IntrospectPath, http.MethodPost)
		revoke := lookupHandler(t, op, RevokePath, http.MethodPost)
		request := fmt.Sprintf(`{"network_token":%q}`, issued.NetworkToken)

		buf, err := getSuccessResponseFromHandler(introspect, bytes.NewBufferString(request), IntrospectPath)
		require.NoError(t, err)
		require.Contains(t, buf.String(), `"active":true`)

		buf, err = getSuccessResponseFromHandler(revoke, bytes.NewBufferString(request), RevokePath)
		require.NoError(t, err)
		require.JSONEq(t, `{"revoked":true}`, buf.String())

		buf, err = getSuccessResponseFromHandler(introspect, bytes.NewBufferString(request), IntrospectPath)
		require.NoError(t, err)
		require.JSONEq(t, `{"active":false}`, buf.String())

		buf, err = getSuccessResponseFromHandler(introspect, nil, IntrospectPath)
		require.NoError(t, err)
		require.JSONEq(t, `{"active":false}`, buf.String())
	})
}

func TestResponseModels(t *testing.T) {
	op := newOperation(t)

	t.Run("test health model", func(t *testing.T) {
		buf, err := getSuccessResponseFromHandler(lookupHandler(t, op, HealthPath, http.MethodGet), nil, HealthPath)
		require.NoError(t, err)

		var res healthRes
		require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
		require.True(t, res.OK)
		require.Equal(t, "http://localhost:4001", res.Issuer)
	})

	t.Run("test key set model", func(t *testing.T) {
		buf, err := getSuccessResponseFromHandler(lookupHandler(t, op, KeySetPath, http.MethodGet), nil, KeySetPath)
		require.NoError(t, err)

		var res keySetRes
		require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
		require.Len(t, res.Keys, 1)
		require.Equal(t, "sig", res.Keys[0].Use)
	})

	t.Run("test enroll model", func(t *testing.T) {
		buf, err := getSuccessResponseFromHandler(lookupHandler(t, op, EnrollPath, http.MethodPost),
			bytes.NewBufferString(`{"dob":"2005-01-01"}`), EnrollPath)
		require.NoError(t, err)

		var res enrollRes
		require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
		require.NotEmpty(t, res.UserID)
	})

	t.Run("test introspect model", func(t *testing.T) {
		buf, err := getSuccessResponseFromHandler(lookupHandler(t, op, IntrospectPath, http.MethodPost),
			bytes.NewBufferString(`{"network_token":"unknown"}`), IntrospectPath)
		require.NoError(t, err)

		var res introspectRes
		require.NoError(t, json.Unmarshal(buf.Bytes(), &res))
		require.False(t, res.Active)
		require.Nil(t, res.ExpiresAt)
	})
}

func TestOperation_ExecuteError(t *testing.T) {
	op := &Operation{command: &mockIssuerCommand{}}
	op.registerHandler()

	buf, code, err := sendRequestToHandler(lookupHandler(t, op, RevokePath, http.MethodPost), nil, RevokePath)
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, code)
	verifyError(t, cmdissuer.RevokeErrorCode, "store unavailable", buf.Bytes())
}

func lookupHandler(t *testing.T, op *Operation, path, method string) rest.Handler {
	t.Helper()

	handlers := op.GetRESTHandlers()
	require.NotEmpty(t, handlers)

	for _, h := range handlers {
		if h.Path() == path && h.Method() == method {
			return h
		}
	}

	require.Fail(t, "unable to find handler")

	return nil
}

// getSuccessResponseFromHandler reads response from given http handle func.
// expects http status OK.
func getSuccessResponseFromHandler(handler rest.Handler, requestBody io.Reader, path string) (*bytes.Buffer, error) {
	response, httpCode, err := sendRequestToHandler(handler, requestBody, path)
	if err != nil {
		return nil, err
	}

	if httpCode != http.StatusOK {
		return nil, fmt.Errorf("http request: expected=%d actual=%d body=%s", http.StatusOK, httpCode, response)
	}

	return response, nil
}

func sendRequestToHandler(handler rest.Handler, requestBody io.Reader, path string) (*bytes.Buffer, int, error) {
	// prepare request
	req, err := http.NewRequest(handler.Method(), path, requestBody)
	if err != nil {
		return nil, 0, err
	}

	// prepare router
	router := mux.NewRouter()

	router.HandleFunc(handler.Path(), handler.Handle()).Methods(handler.Method())

	// create a ResponseRecorder (which satisfies http.ResponseWriter) to record the response.
	rr := httptest.NewRecorder()

	// serve http on given response and request
	router.ServeHTTP(rr, req)

	return rr.Body, rr.Code, nil
}

func verifyError(t *testing.T, expectedCode command.Code, expectedMsg string, data []byte) {
	t.Helper()

	// Parser generic error response
	errResponse := struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}{}
	err := json.Unmarshal(data, &errResponse)
	require.NoError(t, err)

	// verify response
	require.EqualValues(t, expectedCode, errResponse.Code)
	require.NotEmpty(t, errResponse.Message)

	if expectedMsg != "" {
		require.Contains(t, errResponse.Message, expectedMsg)
	}
}

type mockIssuerCommand struct{}

func (m *mockIssuerCommand) Health(rw io.Writer, req io.Reader) command.Error {
	return nil
}

func (m *mockIssuerCommand) GetKeySet(rw io.Writer, req io.Reader) command.Error {
	return nil
}

func (m *mockIssuerCommand) Enroll(rw io.Writer, req io.Reader) command.Error {
	return nil
}

func (m *mockIssuerCommand) IssueToken(rw io.Writer, req io.Reader) command.Error {
	return nil
}

func (m *mockIssuerCommand) Introspect(rw io.Writer, req io.Reader) command.Error {
	return nil
}

func (m *mockIssuerCommand) Revoke(rw io.Writer, req io.Reader) command.Error {
	return command.NewExecuteError(cmdissuer.RevokeErrorCode, fmt.Errorf("store unavailable"))
}
