package salesforce

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gosf "github.com/k-capehart/go-salesforce/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler, opts ...ClientOption) Client {
	t.Helper()
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	sf, err := gosf.Init(gosf.Creds{
		AccessToken: "test-token",
		Domain:      ts.URL,
	},
		gosf.WithValidateAuthentication(false),
		gosf.WithRoundTripper(http.DefaultTransport),
	)
	require.NoError(t, err)
	return NewClient(sf, opts...)
}

func TestClient_Query(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/query")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"totalSize": 1,
			"done":      true,
			"records": []map[string]any{{
				"attributes":           map[string]any{"type": "Account"},
				"Id":                   "001xx",
				"Name":                 "Acme Air LLC",
				"Website":              "https://acmeair.com",
				"Acquisition_Score__c": 72,
				"Recommendation__c":    "MEDIUM_PRIORITY",
			}},
		})
	}))

	var accounts []Account
	require.NoError(t, c.Query(context.Background(), "SELECT Id FROM Account", &accounts))
	require.Len(t, accounts, 1)
	assert.Equal(t, "001xx", accounts[0].ID)
	assert.Equal(t, "Acme Air LLC", accounts[0].Name)
	assert.Equal(t, "MEDIUM_PRIORITY", accounts[0].Recommendation)
}

func TestClient_Query_Error(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid SOQL", "errorCode": "MALFORMED_QUERY"},
		})
	}))

	var accounts []Account
	err := c.Query(context.Background(), "NOT SOQL", &accounts)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: query")
}

func TestClient_InsertOne(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		assert.Contains(t, r.URL.Path, "/sobjects/Account")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{"id": "001new", "success": true, "errors": []any{}})
	}))

	id, err := c.InsertOne(context.Background(), "Account", map[string]any{"Name": "Acme Air LLC"})
	require.NoError(t, err)
	assert.Equal(t, "001new", id)
}

func TestClient_InsertOne_Rejected(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "",
			"success": false,
			"errors":  []map[string]any{{"message": "required field missing"}},
		})
	}))

	_, err := c.InsertOne(context.Background(), "Account", map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert Account failed")
}

func TestClient_UpdateOne(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	fields := map[string]any{FieldAcquisitionScore: 81}
	require.NoError(t, c.UpdateOne(context.Background(), "Account", "001xx", fields))
	assert.NotContains(t, fields, "Id", "caller's map must not be modified")
}

func TestClient_UpdateOne_Error(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"message": "invalid field", "errorCode": "INVALID_FIELD"},
		})
	}))

	err := c.UpdateOne(context.Background(), "Account", "001xx", map[string]any{"Bogus__c": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: update Account 001xx")
}

func TestWithRateLimit(t *testing.T) {
	c := NewClient(nil, WithRateLimit(5)).(*sfClient)
	require.NotNil(t, c.limiter)
	assert.InDelta(t, 5.0, float64(c.limiter.Limit()), 0.001)
	assert.Equal(t, 5, c.limiter.Burst())

	c = NewClient(nil, WithRateLimit(5), WithRateLimit(0)).(*sfClient)
	assert.Nil(t, c.limiter)
}

func TestRateLimit_ContextCanceled(t *testing.T) {
	c := NewClient(nil, WithRateLimit(0.001)).(*sfClient)
	// Drain the single burst token.
	require.NoError(t, c.wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := c.Query(ctx, "SELECT Id FROM Account", &[]Account{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sf: rate limit")
}
