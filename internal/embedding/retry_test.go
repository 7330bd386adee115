package embedding

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostJSON_RetriesRateLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	var resp struct {
		OK bool `json:"ok"`
	}
	err := postJSON(context.Background(), srv.Client(), srv.URL, "key",
		map[string]string{"q": "x"}, &resp)
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, 2, calls)
}

func TestPostJSON_RetriesServerErrorsUpToLimit(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := postJSON(context.Background(), srv.Client(), srv.URL, "",
		map[string]string{}, &struct{}{})
	require.Error(t, err)
	// Initial attempt plus maxRetries.
	assert.Equal(t, 1+maxRetries, calls)
}

func TestPostJSON_ClientErrorIsPermanent(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`bad input`))
	}))
	defer srv.Close()

	err := postJSON(context.Background(), srv.Client(), srv.URL, "",
		map[string]string{}, &struct{}{})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "bad input")
}

func TestPostJSON_SendsAuthHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	err := postJSON(context.Background(), srv.Client(), srv.URL, "secret",
		map[string]string{}, &struct{}{})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
}
