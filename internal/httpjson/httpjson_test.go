package httpjson

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostSendsHeadersAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "secret", r.Header.Get("X-Key"))
		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		json.NewEncoder(w).Encode(map[string]string{"echo": in["say"]})
	}))
	defer srv.Close()

	var out map[string]string
	err := Post(context.Background(), NewClient(0, time.Second), srv.URL, map[string]string{"X-Key": "secret"}, map[string]string{"say": "hi"}, &out)
	require.NoError(t, err)
	assert.Equal(t, "hi", out["echo"])
}

func TestPostStatusErrorIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(strings.Repeat("x", 2*maxErrorBody)))
	}))
	defer srv.Close()

	err := Post(context.Background(), srv.Client(), srv.URL, nil, struct{}{}, &struct{}{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Len(t, se.Body, maxErrorBody)
}

func TestNewClientFallback(t *testing.T) {
	assert.Equal(t, 5*time.Second, NewClient(0, 5*time.Second).Timeout)
	assert.Equal(t, time.Second, NewClient(time.Second, 5*time.Second).Timeout)
}
