package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nidhogg/brainstorm/internal/httpjson"
)

const defaultTimeout = 120 * time.Second

// StatusError is a non-200 reply from a provider API.
type StatusError struct {
	Provider string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: API error %d: %s", e.Provider, e.Code, e.Body)
}

func newClient(timeout time.Duration) *http.Client {
	return httpjson.NewClient(timeout, defaultTimeout)
}

// postJSON posts in to url and tags a failed status with the provider id.
func postJSON(ctx context.Context, client *http.Client, providerID, url string, headers map[string]string, in, out any) error {
	err := httpjson.Post(ctx, client, url, headers, in, out)
	var se *httpjson.StatusError
	if errors.As(err, &se) {
		return &StatusError{Provider: providerID, Code: se.Code, Body: se.Body}
	}
	return err
}
