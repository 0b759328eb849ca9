package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int, body string) (*httptest.Server, *sendRequest) {
	t.Helper()
	var got sendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func message() Message {
	return Message{From: "reports@duka.example", To: []string{"owner@duka.example"}, Subject: "Daily report", HTML: "<p>hi</p>"}
}

func TestSendSuccess(t *testing.T) {
	srv, got := newServer(t, http.StatusOK, `{"id":"49a3999c-0ce1-4ea6-ab68-afcd6dc2e794"}`)
	id, err := NewClient(Config{BaseURL: srv.URL, APIKey: "re_test"}).Send(context.Background(), message())
	require.NoError(t, err)
	assert.Equal(t, "49a3999c-0ce1-4ea6-ab68-afcd6dc2e794", id)
	assert.Equal(t, "<p>hi</p>", got.HTML)
	assert.Equal(t, []string{"owner@duka.example"}, got.To)
}

func TestSendErrorFieldIsFailure(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK, `{"id":"","error":{"message":"domain is not verified"}}`)
	_, err := NewClient(Config{BaseURL: srv.URL, APIKey: "re_test"}).Send(context.Background(), message())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "domain is not verified")
}

func TestSendHTTPFailure(t *testing.T) {
	srv, _ := newServer(t, http.StatusUnprocessableEntity, `{"statusCode":422,"name":"validation_error","message":"Invalid to field"}`)
	_, err := NewClient(Config{BaseURL: srv.URL, APIKey: "re_test"}).Send(context.Background(), message())
	var pErr *ProviderError
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, http.StatusUnprocessableEntity, pErr.StatusCode)
	assert.Equal(t, "Invalid to field", pErr.Message)
	assert.Contains(t, err.Error(), "Invalid to field")
}

func TestSendRequiresKey(t *testing.T) {
	_, err := NewClient(Config{BaseURL: "http://unused"}).Send(context.Background(), message())
	require.ErrorIs(t, err, ErrNotConfigured)
}
