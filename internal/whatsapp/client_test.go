package whatsapp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientSendText(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("X-Api-Key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":{"fromMe":true,"_serialized":"true_524421234567@c.us_3EB0"}}`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil)
	res, err := client.SendText(context.Background(), ProviderConfig{BaseURL: srv.URL + "/", SessionID: "default", APIKey: "secret"},
		"524421234567@c.us", "hola")
	require.NoError(t, err)

	assert.Equal(t, "/api/sendText", gotPath)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, map[string]any{"chatId": "524421234567@c.us", "text": "hola", "session": "default"}, gotBody)
	assert.Equal(t, "true_524421234567@c.us_3EB0", res.MessageID)
	assert.Contains(t, res.Raw, "_serialized")
}

func TestClientSendMediaRoutesByMimeType(t *testing.T) {
	var paths []string
	var lastFile map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		lastFile, _ = body["file"].(map[string]any)
		_, _ = w.Write([]byte(`{"id":"msg-1"}`))
	}))
	defer srv.Close()

	client := NewClient(time.Second, nil)
	cfg := ProviderConfig{BaseURL: srv.URL, SessionID: "default"}

	_, err := client.SendMedia(context.Background(), cfg, "chat", MediaFile{URL: "https://x/a.png", MimeType: "image/png", FileName: "a.png"}, "")
	require.NoError(t, err)
	res, err := client.SendMedia(context.Background(), cfg, "chat", MediaFile{URL: "https://x/b.pdf", MimeType: "application/pdf", FileName: "b.pdf"}, "estado")
	require.NoError(t, err)

	assert.Equal(t, []string{"/api/sendImage", "/api/sendFile"}, paths)
	assert.Equal(t, "application/pdf", lastFile["mimetype"])
	assert.Equal(t, "b.pdf", lastFile["filename"])
	assert.Equal(t, "https://x/b.pdf", lastFile["url"])
	assert.Equal(t, "msg-1", res.MessageID)
}

func TestClientNonSuccessStatusIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"session not started"}`))
	}))
	defer srv.Close()

	_, err := NewClient(time.Second, nil).SendText(context.Background(), ProviderConfig{BaseURL: srv.URL, SessionID: "s"}, "chat", "x")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusUnprocessableEntity, perr.StatusCode)
	assert.Contains(t, perr.Body, "session not started")
	assert.Equal(t, "/api/sendText", perr.Endpoint)
}

func TestClientTransportErrorIsProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := NewClient(time.Second, nil).SendText(context.Background(), ProviderConfig{BaseURL: url, SessionID: "s"}, "chat", "x")
	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Error(t, perr.Unwrap())
}

func TestParseMessageID(t *testing.T) {
	assert.Equal(t, "abc", parseMessageID([]byte(`{"id":"abc"}`)))
	assert.Equal(t, "ser", parseMessageID([]byte(`{"id":{"_serialized":"ser","id":"inner"}}`)))
	assert.Equal(t, "inner", parseMessageID([]byte(`{"id":{"id":"inner"}}`)))
	assert.Equal(t, "k1", parseMessageID([]byte(`{"key":{"id":"k1"}}`)))
	assert.Equal(t, "", parseMessageID([]byte(`not json`)))
}
