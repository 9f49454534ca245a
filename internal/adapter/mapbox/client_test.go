package mapbox

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testToken         = "test-token"
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
)

func testClient(baseURL string) *Client {
	return &Client{
		token:      testToken,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		baseURL:    baseURL,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func TestClient_Locate_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "Belo Horizonte, MG")
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		assert.Equal(t, "br", r.URL.Query().Get("country"))
		assert.Equal(t, "place", r.URL.Query().Get("types"))
		assert.Equal(t, testToken, r.URL.Query().Get("access_token"))

		resp := response{
			Features: []feature{
				{
					Center:    []float64{-43.9378, -19.9208},
					PlaceName: "Belo Horizonte, Minas Gerais, Brasil",
					Text:      "Belo Horizonte",
					Relevance: 0.95,
				},
			},
		}
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	place, err := c.Locate(context.Background(), "Belo Horizonte", "mg")
	require.NoError(t, err)

	assert.Equal(t, -19.9208, place.Lat)
	assert.Equal(t, -43.9378, place.Lon)
	assert.Equal(t, "Belo Horizonte", place.Name)
	assert.Equal(t, "Belo Horizonte, Minas Gerais, Brasil", place.FullName)
	assert.Equal(t, 0.95, place.Relevance)
}

func TestClient_Locate_NoResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{}}))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Locate(context.Background(), "Atlantida", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Locate_LowRelevance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set(headerContentType, contentTypeJSON)
		require.NoError(t, json.NewEncoder(w).Encode(response{Features: []feature{
			{Center: []float64{-47, -22}, Text: "Campinas do Sul", Relevance: 0.3},
		}}))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).Locate(context.Background(), "Campinas", "SP")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_Locate_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Not Authorized"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.token = "bad-token"

	_, err := c.Locate(context.Background(), "Santos", "SP")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestClient_Locate_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	c.httpClient = &http.Client{Timeout: 50 * time.Millisecond}

	_, err := c.Locate(context.Background(), "Santos", "SP")
	require.Error(t, err)
}
