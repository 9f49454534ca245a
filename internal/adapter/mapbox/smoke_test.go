//go:build mapbox

package mapbox

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests hit the real Mapbox API and require a valid MAPBOX_TOKEN env var.
// Run with: go test -tags=mapbox ./internal/adapter/mapbox/ -v -count=1

func smokeClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("MAPBOX_TOKEN")
	if token == "" {
		t.Fatal("MAPBOX_TOKEN must be set to run smoke tests")
	}
	return NewClient(token, 10*time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSmoke_Locate(t *testing.T) {
	c := smokeClient(t)

	place, err := c.Locate(context.Background(), "Belo Horizonte", "MG")
	require.NoError(t, err)

	assert.InDelta(t, -19.92, place.Lat, 0.2, "lat should be near Belo Horizonte")
	assert.InDelta(t, -43.94, place.Lon, 0.2, "lon should be near Belo Horizonte")
	assert.Equal(t, "Belo Horizonte", place.Name)
	assert.Greater(t, place.Relevance, 0.5)
}

func TestSmoke_Locate_Nonexistent(t *testing.T) {
	c := smokeClient(t)

	_, err := c.Locate(context.Background(), "XYZNONEXISTENT99", "ZZ")
	assert.ErrorIs(t, err, ErrNotFound)
}
