package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wall.svg")
	require.NoError(t, os.WriteFile(path, []byte("<svg/>"), 0o644))

	data, err := Fetch(context.Background(), path, 0)
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))

	data, err = Fetch(context.Background(), "file://"+path, 0)
	require.NoError(t, err)
	assert.Equal(t, "<svg/>", string(data))

	_, err = Fetch(context.Background(), filepath.Join(t.TempDir(), "absent"), 0)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFetch_HTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/calibration.json":
			w.Write([]byte(`{"perspective_transform":[[1,0,0],[0,1,0],[0,0,1]]}`))
		case "/slow":
			select {
			case <-time.After(2 * time.Second):
			case <-r.Context().Done():
			}
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	data, err := Fetch(context.Background(), srv.URL+"/calibration.json", time.Second)
	require.NoError(t, err)
	assert.Contains(t, string(data), "perspective_transform")

	_, err = Fetch(context.Background(), srv.URL+"/missing", time.Second)
	assert.ErrorContains(t, err, "HTTP 404")

	_, err = Fetch(context.Background(), srv.URL+"/slow", 50*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestFetch_Empty(t *testing.T) {
	_, err := Fetch(context.Background(), "", 0)
	assert.Error(t, err)
}

func TestIsURL(t *testing.T) {
	assert.True(t, IsURL("https://walls.example/board.svg"))
	assert.True(t, IsURL("http://localhost/x"))
	assert.False(t, IsURL("/srv/walls/board.svg"))
	assert.False(t, IsURL("file:///srv/x"))
}
