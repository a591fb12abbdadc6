package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPImageReader_GetReader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/cat.jpg":
			assert.Equal(t, http.MethodGet, r.Method)
			_, _ = w.Write([]byte("jpeg-bytes"))
		case "/moved.jpg":
			http.Redirect(w, r, "/cat.jpg", http.StatusFound)
		case "/broken.jpg":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	reader := NewHTTPImageReader(srv.Client())

	tcs := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{name: "ok", path: "/cat.jpg", want: "jpeg-bytes"},
		{name: "redirect followed", path: "/moved.jpg", want: "jpeg-bytes"},
		{name: "not found", path: "/missing.jpg", wantErr: true},
		{name: "server error", path: "/broken.jpg", wantErr: true},
	}
	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			rc, err := reader.GetReader(context.Background(), srv.URL+tc.path)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrUnexpectedStatus)
				return
			}
			require.NoError(t, err)
			defer rc.Close()
			b, err := io.ReadAll(rc)
			require.NoError(t, err)
			assert.Equal(t, tc.want, string(b))
		})
	}
}

func TestHTTPImageReader_InvalidURL(t *testing.T) {
	reader := NewHTTPImageReader(nil)

	_, err := reader.GetReader(context.Background(), "not a url")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnexpectedStatus)
}

func TestHTTPImageReader_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewHTTPImageReader(srv.Client()).GetReader(ctx, srv.URL)
	assert.ErrorIs(t, err, context.Canceled)
}
