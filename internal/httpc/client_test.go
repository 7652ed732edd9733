package httpc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetBytes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		w.Write([]byte("frame"))
	}))
	defer srv.Close()

	t.Run("ok", func(t *testing.T) {
		body, err := GetBytes(context.Background(), nil, srv.URL+"/snap")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(body) != "frame" {
			t.Errorf("body = %q, want frame", body)
		}
	})

	t.Run("status error", func(t *testing.T) {
		_, err := GetBytes(context.Background(), srv.Client(), srv.URL+"/missing")
		var se *StatusError
		if !errors.As(err, &se) {
			t.Fatalf("expected *StatusError, got %v", err)
		}
		if se.StatusCode != http.StatusNotFound {
			t.Errorf("status = %d, want 404", se.StatusCode)
		}
	})
}
