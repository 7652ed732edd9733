package classify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/teslashibe/go-visionapp/pkg/classify"
)

var testImage = []byte{0xFF, 0xD8, 0xFF, 0xD9}

func TestClassificationsOrder(t *testing.T) {
	results := classify.Classifications{
		{Label: "bowl", Confidence: 0.2},
		{Label: "cup", Confidence: 0.7},
		{Label: "mug", Confidence: 0.7},
	}

	first, ok := results.First()
	if !ok || first.Label != "bowl" {
		t.Errorf("First should return the element as returned, got %v", first)
	}

	sorted := results.Sorted()
	if sorted[0].Label != "cup" || sorted[1].Label != "mug" || sorted[2].Label != "bowl" {
		t.Errorf("unexpected sorted order: %v", sorted)
	}
	if results[0].Label != "bowl" {
		t.Error("Sorted must not modify the receiver")
	}

	if len(results.Top(2)) != 2 {
		t.Errorf("expected 2 results from Top(2)")
	}
	if len(results.Top(0)) != 3 {
		t.Errorf("expected all results from Top(0)")
	}

	if _, ok := classify.Classifications(nil).First(); ok {
		t.Error("expected no first element for empty results")
	}
}

func TestMockClassifier(t *testing.T) {
	mock := classify.NewMock()
	ctx := context.Background()

	results, err := mock.Classify(ctx, testImage)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	top, _ := results.First()
	if top.Label != "cup" || top.Confidence != 0.87 {
		t.Errorf("unexpected default result: %v", top)
	}
	if mock.CallCount() != 1 {
		t.Errorf("expected 1 call, got %d", mock.CallCount())
	}
	if mock.Name() != "mock" {
		t.Errorf("expected name mock, got %s", mock.Name())
	}
	_ = mock.Close()
	if !mock.Closed() {
		t.Error("expected mock closed")
	}
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a classifier", func(t *testing.T) {
		if _, err := classify.NewChain(); !errors.Is(err, classify.ErrProviderUnavailable) {
			t.Errorf("expected ErrProviderUnavailable, got %v", err)
		}
	})

	t.Run("falls back on failure", func(t *testing.T) {
		failing := classify.NewMock()
		failing.NameValue = "broken"
		failing.ClassifyFunc = func(ctx context.Context, jpeg []byte) (classify.Classifications, error) {
			return nil, errors.New("boom")
		}
		working := classify.NewMock()

		chain, err := classify.NewChain(failing, working)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		results, err := chain.Classify(ctx, testImage)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Label != "cup" {
			t.Errorf("expected fallback result, got %v", results)
		}
		if failing.CallCount() != 1 || working.CallCount() != 1 {
			t.Error("expected both classifiers to be tried")
		}
		if chain.Name() != "broken>mock" {
			t.Errorf("unexpected chain name %q", chain.Name())
		}
	})

	t.Run("aggregates errors", func(t *testing.T) {
		errA := errors.New("a")
		errB := errors.New("b")
		a := classify.NewMock()
		a.ClassifyFunc = func(ctx context.Context, jpeg []byte) (classify.Classifications, error) { return nil, errA }
		b := classify.NewMock()
		b.ClassifyFunc = func(ctx context.Context, jpeg []byte) (classify.Classifications, error) { return nil, errB }

		chain, _ := classify.NewChain(a, b)
		_, err := chain.Classify(ctx, testImage)

		var chainErr *classify.ChainError
		if !errors.As(err, &chainErr) {
			t.Fatalf("expected ChainError, got %T", err)
		}
		if len(chainErr.Errors) != 2 {
			t.Errorf("expected 2 errors, got %d", len(chainErr.Errors))
		}
		if !errors.Is(err, errB) {
			t.Error("expected ChainError to unwrap to the last error")
		}
	})

	t.Run("rejects empty image", func(t *testing.T) {
		m := classify.NewMock()
		chain, _ := classify.NewChain(m)
		if _, err := chain.Classify(ctx, nil); !errors.Is(err, classify.ErrEmptyImage) {
			t.Errorf("expected ErrEmptyImage, got %v", err)
		}
		if m.CallCount() != 0 {
			t.Error("empty image should not reach classifiers")
		}
	})
}

func TestGemini(t *testing.T) {
	t.Run("requires API key", func(t *testing.T) {
		if _, err := classify.NewGemini(); !errors.Is(err, classify.ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("parses JSON labels", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if !strings.HasSuffix(r.URL.Path, ":generateContent") {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if r.URL.Query().Get("key") != "test-key" {
				t.Errorf("expected API key in query")
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "inline_data") {
				t.Error("expected inline image data in request")
			}

			resp := map[string]interface{}{
				"candidates": []map[string]interface{}{
					{"content": map[string]interface{}{
						"parts": []map[string]string{
							{"text": `{"classifications":[{"label":"coffee mug","confidence":0.91},{"label":"cup","confidence":0.05}]}`},
						},
					}},
				},
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(resp)
		}))
		defer server.Close()

		g, err := classify.NewGemini(
			classify.WithAPIKey("test-key"),
			classify.WithBaseURL(server.URL),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer g.Close()

		results, err := g.Classify(context.Background(), testImage)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(results) != 2 || results[0].Label != "coffee mug" {
			t.Errorf("unexpected results: %v", results)
		}
	})

	t.Run("maps API errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","code":429}}`))
		}))
		defer server.Close()

		g, _ := classify.NewGemini(classify.WithAPIKey("k"), classify.WithBaseURL(server.URL))
		_, err := g.Classify(context.Background(), testImage)

		var apiErr *classify.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if !apiErr.IsRateLimited() {
			t.Errorf("expected rate limit error, got %d", apiErr.StatusCode)
		}
		if apiErr.Message != "quota exceeded" {
			t.Errorf("unexpected message %q", apiErr.Message)
		}
	})
}

func TestOpenAI(t *testing.T) {
	t.Run("requires API key or base URL", func(t *testing.T) {
		if _, err := classify.NewOpenAI(); !errors.Is(err, classify.ErrNoAPIKey) {
			t.Errorf("expected ErrNoAPIKey, got %v", err)
		}
	})

	t.Run("parses chat completion", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/chat/completions" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sk-test" {
				t.Errorf("unexpected auth header %q", got)
			}
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "data:image/jpeg;base64,") {
				t.Error("expected image data URL in request")
			}

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"id": "chatcmpl-1",
				"object": "chat.completion",
				"model": "gpt-4o-mini",
				"choices": [{
					"index": 0,
					"message": {"role": "assistant", "content": "{\"classifications\":[{\"label\":\"banana\",\"confidence\":0.8}]}"},
					"finish_reason": "stop"
				}]
			}`))
		}))
		defer server.Close()

		o, err := classify.NewOpenAI(
			classify.WithAPIKey("sk-test"),
			classify.WithBaseURL(server.URL+"/v1"),
		)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		results, err := o.Classify(context.Background(), testImage)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if results[0].Label != "banana" || results[0].Confidence != 0.8 {
			t.Errorf("unexpected results: %v", results)
		}
	})

	t.Run("maps API errors", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
		}))
		defer server.Close()

		o, _ := classify.NewOpenAI(classify.WithAPIKey("bad"), classify.WithBaseURL(server.URL+"/v1"))
		_, err := o.Classify(context.Background(), testImage)

		var apiErr *classify.APIError
		if !errors.As(err, &apiErr) {
			t.Fatalf("expected APIError, got %v", err)
		}
		if !apiErr.IsUnauthorized() {
			t.Errorf("expected unauthorized, got %d", apiErr.StatusCode)
		}
	})

	t.Run("rejects empty image", func(t *testing.T) {
		o, _ := classify.NewOpenAI(classify.WithAPIKey("k"))
		if _, err := o.Classify(context.Background(), nil); !errors.Is(err, classify.ErrEmptyImage) {
			t.Errorf("expected ErrEmptyImage, got %v", err)
		}
	})
}

func TestONNXRequiresModel(t *testing.T) {
	if _, err := classify.NewONNX(); !errors.Is(err, classify.ErrNoModel) {
		t.Errorf("expected ErrNoModel, got %v", err)
	}
	if _, err := classify.NewONNX(classify.WithModelPath("/nonexistent/model.onnx")); err == nil {
		t.Error("expected error for missing model file")
	}
}

func TestHealth(t *testing.T) {
	ctx := context.Background()

	t.Run("gemini", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet || r.URL.Path != "/models/gemini-2.0-flash" {
				t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
			}
			if r.URL.Query().Get("key") != "good" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":{"message":"API key not valid"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"name":"models/gemini-2.0-flash"}`))
		}))
		defer server.Close()

		g, _ := classify.NewGemini(classify.WithAPIKey("good"), classify.WithBaseURL(server.URL))
		if err := g.Health(ctx); err != nil {
			t.Errorf("expected healthy, got %v", err)
		}

		bad, _ := classify.NewGemini(classify.WithAPIKey("bad"), classify.WithBaseURL(server.URL))
		var apiErr *classify.APIError
		if err := bad.Health(ctx); !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusForbidden {
			t.Errorf("expected 403 APIError, got %v", err)
		}
	})

	t.Run("openai", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/v1/models" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			w.Header().Set("Content-Type", "application/json")
			if r.Header.Get("Authorization") != "Bearer good" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
				return
			}
			_, _ = w.Write([]byte(`{"object":"list","data":[{"id":"gpt-4o-mini","object":"model"}]}`))
		}))
		defer server.Close()

		o, _ := classify.NewOpenAI(classify.WithAPIKey("good"), classify.WithBaseURL(server.URL+"/v1"))
		if err := o.Health(ctx); err != nil {
			t.Errorf("expected healthy, got %v", err)
		}

		bad, _ := classify.NewOpenAI(classify.WithAPIKey("bad"), classify.WithBaseURL(server.URL+"/v1"))
		var apiErr *classify.APIError
		if err := bad.Health(ctx); !errors.As(err, &apiErr) || !apiErr.IsUnauthorized() {
			t.Errorf("expected unauthorized APIError, got %v", err)
		}
	})

	t.Run("chain", func(t *testing.T) {
		errDown := errors.New("model not loaded")
		down := classify.NewMock()
		down.HealthErr = errDown
		up := classify.NewMock()

		chain, _ := classify.NewChain(down, up)
		if err := chain.Health(ctx); err != nil {
			t.Errorf("one healthy member should be enough, got %v", err)
		}

		other := classify.NewMock()
		other.HealthErr = errors.New("offline")
		chain, _ = classify.NewChain(other, down)
		if err := chain.Health(ctx); !errors.Is(err, errDown) {
			t.Errorf("expected error wrapping the last failure, got %v", err)
		}
	})
}
