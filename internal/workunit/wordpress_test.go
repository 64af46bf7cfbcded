package workunit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
)

type allowAllLimiter struct{ allowed bool }

func (l allowAllLimiter) Allow(_ context.Context, _ string) (bool, error) { return l.allowed, nil }
func (l allowAllLimiter) Limit() int                                      { return 1 }

func publishInputJSON(title, finalText, imageURL string) json.RawMessage {
	in := map[string]any{
		"content_id": "content-1",
		"title":      title,
		"slug":       "hello-world",
		"final_text": finalText,
	}
	if imageURL != "" {
		in["prev_output"] = map[string]string{"image_url": imageURL, "alt_text": "a golf ball"}
	}
	raw, _ := json.Marshal(in)
	return raw
}

func TestWordPressPublisher_CreatesPost(t *testing.T) {
	var gotAuth, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/wp-json/wp/v2/posts", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		var buf [4096]byte
		n, _ := r.Body.Read(buf[:])
		gotBody = string(buf[:n])
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":42,"link":"https://example.com/hello-world"}`)) //nolint:errcheck
	}))
	t.Cleanup(srv.Close)

	p := NewWordPressPublisher(WordPressConfig{
		BaseURL: srv.URL, Username: "bot", Password: "app-pass",
	}, nil, srv.Client())

	output, err := p.Invoke(context.Background(), publishInputJSON("Hello World", "<p>body</p>", ""))
	require.NoError(t, err)
	assert.JSONEq(t, `{"wp_post_id":42,"wp_url":"https://example.com/hello-world"}`, string(output))
	assert.NotEmpty(t, gotAuth, "post creation uses basic auth")
	assert.Contains(t, gotBody, `"status":"publish"`)
	assert.Contains(t, gotBody, `"slug":"hello-world"`)
}

func TestWordPressPublisher_SideloadsFeaturedImage(t *testing.T) {
	var mediaUploads int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/image.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("jpegbytes")) //nolint:errcheck
		case "/wp-json/wp/v2/media":
			mediaUploads++
			assert.Equal(t, "a golf ball", r.Header.Get("X-WP-Alt-Text"))
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":9}`)) //nolint:errcheck
		case "/wp-json/wp/v2/posts":
			var post wpPostRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&post))
			assert.Equal(t, int64(9), post.FeaturedMedia)
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"id":43,"link":"https://example.com/x"}`)) //nolint:errcheck
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	t.Cleanup(srv.Close)

	p := NewWordPressPublisher(WordPressConfig{BaseURL: srv.URL, Username: "bot", Password: "pw"}, nil, srv.Client())

	_, err := p.Invoke(context.Background(), publishInputJSON("T", "<p>b</p>", srv.URL+"/image.jpg"))
	require.NoError(t, err)
	assert.Equal(t, 1, mediaUploads)
}

func TestWordPressPublisher_MissingTitle_Permanent(t *testing.T) {
	p := NewWordPressPublisher(WordPressConfig{BaseURL: "https://example.com"}, nil, nil)

	_, err := p.Invoke(context.Background(), publishInputJSON("", "<p>b</p>", ""))
	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.ErrPermanent, stageErr.Kind)
}

func TestWordPressPublisher_MissingFinalText_Permanent(t *testing.T) {
	p := NewWordPressPublisher(WordPressConfig{BaseURL: "https://example.com"}, nil, nil)

	_, err := p.Invoke(context.Background(), publishInputJSON("T", "", ""))
	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.ErrPermanent, stageErr.Kind)
}

func TestWordPressPublisher_RateLimited_Transient(t *testing.T) {
	p := NewWordPressPublisher(WordPressConfig{BaseURL: "https://example.com"},
		allowAllLimiter{allowed: false}, nil)

	_, err := p.Invoke(context.Background(), publishInputJSON("T", "<p>b</p>", ""))
	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.ErrTransient, stageErr.Kind)
	assert.Contains(t, stageErr.Message, "rate limit")
}

func TestWordPressPublisher_AuthRejected_Permanent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	p := NewWordPressPublisher(WordPressConfig{BaseURL: srv.URL}, nil, srv.Client())

	_, err := p.Invoke(context.Background(), publishInputJSON("T", "<p>b</p>", ""))
	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.ErrPermanent, stageErr.Kind)
}

func TestWordPressPublisher_ServerError_Transient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	p := NewWordPressPublisher(WordPressConfig{BaseURL: srv.URL}, nil, srv.Client())

	_, err := p.Invoke(context.Background(), publishInputJSON("T", "<p>b</p>", ""))
	var stageErr *domain.StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, domain.ErrTransient, stageErr.Kind)
}
