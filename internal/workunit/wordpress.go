package workunit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/artisanal-iq/wordpress-content-generator/internal/domain"
	redisstore "github.com/artisanal-iq/wordpress-content-generator/internal/redis"
	"github.com/artisanal-iq/wordpress-content-generator/internal/version"
	"github.com/artisanal-iq/wordpress-content-generator/pkg/retry"
)

// WordPressConfig holds REST API connection details. Password is an
// application password, not the account password.
type WordPressConfig struct {
	BaseURL  string
	Username string
	Password string
}

// publishInput is the slice of the input snapshot the publisher needs.
type publishInput struct {
	ContentID string `json:"content_id"`
	Title     string `json:"title"`
	Slug      string `json:"slug"`
	FinalHTML string `json:"final_text"`
	PrevStage struct {
		ImageURL string `json:"image_url"`
		AltText  string `json:"alt_text"`
	} `json:"prev_output"`
}

// wpPostRequest is the WP REST API post-creation body.
type wpPostRequest struct {
	Title         string `json:"title"`
	Slug          string `json:"slug,omitempty"`
	Content       string `json:"content"`
	Status        string `json:"status"`
	FeaturedMedia int64  `json:"featured_media,omitempty"`
}

type wpPostResponse struct {
	ID   int64  `json:"id"`
	Link string `json:"link"`
}

type wpMediaResponse struct {
	ID int64 `json:"id"`
}

// WordPressPublisher is the terminal work unit: it sideloads the featured
// image (if any) into the media library and creates the post. The Redis
// rate limiter protects the WordPress API from the orchestrator's worker
// pool; being limited surfaces as a transient failure so the scheduler
// backs off.
type WordPressPublisher struct {
	cfg     WordPressConfig
	client  *http.Client
	limiter redisstore.RateLimiter // nil = unlimited
}

// NewWordPressPublisher builds the publisher work unit.
func NewWordPressPublisher(cfg WordPressConfig, limiter redisstore.RateLimiter, client *http.Client) *WordPressPublisher {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &WordPressPublisher{cfg: cfg, client: client, limiter: limiter}
}

func (p *WordPressPublisher) Stage() string { return string(domain.ContentPublish) }

func (p *WordPressPublisher) Invoke(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	ctx, span := otel.Tracer("workunit").Start(ctx, "wordpress.publish")
	defer span.End()

	var in publishInput
	if err := json.Unmarshal(input, &in); err != nil {
		return nil, &domain.StageError{Kind: domain.ErrPermanent, Message: fmt.Sprintf("invalid publish input: %v", err)}
	}
	if in.Title == "" {
		return nil, &domain.StageError{Kind: domain.ErrPermanent, Message: "publish input missing required field 'title'"}
	}
	if in.FinalHTML == "" {
		return nil, &domain.StageError{Kind: domain.ErrPermanent, Message: "publish input missing final text"}
	}

	span.SetAttributes(attribute.String("content.id", in.ContentID))

	if p.limiter != nil {
		allowed, err := p.limiter.Allow(ctx, "wordpress")
		if err != nil {
			// Limiter failure must not block publishing; log-free allow.
			allowed = true
		}
		if !allowed {
			err := &domain.StageError{Kind: domain.ErrTransient, Message: "wordpress rate limit reached"}
			span.SetStatus(codes.Error, "rate limited")
			return nil, err
		}
	}

	var mediaID int64
	if in.PrevStage.ImageURL != "" {
		// The media endpoint is flaky under load; retry the sideload a
		// couple of times before failing the whole attempt.
		err := retry.Do(ctx, retry.Config{MaxAttempts: 3, BaseDelay: 2 * time.Second}, func() error {
			id, err := p.sideloadMedia(ctx, in.PrevStage.ImageURL, in.PrevStage.AltText)
			if err != nil {
				return err
			}
			mediaID = id
			return nil
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "media sideload failed")
			return nil, &domain.StageError{Kind: domain.ErrTransient, Message: fmt.Sprintf("media sideload: %v", err)}
		}
	}

	post := wpPostRequest{
		Title:         in.Title,
		Slug:          in.Slug,
		Content:       in.FinalHTML,
		Status:        "publish",
		FeaturedMedia: mediaID,
	}
	body, _ := json.Marshal(post)

	resp, err := p.do(ctx, http.MethodPost, p.apiURL("posts"), "application/json", bytes.NewReader(body))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "post creation failed")
		return nil, &domain.StageError{Kind: domain.ErrTransient, Message: fmt.Sprintf("wordpress post: %v", err)}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	switch {
	case resp.StatusCode == http.StatusCreated || resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		err := &domain.StageError{Kind: domain.ErrPermanent, Message: fmt.Sprintf("wordpress auth rejected (status %d)", resp.StatusCode)}
		span.SetStatus(codes.Error, "auth rejected")
		return nil, err
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError:
		err := &domain.StageError{Kind: domain.ErrTransient, Message: fmt.Sprintf("wordpress returned status %d", resp.StatusCode)}
		span.SetStatus(codes.Error, "transient wordpress error")
		return nil, err
	default:
		err := &domain.StageError{Kind: domain.ErrPermanent, Message: fmt.Sprintf("wordpress rejected post (status %d): %s", resp.StatusCode, truncate(raw, 200))}
		span.SetStatus(codes.Error, "post rejected")
		return nil, err
	}

	var created wpPostResponse
	if err := json.Unmarshal(raw, &created); err != nil {
		return nil, &domain.StageError{Kind: domain.ErrPermanent, Message: fmt.Sprintf("malformed wordpress response: %v", err)}
	}

	out, _ := json.Marshal(map[string]any{
		"wp_post_id": created.ID,
		"wp_url":     created.Link,
	})
	return out, nil
}

// sideloadMedia downloads the image and uploads it to the media library.
func (p *WordPressPublisher) sideloadMedia(ctx context.Context, imageURL, altText string) (int64, error) {
	img, err := p.do(ctx, http.MethodGet, imageURL, "", nil)
	if err != nil {
		return 0, fmt.Errorf("fetch image: %w", err)
	}
	defer img.Body.Close()
	if img.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch image: status %d", img.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(img.Body, 16<<20))
	if err != nil {
		return 0, fmt.Errorf("read image: %w", err)
	}

	contentType := img.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL("media"), bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Content-Disposition", `attachment; filename="featured-image"`)
	if altText != "" {
		req.Header.Set("X-WP-Alt-Text", altText)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upload media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("upload media: status %d", resp.StatusCode)
	}

	var media wpMediaResponse
	if err := json.NewDecoder(resp.Body).Decode(&media); err != nil {
		return 0, fmt.Errorf("decode media response: %w", err)
	}
	return media.ID, nil
}

func (p *WordPressPublisher) do(ctx context.Context, method, url, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(url, strings.TrimSuffix(p.cfg.BaseURL, "/")) {
		req.SetBasicAuth(p.cfg.Username, p.cfg.Password)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", version.String())
	return p.client.Do(req)
}

// apiURL joins the site base URL with a wp/v2 resource path.
func (p *WordPressPublisher) apiURL(resource string) string {
	base := strings.TrimSuffix(p.cfg.BaseURL, "/")
	if !strings.Contains(base, "wp-json/wp/v2") {
		base += "/wp-json/wp/v2"
	}
	return base + "/" + resource
}
