package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-resty/resty/v2"

	"ytgate/internal/config"
)

// ErrResolveFailed wraps any upstream failure to turn a query into a stream
// descriptor.
var ErrResolveFailed = errors.New("media resolution failed")

// StreamInfo is the descriptor returned by the upstream resolver. It is
// passed through to the client verbatim.
type StreamInfo struct {
	Title          string `json:"title"`
	VideoID        string `json:"video_id"`
	VideoURL       string `json:"video_url"`
	Thumbnail      string `json:"thumbnail"`
	AudioStreamURL string `json:"audio_stream_url"`
}

// Resolver turns a free-text search query into a playable stream descriptor.
type Resolver interface {
	Resolve(ctx context.Context, query string) (*StreamInfo, error)
}

// HTTPResolver calls the upstream media-resolution service over HTTP,
// optionally through an outbound proxy.
type HTTPResolver struct {
	client  *resty.Client
	baseURL string
	logger  *slog.Logger
}

// NewHTTPResolver creates a resolver from the media configuration.
func NewHTTPResolver(cfg config.MediaConfig, logger *slog.Logger) *HTTPResolver {
	client := resty.New().SetTimeout(cfg.TimeoutDuration)
	if cfg.Proxy != "" {
		client.SetProxy(cfg.Proxy)
	}
	return &HTTPResolver{
		client:  client,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger.With("component", "media"),
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, query string) (*StreamInfo, error) {
	var info StreamInfo
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParam("query", query).
		SetResult(&info).
		Get(r.baseURL + "/resolve")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResolveFailed, err)
	}
	if resp.IsError() {
		r.logger.Warn("Upstream resolver returned an error", "status", resp.StatusCode())
		return nil, fmt.Errorf("%w: upstream returned status %d", ErrResolveFailed, resp.StatusCode())
	}
	return &info, nil
}
