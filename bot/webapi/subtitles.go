package webapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultSummarizeTimeout = 60 * time.Second

// SubtitleConfig configures a SubtitleClient.
type SubtitleConfig struct {
	// URL is the summarisation endpoint. Required.
	URL string
	// APIKey, when set, is sent as a bearer token.
	APIKey string
}

// SubtitleClient asks a remote transcription service to summarise the spoken
// content of a video URL. It implements plugin.Subtitler.
type SubtitleClient struct {
	cfg    SubtitleConfig
	client Doer
}

// NewSubtitleClient returns a client using c for transport. A nil c uses
// http.DefaultClient.
func NewSubtitleClient(cfg SubtitleConfig, c Doer) *SubtitleClient {
	if c == nil {
		c = http.DefaultClient
	}
	return &SubtitleClient{cfg: cfg, client: c}
}

// Summarize submits url for transcription and returns the textual summary.
func (s *SubtitleClient) Summarize(ctx context.Context, url string) (string, error) {
	if s.cfg.URL == "" {
		return "", errors.New("no summarisation endpoint configured")
	}
	ctx, cancel := context.WithTimeout(ctx, defaultSummarizeTimeout)
	defer cancel()

	headers := map[string]string{}
	if s.cfg.APIKey != "" {
		headers["Authorization"] = "Bearer " + s.cfg.APIKey
	}
	var body struct {
		Summary string `json:"summary"`
		Error   string `json:"error"`
	}
	req := map[string]string{"url": url}
	if err := postJSON(ctx, s.client, s.cfg.URL, headers, req, &body); err != nil {
		return "", fmt.Errorf("summarise video: %w", err)
	}
	if body.Error != "" {
		return "", fmt.Errorf("summarise video: %s", body.Error)
	}
	summary := strings.TrimSpace(body.Summary)
	if summary == "" {
		return "", errors.New("summarise video: empty summary")
	}
	return summary, nil
}
