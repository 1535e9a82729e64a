package webapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const (
	// DefaultBeaconURL is the public NIST randomness beacon's latest pulse.
	DefaultBeaconURL = "https://beacon.nist.gov/beacon/2.0/pulse/last"
	// DefaultCompletionURL is the OpenRouter chat-completion endpoint.
	DefaultCompletionURL = "https://openrouter.ai/api/v1/chat/completions"
	// DefaultModel is the completion model used when the config names none.
	DefaultModel = "cognitivecomputations/dolphin3.0-mistral-24b:free"
)

// ErrNoAPIKey is returned by Complete when the client has no API key and can
// therefore not reach the completion endpoint.
var ErrNoAPIKey = errors.New("no completion API key configured")

// OracleConfig configures an OracleClient. Zero values fall back to the
// public defaults above.
type OracleConfig struct {
	BeaconURL     string
	CompletionURL string
	APIKey        string
	Model         string
	Referer       string
	Title         string
}

// OracleClient talks to two remote services: a public randomness beacon for
// verifiable random pulses and a chat-completion API for generated text. It
// implements plugin.Oracle.
type OracleClient struct {
	cfg    OracleConfig
	client Doer
}

// NewOracleClient returns a client using c for transport. A nil c uses
// http.DefaultClient.
func NewOracleClient(cfg OracleConfig, c Doer) *OracleClient {
	if cfg.BeaconURL == "" {
		cfg.BeaconURL = DefaultBeaconURL
	}
	if cfg.CompletionURL == "" {
		cfg.CompletionURL = DefaultCompletionURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if c == nil {
		c = http.DefaultClient
	}
	return &OracleClient{cfg: cfg, client: c}
}

// Pulse fetches the beacon's latest pulse and returns the leading 64 bits of
// its output value as an integer.
func (o *OracleClient) Pulse(ctx context.Context) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultPulseTimeout)
	defer cancel()

	var body struct {
		Pulse struct {
			OutputValue string `json:"outputValue"`
		} `json:"pulse"`
	}
	if err := getJSON(ctx, o.client, o.cfg.BeaconURL, &body); err != nil {
		return 0, fmt.Errorf("fetch beacon pulse: %w", err)
	}
	hex := body.Pulse.OutputValue
	if len(hex) > 16 {
		hex = hex[:16]
	}
	n, err := strconv.ParseUint(hex, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("parse beacon pulse %q: %w", body.Pulse.OutputValue, err)
	}
	return n, nil
}

// Complete sends prompt to the chat-completion endpoint and returns the
// model's reply with surrounding quotes stripped.
func (o *OracleClient) Complete(ctx context.Context, prompt string) (string, error) {
	if o.cfg.APIKey == "" {
		return "", ErrNoAPIKey
	}
	ctx, cancel := context.WithTimeout(ctx, defaultCompleteTimeout)
	defer cancel()

	req := map[string]any{
		"model": o.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"max_tokens":  200,
		"temperature": 1.1,
		"top_p":       0.9,
	}
	headers := map[string]string{
		"Authorization": "Bearer " + o.cfg.APIKey,
	}
	if o.cfg.Referer != "" {
		headers["HTTP-Referer"] = o.cfg.Referer
	}
	if o.cfg.Title != "" {
		headers["X-Title"] = o.cfg.Title
	}

	var body struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := postJSON(ctx, o.client, o.cfg.CompletionURL, headers, req, &body); err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(body.Choices) == 0 {
		return "", errors.New("chat completion: empty choices")
	}
	text := strings.TrimSpace(body.Choices[0].Message.Content)
	text = strings.Trim(text, `"'`)
	return strings.TrimSpace(text), nil
}
