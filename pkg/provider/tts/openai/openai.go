// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Replies are requested in raw PCM response format and relayed to the
// caller chunk by chunk as the HTTP body streams in, so playback starts
// well before synthesis finishes.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voxterra/maitred/pkg/provider/tts"
	"github.com/voxterra/maitred/pkg/types"
)

// chunkSize is the PCM slice size relayed per channel send. 8 KiB of
// 24 kHz 16-bit mono is roughly 170 ms of audio.
const chunkSize = 8192

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI TTS Provider.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{client: oai.NewClient(reqOpts...), model: model}, nil
}

// SynthesizeStream implements tts.Provider.
func (p *Provider) SynthesizeStream(ctx context.Context, text string, profile types.VoiceProfile) (<-chan []byte, error) {
	if text == "" {
		return nil, fmt.Errorf("openai: empty synthesis text")
	}

	voice := profile.Voice
	if voice == "" {
		voice = "alloy"
	}

	params := oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Voice:          oai.AudioSpeechNewParamsVoice(voice),
		Input:          text,
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	}
	if profile.Speed > 0 && profile.Speed != 1.0 {
		params.Speed = param.NewOpt(profile.Speed)
	}

	resp, err := p.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: speech synthesis: %w", err)
	}

	ch := make(chan []byte, 8)
	go func() {
		defer close(ch)
		defer resp.Body.Close()

		for {
			buf := make([]byte, chunkSize)
			n, readErr := resp.Body.Read(buf)
			if n > 0 {
				select {
				case ch <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if readErr != nil {
				return
			}
		}
	}()
	return ch, nil
}

// Close implements tts.Provider. The underlying HTTP client needs no
// explicit teardown.
func (p *Provider) Close() error {
	return nil
}
