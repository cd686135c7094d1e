// Package openai provides an STT provider backed by the OpenAI
// transcription API.
//
// Utterance PCM is wrapped in a RIFF/WAV container and submitted as a
// single batch request. Domain vocabulary is forwarded through the prompt
// field, which biases Whisper-family models towards the supplied terms.
package openai

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"

	"github.com/voxterra/maitred/pkg/provider/stt"
	"github.com/voxterra/maitred/pkg/types"
)

// bitsPerSample is fixed at 16 for the signed little-endian PCM the
// pipeline carries.
const bitsPerSample = 16

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Provider implements stt.Provider using the OpenAI transcription API.
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

// New constructs a new OpenAI STT Provider.
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

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, pcm []byte, cfg stt.Config) (types.Transcript, error) {
	if len(pcm) == 0 {
		return types.Transcript{}, fmt.Errorf("openai: empty PCM payload")
	}

	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 16000
	}

	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  oai.File(bytes.NewReader(encodeWAV(pcm, sampleRate)), "utterance.wav", "audio/wav"),
	}
	if cfg.Language != "" {
		params.Language = param.NewOpt(cfg.Language)
	}
	if prompt := vocabularyPrompt(cfg.Vocabulary); prompt != "" {
		params.Prompt = param.NewOpt(prompt)
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("openai: transcription: %w", err)
	}

	return types.Transcript{
		Text:     resp.Text,
		Language: cfg.Language,
		Duration: pcmDuration(len(pcm), sampleRate),
	}, nil
}

// Close implements stt.Provider. The underlying HTTP client needs no
// explicit teardown.
func (p *Provider) Close() error {
	return nil
}

// vocabularyPrompt joins the bias vocabulary into a transcription prompt.
// Whisper-family models treat the prompt as preceding context, which nudges
// recognition towards the listed spellings.
func vocabularyPrompt(vocab []string) string {
	if len(vocab) == 0 {
		return ""
	}
	var b bytes.Buffer
	for i, term := range vocab {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(term)
	}
	return b.String()
}

// pcmDuration returns the play length of a 16-bit mono PCM buffer.
func pcmDuration(byteLen, sampleRate int) time.Duration {
	samples := byteLen / 2
	return time.Duration(samples) * time.Second / time.Duration(sampleRate)
}

// encodeWAV wraps raw 16-bit signed little-endian mono PCM in a standard
// RIFF/WAV container suitable for a multipart upload.
func encodeWAV(pcm []byte, sampleRate int) []byte {
	const channels = 1
	byteRate := sampleRate * channels * bitsPerSample / 8
	blockAlign := channels * bitsPerSample / 8
	dataSize := len(pcm)

	buf := make([]byte, 44+dataSize)

	// RIFF chunk descriptor
	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize)) // file size − 8
	copy(buf[8:12], "WAVE")

	// fmt sub-chunk
	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)                 // sub-chunk size (PCM)
	binary.LittleEndian.PutUint16(buf[20:22], 1)                  // audio format: PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(channels))   // num channels
	binary.LittleEndian.PutUint32(buf[24:28], uint32(sampleRate)) // sample rate
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))   // byte rate
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign)) // block align
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)      // bits per sample

	// data sub-chunk
	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], pcm)

	return buf
}
