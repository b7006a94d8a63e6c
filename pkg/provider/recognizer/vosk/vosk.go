// Package vosk implements the recognizer provider against a vosk-server
// WebSocket endpoint.
//
// The protocol is the stock vosk-server one: the client sends a JSON config
// frame, streams binary PCM chunks (reading one JSON reply per chunk), then
// sends {"eof": 1} and reads the final result. Each Recognize call uses its
// own connection, so a half-dead server never poisons later clips.
package vosk

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/coder/websocket"

	"github.com/earworm-audio/earworm/pkg/audio"
	"github.com/earworm-audio/earworm/pkg/provider/recognizer"
)

const (
	defaultEndpoint = "ws://localhost:2700"

	// chunkSamples is the number of PCM samples per binary frame. 8000
	// samples is half a second at 16 kHz, matching the reference client.
	chunkSamples = 8000
)

// Compile-time assertion that Recognizer satisfies recognizer.Provider.
var _ recognizer.Provider = (*Recognizer)(nil)

// Recognizer talks to a vosk-server instance.
type Recognizer struct {
	endpoint   string
	sampleRate int
}

// Option is a functional option for configuring a Recognizer.
type Option func(*Recognizer)

// WithEndpoint sets the vosk-server WebSocket URL. Defaults to
// "ws://localhost:2700".
func WithEndpoint(url string) Option {
	return func(r *Recognizer) {
		if url != "" {
			r.endpoint = url
		}
	}
}

// WithSampleRate overrides the sample rate announced in the config frame.
// When zero, each clip's own rate is announced.
func WithSampleRate(rate int) Option {
	return func(r *Recognizer) { r.sampleRate = rate }
}

// New creates a Recognizer for the given vosk-server endpoint.
func New(opts ...Option) *Recognizer {
	r := &Recognizer{endpoint: defaultEndpoint}
	for _, o := range opts {
		o(r)
	}
	return r
}

// voskResult is the JSON structure vosk-server replies with. Partial replies
// carry "partial"; the final reply carries "text".
type voskResult struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
}

// Recognize streams one phrase clip to the server and returns the final
// recognized text. A clip the server hears nothing in yields
// [recognizer.ErrUnknownValue]; replies that are not valid vosk JSON yield
// [recognizer.ErrMalformedResult]. Connection failures are fatal.
func (r *Recognizer) Recognize(ctx context.Context, clip audio.Clip) (string, error) {
	if clip.Empty() {
		return "", fmt.Errorf("vosk: empty clip: %w", recognizer.ErrUnknownValue)
	}

	conn, _, err := websocket.Dial(ctx, r.endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("vosk: dial %q: %w", r.endpoint, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "clip done")

	rate := r.sampleRate
	if rate == 0 {
		rate = clip.SampleRate
	}
	cfg := fmt.Sprintf(`{"config": {"sample_rate": %d}}`, rate)
	if err := conn.Write(ctx, websocket.MessageText, []byte(cfg)); err != nil {
		return "", fmt.Errorf("vosk: send config: %w", err)
	}

	// Stream the clip in half-second chunks, reading the server's running
	// reply after each one. Intermediate "text" fields mark utterance
	// boundaries inside the clip and are collected too.
	var texts []string
	pcm := clip.Bytes()
	chunkBytes := chunkSamples * 2
	for off := 0; off < len(pcm); off += chunkBytes {
		end := off + chunkBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.Write(ctx, websocket.MessageBinary, pcm[off:end]); err != nil {
			return "", fmt.Errorf("vosk: send audio: %w", err)
		}
		res, err := readResult(ctx, conn)
		if err != nil {
			return "", err
		}
		if res.Text != nil && *res.Text != "" {
			texts = append(texts, *res.Text)
		}
	}

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"eof": 1}`)); err != nil {
		return "", fmt.Errorf("vosk: send eof: %w", err)
	}
	final, err := readResult(ctx, conn)
	if err != nil {
		return "", err
	}
	if final.Text == nil {
		return "", fmt.Errorf("vosk: final reply missing text field: %w", recognizer.ErrMalformedResult)
	}
	if *final.Text != "" {
		texts = append(texts, *final.Text)
	}

	text := strings.Join(texts, " ")
	if text == "" {
		return "", fmt.Errorf("vosk: no speech in clip: %w", recognizer.ErrUnknownValue)
	}
	return text, nil
}

// readResult reads and decodes one JSON reply from the server.
func readResult(ctx context.Context, conn *websocket.Conn) (voskResult, error) {
	_, msg, err := conn.Read(ctx)
	if err != nil {
		return voskResult{}, fmt.Errorf("vosk: read reply: %w", err)
	}
	var res voskResult
	if err := json.Unmarshal(msg, &res); err != nil {
		return voskResult{}, fmt.Errorf("vosk: decode reply %q: %v: %w", msg, err, recognizer.ErrMalformedResult)
	}
	return res, nil
}
