// Package feed moves pushed fleet payloads from the transports into the
// aggregator. Every transport carries the same frame: either a bare
// push-schema payload or an Envelope wrapping one, gzip+base64 when
// compressed. Frames that fail the key check or cannot be decoded are
// dropped with a warning; the transports themselves never stop over one
// bad frame.
package feed

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"fleet_tracker/internal/metrics"
	"fleet_tracker/internal/normalize"
)

// ErrInvalidKey marks a frame whose credentials failed the key check.
var ErrInvalidKey = errors.New("invalid api key")

// ingestTimeout bounds the handling of a single frame.
const ingestTimeout = 30 * time.Second

// Ingestor accepts one source's payload. The aggregator manager satisfies it.
type Ingestor interface {
	Ingest(ctx context.Context, sourceID string, raw []byte, arrival time.Time) (int, error)
}

// Envelope is the transport frame. Payload holds the push-schema JSON,
// either inline or as a base64 string of gzip data when Compressed is set.
type Envelope struct {
	ID         string          `json:"id,omitempty"`
	APIKey     string          `json:"api_key,omitempty"`
	Compressed bool            `json:"compressed,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	// Older plugins put the compressed base64 under "data".
	Data string `json:"data,omitempty"`
}

// DecodeFrame unwraps one transport frame. Bare payloads pass through
// unchanged; Envelope frames have their payload extracted and gunzipped
// when compressed. A frame with no payload field is itself the payload,
// which covers plugins that send accounts inline next to the api key.
func DecodeFrame(frame []byte) (Envelope, []byte, error) {
	var env Envelope
	trimmed := bytes.TrimSpace(frame)
	if len(trimmed) == 0 {
		return env, nil, errors.New("empty frame")
	}
	if trimmed[0] == '[' {
		return env, trimmed, nil
	}
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return env, nil, fmt.Errorf("parsing frame: %w", err)
	}

	if env.Compressed {
		encoded := env.Data
		if encoded == "" {
			if err := json.Unmarshal(env.Payload, &encoded); err != nil {
				return env, nil, fmt.Errorf("compressed payload is not base64 text: %w", err)
			}
		}
		packed, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return env, nil, fmt.Errorf("decoding payload: %w", err)
		}
		zr, err := gzip.NewReader(bytes.NewReader(packed))
		if err != nil {
			return env, nil, fmt.Errorf("decompressing payload: %w", err)
		}
		defer zr.Close()
		payload, err := io.ReadAll(zr)
		if err != nil {
			return env, nil, fmt.Errorf("decompressing payload: %w", err)
		}
		return env, payload, nil
	}

	if len(env.Payload) > 0 {
		if env.Payload[0] == '"' {
			var quoted string
			if err := json.Unmarshal(env.Payload, &quoted); err != nil {
				return env, nil, fmt.Errorf("parsing payload: %w", err)
			}
			return env, []byte(quoted), nil
		}
		return env, env.Payload, nil
	}
	return env, trimmed, nil
}

// SourceID derives the identity a payload is stored under: the first
// account's nickname when present, else the transport fallback.
func SourceID(fallback string, payload []byte) string {
	msgs, _, err := normalize.Split(payload)
	if err != nil || len(msgs) == 0 {
		return fallback
	}
	var peek struct {
		Nickname string `json:"nickname"`
	}
	if err := json.Unmarshal(msgs[0], &peek); err != nil || peek.Nickname == "" {
		return fallback
	}
	return "plugin:" + peek.Nickname
}

// Keyring validates push credentials. With auth disabled every frame is
// allowed through.
type Keyring struct {
	enabled bool
	keys    map[string]bool
}

// NewKeyring builds a keyring from the configured key list. Blank entries
// are dropped.
func NewKeyring(enabled bool, keys []string) *Keyring {
	ring := &Keyring{enabled: enabled, keys: make(map[string]bool, len(keys))}
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k != "" {
			ring.keys[k] = true
		}
	}
	return ring
}

// Allow reports whether a frame carrying key may be ingested.
func (k *Keyring) Allow(key string) bool {
	if !k.enabled {
		return true
	}
	return k.keys[key]
}

// Processor turns transport frames into ingests. It owns the drop logging
// and the per-transport counters so the consumers stay thin.
type Processor struct {
	ingest Ingestor
	keys   *Keyring
	logger *slog.Logger
}

// NewProcessor wires a processor. keys may be nil to skip the credential
// check entirely.
func NewProcessor(ingest Ingestor, keys *Keyring, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{ingest: ingest, keys: keys, logger: logger.With("component", "feed")}
}

// Process validates, unwraps, and ingests one frame. Returns the number of
// accounts stored.
func (p *Processor) Process(ctx context.Context, transport, defaultSource string, frame []byte) (int, error) {
	env, payload, err := DecodeFrame(frame)
	if err != nil {
		metrics.IncFeedMessage(transport, "invalid")
		p.logger.Warn("dropping frame", "transport", transport, "error", err)
		return 0, err
	}
	if p.keys != nil && !p.keys.Allow(env.APIKey) {
		metrics.IncFeedMessage(transport, "rejected")
		p.logger.Warn("dropping frame", "transport", transport, "error", ErrInvalidKey)
		return 0, ErrInvalidKey
	}

	source := SourceID(defaultSource, payload)
	n, err := p.ingest.Ingest(ctx, source, payload, time.Now().UTC())
	if err != nil {
		metrics.IncFeedMessage(transport, "invalid")
		p.logger.Warn("dropping frame", "transport", transport, "source", source, "error", err)
		return 0, err
	}
	metrics.IncFeedMessage(transport, "ok")
	return n, nil
}
