package redis

//go:generate mockgen -source=stream.go -destination=mocks/stream_mock.go -package=mocks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

const payloadField = "payload"

// MessageTransport carries JSON reports on named streams. Stream is backed
// by Redis; MemoryStream keeps everything in process.
type MessageTransport interface {
	PublishJSON(ctx context.Context, stream string, v any) (string, error)
	ReadJSON(ctx context.Context, stream, lastID string, out any) (string, error)
	Close() error
}

type Stream struct {
	client *redis.Client
	maxLen int64
}

type Option func(*Stream)

// WithMaxLen caps each stream at roughly n entries.
func WithMaxLen(n int64) Option {
	return func(s *Stream) { s.maxLen = n }
}

func NewStream(ctx context.Context, url string, opts ...Option) (*Stream, error) {
	parsed, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(parsed)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	s := &Stream{client: client}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Stream) PublishJSON(ctx context.Context, stream string, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal stream payload: %w", err)
	}
	args := &redis.XAddArgs{
		Stream: stream,
		Values: map[string]any{payloadField: string(body)},
	}
	if s.maxLen > 0 {
		args.MaxLen = s.maxLen
		args.Approx = true
	}
	id, err := s.client.XAdd(ctx, args).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", stream, err)
	}
	return id, nil
}

// ReadJSON blocks until an entry after lastID exists and decodes it.
func (s *Stream) ReadJSON(ctx context.Context, stream, lastID string, out any) (string, error) {
	if err := validateStreamOffset(lastID); err != nil {
		return "", err
	}
	if strings.TrimSpace(lastID) == "" {
		lastID = "0"
	}
	res, err := s.client.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   1,
		Block:   0,
	}).Result()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("xread %s: %w", stream, err)
	}
	for _, st := range res {
		for _, msg := range st.Messages {
			raw, ok := msg.Values[payloadField].(string)
			if !ok {
				return "", fmt.Errorf("stream entry %s has no %s field", msg.ID, payloadField)
			}
			if err := json.Unmarshal([]byte(raw), out); err != nil {
				return "", fmt.Errorf("decode stream entry %s: %w", msg.ID, err)
			}
			return msg.ID, nil
		}
	}
	return "", errors.New("xread returned no entries")
}

func (s *Stream) Close() error {
	return s.client.Close()
}

// StreamName scopes a stream prefix to one run.
func StreamName(prefix, runID string) string {
	prefix = strings.TrimSpace(prefix)
	if runID == "" {
		return prefix
	}
	return prefix + ":" + runID
}

// parseStreamOffset returns the millisecond part of a stream id. Negative
// values clamp to zero.
func parseStreamOffset(raw string) (int64, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return 0, nil
	}
	head := trimmed
	if i := strings.Index(trimmed[1:], "-"); i >= 0 {
		head = trimmed[:i+1]
	}
	v, err := strconv.ParseInt(head, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid stream offset %q: %w", raw, err)
	}
	if v < 0 {
		return 0, nil
	}
	return v, nil
}

func validateStreamOffset(raw string) error {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || trimmed == "0" {
		return nil
	}
	parts := strings.SplitN(trimmed, "-", 2)
	for _, part := range parts {
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid stream offset %q: malformed id", raw)
		}
	}
	return nil
}
