package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
)

type memoryEntry struct {
	seq     int64
	payload []byte
}

// MemoryStream is the in-process MessageTransport used when no Redis URL
// is configured and in tests.
type MemoryStream struct {
	mu      sync.Mutex
	streams map[string][]memoryEntry
	notify  chan struct{}
	closed  bool
}

func NewMemoryStream() *MemoryStream {
	return &MemoryStream{
		streams: make(map[string][]memoryEntry),
		notify:  make(chan struct{}),
	}
}

func formatID(seq int64) string {
	return strconv.FormatInt(seq, 10) + "-0"
}

func (m *MemoryStream) PublishJSON(_ context.Context, stream string, v any) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal stream payload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", fmt.Errorf("memory stream closed")
	}
	entries := m.streams[stream]
	seq := int64(len(entries) + 1)
	m.streams[stream] = append(entries, memoryEntry{seq: seq, payload: body})

	close(m.notify)
	m.notify = make(chan struct{})
	return formatID(seq), nil
}

func (m *MemoryStream) ReadJSON(ctx context.Context, stream, lastID string, out any) (string, error) {
	if err := validateStreamOffset(lastID); err != nil {
		return "", err
	}
	after, err := parseStreamOffset(lastID)
	if err != nil {
		return "", err
	}

	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return "", fmt.Errorf("memory stream closed")
		}
		entries := m.streams[stream]
		wait := m.notify
		if after < int64(len(entries)) {
			e := entries[after]
			m.mu.Unlock()
			if err := json.Unmarshal(e.payload, out); err != nil {
				return "", fmt.Errorf("decode stream entry %s: %w", formatID(e.seq), err)
			}
			return formatID(e.seq), nil
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-wait:
		}
	}
}

// Len returns the number of entries in stream.
func (m *MemoryStream) Len(stream string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams[stream])
}

// Names lists streams that have at least one entry.
func (m *MemoryStream) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.streams))
	for name := range m.streams {
		names = append(names, name)
	}
	return names
}

func (m *MemoryStream) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.notify)
	}
	return nil
}

var (
	_ MessageTransport = (*Stream)(nil)
	_ MessageTransport = (*MemoryStream)(nil)
)
