package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		expected  int64
		expectErr bool
	}{
		{name: "empty string", input: "", expected: 0},
		{name: "zero", input: "0", expected: 0},
		{name: "positive integer", input: "123", expected: 123},
		{name: "compound id", input: "123-0", expected: 123},
		{name: "negative clamps to zero", input: "-5", expected: 0},
		{name: "non-numeric", input: "abc", expectErr: true},
		{name: "whitespace trimmed", input: "  42  ", expected: 42},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			result, err := parseStreamOffset(tt.input)
			if tt.expectErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestValidateStreamOffset(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		input     string
		expectErr bool
	}{
		{name: "empty string", input: ""},
		{name: "zero", input: "0"},
		{name: "positive integer", input: "42"},
		{name: "compound id", input: "100-0"},
		{name: "non-numeric", input: "abc", expectErr: true},
		{name: "negative", input: "-1", expectErr: true},
		{name: "trailing dash", input: "100-", expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateStreamOffset(tt.input)
			if tt.expectErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestStreamName(t *testing.T) {
	assert.Equal(t, "magtorq:reports:abc", StreamName(" magtorq:reports ", "abc"))
	assert.Equal(t, "magtorq:reports", StreamName("magtorq:reports", ""))
}

type report struct {
	Seq uint32 `json:"seq"`
}

func TestMemoryStream_PublishAndReadInOrder(t *testing.T) {
	m := NewMemoryStream()
	defer m.Close()
	ctx := context.Background()

	for seq := uint32(1000); seq <= 3000; seq += 1000 {
		_, err := m.PublishJSON(ctx, "reports", report{Seq: seq})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, m.Len("reports"))
	assert.Equal(t, []string{"reports"}, m.Names())

	lastID := "0"
	var got []uint32
	for i := 0; i < 3; i++ {
		var r report
		id, err := m.ReadJSON(ctx, "reports", lastID, &r)
		require.NoError(t, err)
		got = append(got, r.Seq)
		lastID = id
	}
	assert.Equal(t, []uint32{1000, 2000, 3000}, got)
	assert.Equal(t, "3-0", lastID)
}

func TestMemoryStream_ReadBlocksUntilPublish(t *testing.T) {
	m := NewMemoryStream()
	defer m.Close()

	var wg sync.WaitGroup
	var got report
	var readErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, readErr = m.ReadJSON(context.Background(), "reports", "", &got)
	}()

	time.Sleep(10 * time.Millisecond)
	_, err := m.PublishJSON(context.Background(), "reports", report{Seq: 7})
	require.NoError(t, err)
	wg.Wait()

	require.NoError(t, readErr)
	assert.Equal(t, uint32(7), got.Seq)
}

func TestMemoryStream_ReadHonoursContext(t *testing.T) {
	m := NewMemoryStream()
	defer m.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	var r report
	_, err := m.ReadJSON(ctx, "reports", "0", &r)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMemoryStream_Closed(t *testing.T) {
	m := NewMemoryStream()
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err := m.PublishJSON(context.Background(), "reports", report{})
	assert.Error(t, err)
}

func TestNewStream_InvalidURL(t *testing.T) {
	_, err := NewStream(context.Background(), "not-a-redis-url")
	assert.Error(t, err)
}
