package openaq

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexInt_Unmarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int64
		wantErr bool
	}{
		{name: "number", input: `42`, want: 42},
		{name: "numeric string", input: `"42"`, want: 42},
		{name: "null", input: `null`, want: 0},
		{name: "empty string", input: `""`, want: 0},
		{name: "garbage", input: `"abc"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f FlexInt
			err := json.Unmarshal([]byte(tt.input), &f)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, f.Int())
		})
	}
}

func TestFound_Unmarshal(t *testing.T) {
	var f Found
	require.NoError(t, json.Unmarshal([]byte(`17`), &f))
	assert.Equal(t, int64(17), f.Count)
	assert.False(t, f.Truncated)

	require.NoError(t, json.Unmarshal([]byte(`">100"`), &f))
	assert.Equal(t, int64(100), f.Count)
	assert.True(t, f.Truncated)
}

func TestParseStamp(t *testing.T) {
	// Upstream emits either a bare Z marker or a fully qualified offset
	// depending on response mode, and occasionally no zone at all.
	zulu, err := ParseStamp("2025-01-01T00:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), zulu.UTC())

	offset, err := ParseStamp("2025-01-01T17:00:00-07:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), offset.UTC())

	plain, err := ParseStamp("2025-01-01T17:00:00")
	require.NoError(t, err)
	assert.Equal(t, 17, plain.Hour())

	_, err = ParseStamp("yesterday")
	assert.Error(t, err)
}

func TestRateLimitFrom(t *testing.T) {
	h := http.Header{}
	h.Set("X-Ratelimit-Used", "58")
	h.Set("X-Ratelimit-Remaining", "2")
	h.Set("X-Ratelimit-Reset", "30")

	rl := rateLimitFrom(h)
	assert.True(t, rl.Present)
	assert.Equal(t, 58, rl.Used)
	assert.Equal(t, 2, rl.Remaining)
	assert.Equal(t, 30, rl.Reset)
	assert.True(t, rl.ShouldPause())

	h.Set("X-Ratelimit-Remaining", "10")
	assert.False(t, rateLimitFrom(h).ShouldPause())
}

func TestRateLimitFrom_MissingHeaders(t *testing.T) {
	rl := rateLimitFrom(http.Header{})
	assert.False(t, rl.Present)
	assert.False(t, rl.ShouldPause())
}
