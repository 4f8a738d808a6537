package load

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeConversationID(t *testing.T) {
	tests := []struct {
		in, out string
	}{
		{"19:group@thread.skype", "19_group@thread.skype"},
		{"8:alice", "8_alice"},
		{`a<b>c:d"e/f\g|h?i*j`, "a_b_c_d_e_f_g_h_i_j"},
		{"plain", "plain"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.out, SanitizeConversationID(tt.in), "input %q", tt.in)
	}
}

func TestCanonicalHash(t *testing.T) {
	t.Run("whitespace invariant", func(t *testing.T) {
		compact, err := CanonicalHash(json.RawMessage(`{"a":1,"b":[2,3]}`))
		require.NoError(t, err)
		spaced, err := CanonicalHash(json.RawMessage("{\n  \"a\": 1,\n  \"b\": [2, 3]\n}"))
		require.NoError(t, err)
		assert.Equal(t, compact, spaced)
		assert.Len(t, compact, 64)
	})

	t.Run("content sensitive", func(t *testing.T) {
		a, err := CanonicalHash(json.RawMessage(`{"a":1}`))
		require.NoError(t, err)
		b, err := CanonicalHash(json.RawMessage(`{"a":2}`))
		require.NoError(t, err)
		assert.NotEqual(t, a, b)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := CanonicalHash(json.RawMessage(`{`))
		assert.Error(t, err)
	})
}

func TestMultiInsert(t *testing.T) {
	assert.Equal(t,
		"INSERT INTO t (a,b) VALUES ($1,$2)",
		multiInsert("INSERT INTO t (a,b)", 2, 1))
	assert.Equal(t,
		"INSERT INTO t (a,b,c) VALUES ($1,$2,$3),($4,$5,$6)",
		multiInsert("INSERT INTO t (a,b,c)", 3, 2))
}

func TestNullHelpers(t *testing.T) {
	assert.Nil(t, nullString(""))
	require.NotNil(t, nullString("x"))
	assert.Equal(t, "x", *nullString("x"))

	assert.Nil(t, nullTime(""))
	assert.Nil(t, nullTime("garbage"))

	ts := nullTime("2023-05-01T12:00:00.500000Z")
	require.NotNil(t, ts)
	assert.Equal(t, time.UTC, ts.Location())
	assert.Equal(t, 12, ts.Hour())
}

func TestCountRows(t *testing.T) {
	transformed := fixtureExport()
	// 2 conversations + 3 messages + 1 attachment + 3 participants.
	assert.Equal(t, 9, countRows(transformed))
}
