package identity

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"abc":              "",
		"9990001111":       "9990001111",
		"+91 99900-01111":  "9990001111",
		"(999) 000-2222":   "9990002222",
		"00919990001111":   "9990001111",
		"12345":            "12345",
		" 1 2 3 ":          "123",
		"+1-800-FLOWERS-1": "18001",
	}
	for in, want := range cases {
		require.Equal(t, want, Normalize(in), "input %q", in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	inputs := []string{"", "x", "+91 99900 01111", "1234567890123456", "٣٤٥ 12", "--9--"}
	for _, in := range inputs {
		once := Normalize(in)
		require.Equal(t, once, Normalize(once), "input %q", in)
		require.LessOrEqual(t, len(once), Length)
		for _, r := range once {
			require.True(t, r >= '0' && r <= '9', "non-digit %q in %q", r, once)
		}
	}
}

func TestNormalizeAll(t *testing.T) {
	got := NormalizeAll([]string{"+91 9990001111", "9990001111", "", "999-000-2222"})
	require.Equal(t, []string{"9990001111", "9990002222"}, got)
}

func TestValid(t *testing.T) {
	require.True(t, Valid("9990001111"))
	require.False(t, Valid(""))
	require.False(t, Valid("+9990001111"))
}
