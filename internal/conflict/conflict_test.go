package conflict

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	t.Parallel()

	local := map[string]any{"a": 1, "b": 2}
	server := map[string]any{"b": 3, "c": 4}

	cases := []struct {
		name     string
		strategy Strategy
		want     map[string]any
	}{
		{"local wins", Local, map[string]any{"a": 1, "b": 2}},
		{"server wins", Server, map[string]any{"b": 3, "c": 4}},
		{"merge prefers server on collision", Merge, map[string]any{"a": 1, "b": 3, "c": 4}},
		{"default is server", DefaultStrategy, map[string]any{"b": 3, "c": 4}},
		{"unknown falls back to server", Strategy("bogus"), map[string]any{"b": 3, "c": 4}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Resolve(local, server, tc.strategy))
		})
	}
}

func TestResolveMergeDoesNotMutateInputs(t *testing.T) {
	t.Parallel()

	local := map[string]any{"a": 1}
	server := map[string]any{"a": 2, "nested": map[string]any{"x": 1}}

	out := Resolve(local, server, Merge)
	out["a"] = 99

	require.Equal(t, map[string]any{"a": 1}, local)
	require.Equal(t, 2, server["a"])
}

func TestResolveMergeWithNilSides(t *testing.T) {
	t.Parallel()

	require.Equal(t, map[string]any{"a": 1}, Resolve(map[string]any{"a": 1}, nil, Merge))
	require.Equal(t, map[string]any{"b": 2}, Resolve(nil, map[string]any{"b": 2}, Merge))
}

func TestParseStrategy(t *testing.T) {
	t.Parallel()

	s, err := ParseStrategy("")
	require.NoError(t, err)
	require.Equal(t, Server, s)

	s, err = ParseStrategy(" Merge ")
	require.NoError(t, err)
	require.Equal(t, Merge, s)

	_, err = ParseStrategy("newest")
	require.ErrorIs(t, err, ErrUnknownStrategy)
}
