package engine

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func drain(s *Stream) error {
	for range s.Tokens() {
	}
	return s.Err()
}

func counting(tokens []string, calls *int) ProduceFunc {
	return func(yield func(string) bool) (Stats, error) {
		var st Stats
		for _, tok := range tokens {
			*calls++
			st.PredictTokens++
			if !yield(tok) {
				break
			}
		}
		return st, nil
	}
}

func TestStreamIsLazy(t *testing.T) {
	t.Parallel()

	calls := 0
	s := NewStream(counting([]string{"a", "b"}, &calls))
	require.Zero(t, calls)

	var got []string
	for tok := range s.Tokens() {
		got = append(got, tok)
	}
	require.Equal(t, []string{"a", "b"}, got)
	require.Equal(t, 2, s.Stats().PredictTokens)
	require.NoError(t, s.Err())
}

func TestStreamBreakStopsProducer(t *testing.T) {
	t.Parallel()

	calls := 0
	s := NewStream(counting([]string{"a", "b", "c"}, &calls))
	for range s.Tokens() {
		break
	}
	require.Equal(t, 1, calls)
	require.Equal(t, 1, s.Stats().PredictTokens)
}

func TestStreamIgnoresYieldAfterStop(t *testing.T) {
	t.Parallel()

	// A producer that keeps calling yield after false must not panic the
	// range loop.
	s := NewStream(func(yield func(string) bool) (Stats, error) {
		yield("a")
		yield("b")
		return Stats{}, nil
	})
	var got []string
	for tok := range s.Tokens() {
		got = append(got, tok)
		break
	}
	require.Equal(t, []string{"a"}, got)
}

func TestStreamSecondRange(t *testing.T) {
	t.Parallel()

	calls := 0
	s := NewStream(counting([]string{"x"}, &calls))
	require.NoError(t, drain(s))
	require.ErrorIs(t, drain(s), ErrStreamConsumed)
	require.Equal(t, 1, calls)
}

func TestStreamSecondRangeKeepsProducerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("decode failed")
	s := NewStream(func(yield func(string) bool) (Stats, error) {
		yield("a")
		return Stats{PredictTokens: 1}, boom
	})
	require.ErrorIs(t, drain(s), boom)
	for range s.Tokens() {
		t.Fatal("second pass yielded a token")
	}
	require.ErrorIs(t, s.Err(), boom)
	require.NotErrorIs(t, s.Err(), ErrStreamConsumed)
	require.Equal(t, 1, s.Stats().PredictTokens)
}

func TestFailedStream(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	s := FailedStream(boom)
	for range s.Tokens() {
		t.Fatal("failed stream yielded")
	}
	require.ErrorIs(t, s.Err(), boom)
	require.Zero(t, s.Stats())
}

func TestResolveTokenizer(t *testing.T) {
	t.Parallel()

	src, err := ResolveTokenizer("", "")
	require.NoError(t, err)
	require.Equal(t, TokenizerEmbedded, src.Kind)

	src, err = ResolveTokenizer("tok.json", "")
	require.NoError(t, err)
	require.Equal(t, TokenizerSource{Kind: TokenizerFile, Location: "tok.json"}, src)
	require.Equal(t, "file:tok.json", src.String())

	src, err = ResolveTokenizer("", "hf/repo")
	require.NoError(t, err)
	require.Equal(t, TokenizerRemote, src.Kind)

	_, err = ResolveTokenizer("tok.json", "hf/repo")
	require.ErrorIs(t, err, ErrTokenizerConflict)
}
