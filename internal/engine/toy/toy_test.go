package toy

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/samcharles93/chatloop/internal/engine"
	"github.com/samcharles93/chatloop/internal/logger"
)

func writeDescriptor(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "toy.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func loadModel(t *testing.T, body string) engine.Model {
	t.Helper()
	e := New(logger.Default())
	m, err := e.Load(context.Background(), engine.ModelSpec{
		Architecture: "auto",
		Path:         writeDescriptor(t, body),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func collect(t *testing.T, s *engine.Stream) string {
	t.Helper()
	var sb strings.Builder
	for tok := range s.Tokens() {
		sb.WriteString(tok)
	}
	require.NoError(t, s.Err())
	return sb.String()
}

func drain(s *engine.Stream) error {
	for range s.Tokens() {
	}
	return s.Err()
}

func TestReadDescriptorDefaults(t *testing.T) {
	t.Parallel()

	d, err := ReadDescriptor(writeDescriptor(t, `{"seed": 9}`))
	require.NoError(t, err)
	require.Equal(t, Descriptor{Architecture: Architecture, Hidden: defaultHidden, Seed: 9, ContextLength: defaultContextLength}, d)

	_, err = ReadDescriptor(writeDescriptor(t, `{not json`))
	require.Error(t, err)

	_, err = ReadDescriptor(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadRejectsForeignTokenizer(t *testing.T) {
	t.Parallel()

	_, err := New(logger.Default()).Load(context.Background(), engine.ModelSpec{
		Path:      writeDescriptor(t, `{}`),
		Tokenizer: engine.TokenizerSource{Kind: engine.TokenizerFile, Location: "tokenizer.json"},
	})
	require.ErrorIs(t, err, engine.ErrUnsupportedTokenizer)
}

func TestLoadChecksArchitecture(t *testing.T) {
	t.Parallel()

	path := writeDescriptor(t, `{"architecture": "toy"}`)
	_, err := New(logger.Default()).Load(context.Background(), engine.ModelSpec{Architecture: "llama", Path: path})
	require.ErrorIs(t, err, engine.ErrArchitectureMismatch)

	m, err := New(logger.Default()).Load(context.Background(), engine.ModelSpec{Architecture: "toy", Path: path})
	require.NoError(t, err)
	require.NoError(t, m.Close())
}

func TestFeedEchoesPromptDeterministically(t *testing.T) {
	t.Parallel()

	m := loadModel(t, `{"seed": 1}`)
	text := "A chat between a human and an assistant.\n### Assistant: Hello - How may I help you today? café"

	var outputs []string
	for range 2 {
		sess, err := m.StartSession(context.Background(), engine.SessionOptions{})
		require.NoError(t, err)
		stream := sess.Feed(context.Background(), text)
		outputs = append(outputs, collect(t, stream))
		require.Equal(t, len(text), stream.Stats().PromptTokens)
	}
	require.Equal(t, text, outputs[0])
	require.Equal(t, outputs[0], outputs[1])
}

func TestInferDeterministicForSeed(t *testing.T) {
	t.Parallel()

	m := loadModel(t, `{"seed": 4}`)
	run := func() []string {
		sess, err := m.StartSession(context.Background(), engine.SessionOptions{})
		require.NoError(t, err)
		require.NoError(t, drain(sess.Feed(context.Background(), "persona\n")))

		rng := rand.New(rand.NewSource(42))
		var replies []string
		for _, line := range []string{"hi", "how are you"} {
			req := engine.Request{Prompt: "### Human: " + line + "\n### Assistant:", Params: engine.DefaultParams(), MaxTokens: 24}
			replies = append(replies, collect(t, sess.Infer(context.Background(), rng, req)))
		}
		return replies
	}

	first, second := run(), run()
	require.Equal(t, first, second)
}

func TestInferHonoursMaxTokens(t *testing.T) {
	t.Parallel()

	m := loadModel(t, `{"seed": 2}`)
	sess, err := m.StartSession(context.Background(), engine.SessionOptions{})
	require.NoError(t, err)

	stream := sess.Infer(context.Background(), rand.New(rand.NewSource(1)), engine.Request{
		Prompt:    "hello",
		Params:    engine.DefaultParams(),
		MaxTokens: 5,
	})
	out := collect(t, stream)
	stats := stream.Stats()
	require.Equal(t, 5, stats.PromptTokens)
	require.LessOrEqual(t, stats.PredictTokens, 5)
	require.Len(t, out, stats.PredictTokens)
}

func TestInferUnboundedEndsOnItsOwn(t *testing.T) {
	t.Parallel()

	m := loadModel(t, `{"seed": 3}`)
	sess, err := m.StartSession(context.Background(), engine.SessionOptions{})
	require.NoError(t, err)

	stream := sess.Infer(context.Background(), rand.New(rand.NewSource(5)), engine.Request{
		Prompt: "### Human: hi\n### Assistant:",
		Params: engine.DefaultParams(),
	})
	_ = collect(t, stream)
	require.Less(t, stream.Stats().PredictTokens, 1000)
}

func TestInferContextFull(t *testing.T) {
	t.Parallel()

	m := loadModel(t, `{"context_length": 8}`)
	sess, err := m.StartSession(context.Background(), engine.SessionOptions{})
	require.NoError(t, err)

	stream := sess.Infer(context.Background(), rand.New(rand.NewSource(1)), engine.Request{Prompt: "0123456789"})
	require.ErrorIs(t, drain(stream), engine.ErrContextFull)
}

func TestStreamIsSingleUse(t *testing.T) {
	t.Parallel()

	m := loadModel(t, `{}`)
	sess, err := m.StartSession(context.Background(), engine.SessionOptions{})
	require.NoError(t, err)

	stream := sess.Feed(context.Background(), "abc")
	require.Equal(t, "abc", collect(t, stream))
	for range stream.Tokens() {
		t.Fatal("second pass yielded a token")
	}
	require.ErrorIs(t, stream.Err(), engine.ErrStreamConsumed)
}

func TestPlayBackPreviousTokens(t *testing.T) {
	t.Parallel()

	m := loadModel(t, `{}`)
	sess, err := m.StartSession(context.Background(), engine.SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, drain(sess.Feed(context.Background(), "seeded ")))

	out := collect(t, sess.Infer(context.Background(), rand.New(rand.NewSource(1)), engine.Request{
		Prompt:                 "next",
		Params:                 engine.DefaultParams(),
		PlayBackPreviousTokens: true,
		MaxTokens:              1,
	}))
	require.True(t, strings.HasPrefix(out, "seeded "), "got %q", out)
}

func TestClosedSession(t *testing.T) {
	t.Parallel()

	m := loadModel(t, `{}`)
	sess, err := m.StartSession(context.Background(), engine.SessionOptions{})
	require.NoError(t, err)
	require.NoError(t, sess.Close())
	require.ErrorIs(t, drain(sess.Feed(context.Background(), "x")), engine.ErrSessionClosed)
}

func TestByteDecoderJoinsMultibyteRunes(t *testing.T) {
	t.Parallel()

	var dec byteDecoder
	var out []string
	for _, id := range encode("é!") {
		if s := dec.push(id); s != "" {
			out = append(out, s)
		}
	}
	require.Equal(t, []string{"é", "!"}, out)
	require.Empty(t, dec.flush())
}
