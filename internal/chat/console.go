package chat

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

// StreamMode controls how often streamed text is flushed.
type StreamMode string

const (
	// StreamInstant flushes after every token.
	StreamInstant StreamMode = "instant"
	// StreamTypewriter flushes after every rune.
	StreamTypewriter StreamMode = "typewriter"
)

// Console is the transcript writer. Everything written to it is visible
// before the write returns.
type Console struct {
	buf  *bufio.Writer
	mode StreamMode
	raw  bool

	// partial holds the leading bytes of a character split across tokens.
	partial []byte
}

// NewConsole wraps w. In raw mode control characters in streamed tokens are
// escaped so that model output can be inspected byte for byte.
func NewConsole(w io.Writer, mode StreamMode, raw bool) *Console {
	if mode == "" {
		mode = StreamInstant
	}
	return &Console{buf: bufio.NewWriterSize(w, 4096), mode: mode, raw: raw}
}

// WriteToken writes one model token. Backends may split a multi-byte
// character across tokens; its leading bytes are held until the rest
// arrives or EndReply is called.
func (c *Console) WriteToken(tok string) error {
	text := c.complete(tok)
	if text == "" {
		return nil
	}
	if c.mode == StreamTypewriter {
		for len(text) > 0 {
			_, size := utf8.DecodeRuneInString(text)
			if _, err := c.buf.WriteString(c.escape(text[:size])); err != nil {
				return err
			}
			if err := c.buf.Flush(); err != nil {
				return err
			}
			text = text[size:]
		}
		return nil
	}
	if _, err := c.buf.WriteString(c.escape(text)); err != nil {
		return err
	}
	return c.buf.Flush()
}

// EndReply writes any bytes still held from a split character.
func (c *Console) EndReply() error {
	if len(c.partial) == 0 {
		return nil
	}
	rest := string(c.partial)
	c.partial = c.partial[:0]
	if _, err := c.buf.WriteString(c.escape(rest)); err != nil {
		return err
	}
	return c.buf.Flush()
}

// complete joins held bytes with tok and holds back a trailing incomplete
// UTF-8 sequence.
func (c *Console) complete(tok string) string {
	s := tok
	if len(c.partial) > 0 {
		s = string(c.partial) + tok
		c.partial = c.partial[:0]
	}
	cut := len(s)
	for i := len(s) - 1; i >= 0 && i > len(s)-utf8.UTFMax; i-- {
		if utf8.RuneStart(s[i]) {
			if !utf8.FullRuneInString(s[i:]) {
				cut = i
			}
			break
		}
	}
	c.partial = append(c.partial, s[cut:]...)
	return s[:cut]
}

// Write writes p verbatim and flushes. It is used for everything that is not
// model output: blank lines, notices and the stats report.
func (c *Console) Write(p []byte) (int, error) {
	n, err := c.buf.Write(p)
	if err != nil {
		return n, err
	}
	return n, c.buf.Flush()
}

func (c *Console) Printf(format string, args ...any) error {
	_, err := fmt.Fprintf(c, format, args...)
	return err
}

func (c *Console) escape(s string) string {
	if !c.raw {
		return s
	}
	var sb strings.Builder
	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			fmt.Fprintf(&sb, `\x%02x`, s[0])
			s = s[1:]
			continue
		}
		s = s[size:]
		switch r {
		case '\n':
			sb.WriteString(`\n`)
		case '\r':
			sb.WriteString(`\r`)
		case '\t':
			sb.WriteString(`\t`)
		case '\\':
			sb.WriteString(`\\`)
		default:
			if strconv.IsPrint(r) {
				sb.WriteRune(r)
			} else {
				fmt.Fprintf(&sb, `\u%04x`, r)
			}
		}
	}
	return sb.String()
}
