// Package lineedit reads user lines for the chat prompt. On a terminal it
// runs a small raw-mode editor with history and cursor movement; otherwise
// it reads newline-terminated lines from the input as-is.
package lineedit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"golang.org/x/term"
	"golang.org/x/text/unicode/norm"
)

var (
	// ErrInterrupted is returned when the user presses Ctrl+C.
	ErrInterrupted = errors.New("interrupted")
	// ErrMalformedInput is returned for a line that is not valid UTF-8. The
	// editor stays usable after it.
	ErrMalformedInput = errors.New("input is not valid UTF-8")
)

// Editor reads one line at a time. It is not safe for concurrent use.
type Editor struct {
	in      io.Reader
	fd      int
	tty     bool
	out     io.Writer
	br      *bufio.Reader
	history []string
}

// New returns an editor on in. Raw editing is used only when in is a
// terminal; prompts and echo go to out.
func New(in *os.File, out io.Writer) *Editor {
	fd := int(in.Fd())
	return &Editor{in: in, fd: fd, tty: term.IsTerminal(fd), out: out}
}

// NewReader returns an editor that reads plain lines from r.
func NewReader(r io.Reader, out io.Writer) *Editor {
	return &Editor{in: r, out: out}
}

// Interactive reports whether the editor drives a terminal.
func (e *Editor) Interactive() bool { return e.tty }

// History returns the submitted non-blank lines, oldest first.
func (e *Editor) History() []string { return e.history }

// ReadLine prints prompt and returns the next line without its terminator.
// It returns io.EOF at end of input or on Ctrl+D at an empty line,
// ErrInterrupted on Ctrl+C and ErrMalformedInput for invalid UTF-8.
// Valid lines are returned in Unicode normalisation form C.
func (e *Editor) ReadLine(prompt string) (string, error) {
	var (
		raw []byte
		err error
	)
	if e.tty {
		raw, err = e.readRaw(prompt)
	} else {
		raw, err = e.readPlain(prompt)
	}
	if err != nil {
		return "", err
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("%w (%d bytes)", ErrMalformedInput, len(raw))
	}
	line := norm.NFC.String(string(raw))
	if strings.TrimSpace(line) != "" {
		e.history = append(e.history, line)
	}
	return line, nil
}

func (e *Editor) readPlain(prompt string) ([]byte, error) {
	if e.br == nil {
		e.br = bufio.NewReader(e.in)
	}
	if _, err := io.WriteString(e.out, prompt); err != nil {
		return nil, err
	}
	b, err := e.br.ReadBytes('\n')
	switch {
	case errors.Is(err, io.EOF) && len(b) == 0:
		return nil, io.EOF
	case err != nil && !errors.Is(err, io.EOF):
		return nil, err
	}
	return trimNewline(b), nil
}

func (e *Editor) readRaw(prompt string) ([]byte, error) {
	restore, err := enterRaw(e.fd)
	if err != nil {
		return nil, fmt.Errorf("raw terminal mode: %w", err)
	}
	defer restore()

	st := newLineState(e.history)
	st.redraw(e.out, prompt)

	var buf [64]byte
	for {
		n, err := e.in.Read(buf[:])
		if err != nil {
			if errors.Is(err, io.EOF) && len(st.buf) == 0 {
				io.WriteString(e.out, "\r\n")
				return nil, io.EOF
			}
			return nil, err
		}
		for _, b := range buf[:n] {
			switch st.key(b) {
			case actRedraw:
				st.redraw(e.out, prompt)
			case actSubmit:
				io.WriteString(e.out, "\r\n")
				return st.buf, nil
			case actInterrupt:
				io.WriteString(e.out, "^C\r\n")
				return nil, ErrInterrupted
			case actEOF:
				io.WriteString(e.out, "\r\n")
				return nil, io.EOF
			}
		}
	}
}

func trimNewline(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}
