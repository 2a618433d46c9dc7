package lineedit

import (
	"fmt"
	"io"
	"unicode/utf8"
)

type action int

const (
	actNone action = iota
	actRedraw
	actSubmit
	actInterrupt
	actEOF
)

const (
	escNone = iota
	escStart
	escCSI
)

// lineState is the editing buffer of one raw-mode ReadLine call. It is fed
// one input byte at a time and reports what the terminal should do next.
type lineState struct {
	buf []byte
	pos int // byte offset of the cursor

	esc int
	csi []byte

	history  []string
	histPos  int
	browsing bool
	draft    []byte
}

func newLineState(history []string) *lineState {
	return &lineState{history: history, histPos: len(history)}
}

func (s *lineState) key(b byte) action {
	switch s.esc {
	case escStart:
		s.esc = escNone
		switch b {
		case '[', 'O':
			s.esc = escCSI
			s.csi = s.csi[:0]
			return actNone
		case 'b', 'B':
			return s.move(s.wordLeft())
		case 'f', 'F':
			return s.move(s.wordRight())
		case 127:
			return s.cut(s.wordLeft(), s.pos)
		}
		return actNone
	case escCSI:
		s.csi = append(s.csi, b)
		if b >= 0x40 && b <= 0x7e {
			s.esc = escNone
			return s.handleCSI(string(s.csi))
		}
		return actNone
	}

	switch b {
	case 27:
		s.esc = escStart
	case '\r', '\n':
		return actSubmit
	case 3: // Ctrl+C
		return actInterrupt
	case 4: // Ctrl+D
		if len(s.buf) == 0 {
			return actEOF
		}
		return s.cut(s.pos, s.runeRight())
	case 127, 8:
		return s.cut(s.runeLeft(), s.pos)
	case 1: // Ctrl+A
		return s.move(0)
	case 5: // Ctrl+E
		return s.move(len(s.buf))
	case 2: // Ctrl+B
		return s.move(s.runeLeft())
	case 6: // Ctrl+F
		return s.move(s.runeRight())
	case 11: // Ctrl+K
		return s.cut(s.pos, len(s.buf))
	case 21: // Ctrl+U
		return s.cut(0, s.pos)
	case 23: // Ctrl+W
		return s.cut(s.wordLeft(), s.pos)
	default:
		if b >= 32 {
			s.buf = append(s.buf, 0)
			copy(s.buf[s.pos+1:], s.buf[s.pos:])
			s.buf[s.pos] = b
			s.pos++
			return actRedraw
		}
	}
	return actNone
}

func (s *lineState) handleCSI(seq string) action {
	switch seq {
	case "A":
		return s.historyPrev()
	case "B":
		return s.historyNext()
	case "C":
		return s.move(s.runeRight())
	case "D":
		return s.move(s.runeLeft())
	case "H", "1~", "7~":
		return s.move(0)
	case "F", "4~", "8~":
		return s.move(len(s.buf))
	case "3~":
		return s.cut(s.pos, s.runeRight())
	case "1;5C", "5C", "1;3C":
		return s.move(s.wordRight())
	case "1;5D", "5D", "1;3D":
		return s.move(s.wordLeft())
	}
	return actNone
}

func (s *lineState) move(pos int) action {
	if pos == s.pos {
		return actNone
	}
	s.pos = pos
	return actRedraw
}

// cut removes buf[from:to] and leaves the cursor at from.
func (s *lineState) cut(from, to int) action {
	if from >= to {
		return actNone
	}
	s.buf = append(s.buf[:from], s.buf[to:]...)
	s.pos = from
	return actRedraw
}

func (s *lineState) runeLeft() int {
	if s.pos == 0 {
		return 0
	}
	i := s.pos - 1
	for i > 0 && !utf8.RuneStart(s.buf[i]) {
		i--
	}
	return i
}

func (s *lineState) runeRight() int {
	if s.pos >= len(s.buf) {
		return len(s.buf)
	}
	_, size := utf8.DecodeRune(s.buf[s.pos:])
	return s.pos + size
}

func isSpace(b byte) bool { return b == ' ' || b == '\t' }

func (s *lineState) wordLeft() int {
	i := s.pos
	for i > 0 && isSpace(s.buf[i-1]) {
		i--
	}
	for i > 0 && !isSpace(s.buf[i-1]) {
		i--
	}
	return i
}

func (s *lineState) wordRight() int {
	i := s.pos
	for i < len(s.buf) && isSpace(s.buf[i]) {
		i++
	}
	for i < len(s.buf) && !isSpace(s.buf[i]) {
		i++
	}
	return i
}

func (s *lineState) historyPrev() action {
	if s.histPos == 0 {
		return actNone
	}
	if !s.browsing {
		s.draft = append(s.draft[:0], s.buf...)
		s.browsing = true
	}
	s.histPos--
	s.set([]byte(s.history[s.histPos]))
	return actRedraw
}

func (s *lineState) historyNext() action {
	if !s.browsing {
		return actNone
	}
	s.histPos++
	if s.histPos >= len(s.history) {
		s.histPos = len(s.history)
		s.browsing = false
		s.set(s.draft)
	} else {
		s.set([]byte(s.history[s.histPos]))
	}
	return actRedraw
}

func (s *lineState) set(line []byte) {
	s.buf = append(s.buf[:0], line...)
	s.pos = len(s.buf)
}

// redraw repaints prompt and buffer on the current terminal row and puts the
// cursor back in place.
func (s *lineState) redraw(w io.Writer, prompt string) {
	fmt.Fprintf(w, "\r\x1b[K%s%s", prompt, s.buf)
	if tail := utf8.RuneCount(s.buf[s.pos:]); tail > 0 {
		fmt.Fprintf(w, "\x1b[%dD", tail)
	}
}
