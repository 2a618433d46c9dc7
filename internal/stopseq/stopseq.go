// Package stopseq truncates streamed model output at a stop sequence.
package stopseq

import (
	"iter"
	"strings"
)

// Truncate yields the text of seq up to, but not including, the first
// occurrence of stop in the concatenated output, then stops pulling from seq.
//
// Chunk boundaries are not preserved: text that may be the beginning of stop
// is held back until the following chunk decides it, and released when seq
// ends without a match. An empty stop passes seq through unchanged.
func Truncate(seq iter.Seq[string], stop string) iter.Seq[string] {
	if stop == "" {
		return seq
	}
	return func(yield func(string) bool) {
		var pending strings.Builder
		for chunk := range seq {
			pending.WriteString(chunk)
			buf := pending.String()

			if i := strings.Index(buf, stop); i >= 0 {
				if i > 0 {
					yield(buf[:i])
				}
				return
			}

			keep := partialSuffix(buf, stop)
			pending.Reset()
			pending.WriteString(buf[len(buf)-keep:])
			if out := buf[:len(buf)-keep]; out != "" {
				if !yield(out) {
					return
				}
			}
		}
		if pending.Len() > 0 {
			yield(pending.String())
		}
	}
}

// partialSuffix returns the length of the longest proper prefix of stop that
// is a suffix of s.
func partialSuffix(s, stop string) int {
	n := min(len(s), len(stop)-1)
	for k := n; k > 0; k-- {
		if strings.HasSuffix(s, stop[:k]) {
			return k
		}
	}
	return 0
}
