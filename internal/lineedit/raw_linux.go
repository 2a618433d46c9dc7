//go:build linux

package lineedit

import "golang.org/x/sys/unix"

// enterRaw disables canonical mode, echo and signal generation on fd so that
// Ctrl+C and Ctrl+D arrive as bytes. Output processing is left on.
func enterRaw(fd int) (func(), error) {
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, err
	}
	st := *old
	st.Lflag &^= unix.ICANON | unix.ECHO | unix.ISIG | unix.IEXTEN
	st.Iflag &^= unix.ICRNL | unix.IXON
	st.Cc[unix.VMIN] = 1
	st.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &st); err != nil {
		return nil, err
	}
	return func() { _ = unix.IoctlSetTermios(fd, unix.TCSETS, old) }, nil
}
