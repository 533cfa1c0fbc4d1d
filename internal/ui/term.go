package ui

import (
	"os"

	"golang.org/x/term"
)

// Terminal reports whether f is a terminal and, if so, its width in
// columns (80 when the size is unknown).
func Terminal(f *os.File) (tty bool, width int) {
	fd := int(f.Fd()) //nolint:gosec // G115: fd values are small non-negative integers
	if !term.IsTerminal(fd) {
		return false, 0
	}
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return true, 80
	}
	return true, w
}
