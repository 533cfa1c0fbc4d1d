//go:build windows

package native

// Default returns the Win32 backend. projectionRoot is ignored.
func Default(string) FS { return NewWindows() }
