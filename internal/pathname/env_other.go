//go:build !windows

package pathname

// System returns the Environment used on hosts without drive letters: the
// working directory is C:\ and no other drive has a recorded directory.
func System() Environment { return StaticEnvironment{Dir: `C:\`} }
