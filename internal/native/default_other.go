//go:build !windows

package native

import "github.com/spf13/afero"

// Default returns a Projected backend over the host filesystem, storing
// drives, shares and volumes under projectionRoot.
func Default(projectionRoot string) FS {
	return NewProjected(afero.NewOsFs(), projectionRoot)
}
