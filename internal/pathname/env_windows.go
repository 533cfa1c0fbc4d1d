package pathname

import "os"

// processEnvironment reads the live process state. The per-drive
// directories live in the hidden "=X:" environment variables.
type processEnvironment struct{}

// System returns the Environment of the running process.
func System() Environment { return processEnvironment{} }

func (processEnvironment) WorkingDirectory() (string, error) { return os.Getwd() }

func (processEnvironment) DriveDirectory(drive byte) (string, bool) {
	dir := os.Getenv("=" + string(upper(drive)) + ":")
	return dir, dir != ""
}
