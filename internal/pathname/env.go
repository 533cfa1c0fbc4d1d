package pathname

// Environment supplies the process state relative paths resolve against.
type Environment interface {
	// WorkingDirectory returns the absolute current directory.
	WorkingDirectory() (string, error)
	// DriveDirectory returns the current directory recorded for a drive
	// other than the working directory's drive.
	DriveDirectory(drive byte) (string, bool)
}

// StaticEnvironment is an Environment with fixed values.
type StaticEnvironment struct {
	Drives map[byte]string // keyed by upper-case drive letter
	Dir    string
}

func (e StaticEnvironment) WorkingDirectory() (string, error) {
	if e.Dir == "" {
		return `C:\`, nil
	}
	return e.Dir, nil
}

func (e StaticEnvironment) DriveDirectory(drive byte) (string, bool) {
	dir, ok := e.Drives[upper(drive)]
	return dir, ok
}
