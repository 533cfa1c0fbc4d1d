// Package pathname classifies Windows path notations and rewrites them into
// a single canonical long-path form.
package pathname

import "strings"

// Form identifies which notation a path string uses.
type Form int

const (
	Relative Form = iota
	DriveAbsolute
	UNC
	Device
	VolumeGUID
	ExtendedLength
)

var formNames = [...]string{
	Relative:       "Relative",
	DriveAbsolute:  "DriveAbsolute",
	UNC:            "UNC",
	Device:         "Device",
	VolumeGUID:     "VolumeGUID",
	ExtendedLength: "ExtendedLength",
}

func (f Form) String() string {
	if f >= 0 && int(f) < len(formNames) {
		return formNames[f]
	}
	return "Unknown"
}

// RootKind identifies what a path is rooted at. It selects the
// extended-length prefix.
type RootKind int

const (
	RootNone RootKind = iota
	RootDrive
	RootUNC
	RootDevice
	RootVolume
)

var rootNames = [...]string{
	RootNone:   "None",
	RootDrive:  "Drive",
	RootUNC:    "UNC",
	RootDevice: "Device",
	RootVolume: "Volume",
}

func (r RootKind) String() string {
	if r >= 0 && int(r) < len(rootNames) {
		return rootNames[r]
	}
	return "Unknown"
}

// Recognized prefixes.
const (
	LongPrefix    = `\\?\`
	LongUNCPrefix = `\\?\UNC\`
	DevicePrefix  = `\\.\`
	UNCPrefix     = `\\`
	VolumePrefix  = `\\?\Volume{`
)

// Separator is the canonical separator.
const Separator = '\\'

// Classification is the result of Classify.
type Classification struct {
	// Prefix is the literal notation prefix that was recognized, spelled
	// with backslashes. Empty for drive-letter and relative paths.
	Prefix string
	Form   Form
	Root   RootKind
	// Rooted is false for relative paths and for drive-relative paths of
	// the X:name kind.
	Rooted bool
}

// Classify reports which notation input uses. It performs no I/O and no
// validation. Detection order is device namespace, volume GUID, extended
// UNC, extended local, UNC, drive letter, relative; the first match wins.
func Classify(input string) Classification {
	s := toBackslash(input)

	switch {
	case strings.HasPrefix(s, DevicePrefix):
		return Classification{Form: Device, Root: RootDevice, Prefix: DevicePrefix, Rooted: true}
	case hasFoldPrefix(s, VolumePrefix):
		return Classification{Form: VolumeGUID, Root: RootVolume, Prefix: LongPrefix, Rooted: true}
	case hasFoldPrefix(s, LongUNCPrefix):
		return Classification{Form: ExtendedLength, Root: RootUNC, Prefix: LongUNCPrefix, Rooted: true}
	case strings.HasPrefix(s, LongPrefix):
		root := RootDevice
		if isDriveSpec(s[len(LongPrefix):]) {
			root = RootDrive
		}
		return Classification{Form: ExtendedLength, Root: root, Prefix: LongPrefix, Rooted: true}
	case strings.HasPrefix(s, UNCPrefix):
		return Classification{Form: UNC, Root: RootUNC, Prefix: UNCPrefix, Rooted: true}
	case isDriveSpec(s):
		return Classification{
			Form:   DriveAbsolute,
			Root:   RootDrive,
			Rooted: len(s) > 2 && s[2] == Separator,
		}
	}
	return Classification{Form: Relative, Root: RootNone}
}

// isDriveSpec reports whether s starts with a drive letter and colon.
func isDriveSpec(s string) bool {
	return len(s) >= 2 && isASCIILetter(s[0]) && s[1] == ':'
}

func isASCIILetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func hasFoldPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

func toBackslash(s string) string {
	return strings.ReplaceAll(s, "/", `\`)
}

func isSeparator(c byte) bool {
	return c == '\\' || c == '/'
}
