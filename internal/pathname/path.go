package pathname

import (
	"strings"

	"github.com/bamsammich/widepath/internal/fserr"
)

// Path is a canonical path as returned by Canonicalize, Child or Join.
type Path string

func (p Path) String() string { return string(p) }

// IsLong reports whether p carries the \\?\ prefix.
func (p Path) IsLong() bool { return strings.HasPrefix(string(p), LongPrefix) }

// Form reports the notation of p.
func (p Path) Form() Form { return Classify(string(p)).Form }

// Root returns the root portion of p: C:\, \\server\share, \\?\C:\,
// \\?\UNC\server\share, \\.\device or \\?\Volume{GUID}.
func (p Path) Root() string { return string(p)[:rootLen(string(p))] }

// IsRoot reports whether p names only its root.
func (p Path) IsRoot() bool {
	return rootLen(string(p)) >= len(strings.TrimSuffix(string(p), `\`))
}

// Base returns the final component of p, or "" for a root.
func (p Path) Base() string {
	s := string(p)
	r := rootLen(s)
	if len(s) > r {
		s = strings.TrimSuffix(s, `\`)
	}
	if len(s) <= r {
		return ""
	}
	return s[strings.LastIndexByte(s, Separator)+1:]
}

// Dir returns the parent of p. The parent of a root is the root itself.
func (p Path) Dir() Path {
	s := string(p)
	r := rootLen(s)
	if len(s) > r {
		s = strings.TrimSuffix(s, `\`)
	}
	i := strings.LastIndexByte(s, Separator)
	if i < r {
		return Path(s[:r])
	}
	return Path(s[:i])
}

// Regular strips the extended prefix from drive and UNC paths. Other
// paths are returned unchanged.
func Regular(p Path) Path {
	s := string(p)
	switch {
	case hasFoldPrefix(s, LongUNCPrefix):
		return Path(UNCPrefix + s[len(LongUNCPrefix):])
	case strings.HasPrefix(s, LongPrefix) && isDriveSpec(s[len(LongPrefix):]):
		return Path(s[len(LongPrefix):])
	}
	return p
}

// Equal reports whether a and b name the same path, ignoring case and the
// extended prefix.
func Equal(a, b Path) bool {
	return strings.EqualFold(strings.TrimSuffix(string(Regular(a)), `\`),
		strings.TrimSuffix(string(Regular(b)), `\`))
}

// Within reports whether p is root or lies beneath it.
func Within(p, root Path) bool {
	rp := strings.TrimSuffix(string(Regular(p)), `\`)
	rr := strings.TrimSuffix(string(Regular(root)), `\`)
	return strings.EqualFold(rp, rr) || hasFoldPrefix(rp, rr+`\`)
}

// Rel returns p relative to root, separated by backslashes. ok is false
// when p is not within root. The relative path of root itself is "".
func (p Path) Rel(root Path) (rel string, ok bool) {
	rp := strings.TrimSuffix(string(Regular(p)), `\`)
	rr := strings.TrimSuffix(string(Regular(root)), `\`)
	switch {
	case strings.EqualFold(rp, rr):
		return "", true
	case hasFoldPrefix(rp, rr+`\`):
		return rp[len(rr)+1:], true
	}
	return "", false
}

// Child returns the canonical path of name inside parent. name must be a
// single component as returned by directory enumeration. The result is
// promoted to extended form when it crosses the threshold or when name
// ends with a dot or space.
func (c *Canonicalizer) Child(parent Path, name string) (Path, error) {
	const op = "join"
	switch {
	case name == "" || name == "." || name == "..":
		return "", fserr.Errorf(fserr.InvalidPath, op, string(parent), "invalid component %q", name)
	case strings.ContainsAny(name, `\/`):
		return "", fserr.Errorf(fserr.InvalidPath, op, string(parent), "component %q contains a separator", name)
	case strings.ContainsAny(name, illegalChars):
		return "", fserr.Errorf(fserr.InvalidPath, op, string(parent), "illegal character in %q", name)
	case strings.Contains(name, ":"):
		return "", fserr.Errorf(fserr.UnsupportedPath, op, string(parent), "colon not allowed in %q", name)
	}

	s := string(parent)
	if !strings.HasSuffix(s, `\`) {
		s += `\`
	}
	s += name
	if !Path(s).IsLong() && (utf16Len(s) > c.threshold() || endsWithDotOrSpace(name)) {
		s = addLongPrefix(Classify(s).Root, s)
	}
	if utf16Len(s) > MaxLongPath {
		return "", fserr.Errorf(fserr.InvalidPath, op, string(parent), "path exceeds %d characters", MaxLongPath)
	}
	return Path(s), nil
}

// Join appends the components of rel, separated by either separator, to
// base.
func (c *Canonicalizer) Join(base Path, rel string) (Path, error) {
	p := base
	for _, name := range strings.FieldsFunc(rel, func(r rune) bool { return r == '\\' || r == '/' }) {
		next, err := c.Child(p, name)
		if err != nil {
			return "", err
		}
		p = next
	}
	return p, nil
}

// rootLen returns the length of the root portion of a backslash path.
func rootLen(s string) int {
	cls := Classify(s)
	switch cls.Form {
	case ExtendedLength:
		switch cls.Root {
		case RootUNC:
			return uncRootLen(s, len(LongUNCPrefix))
		case RootDrive:
			return min(len(s), len(LongPrefix)+3)
		}
		return componentEnd(s, len(LongPrefix))
	case VolumeGUID:
		return componentEnd(s, len(LongPrefix))
	case Device:
		return componentEnd(s, len(DevicePrefix))
	case UNC:
		return uncRootLen(s, len(UNCPrefix))
	case DriveAbsolute:
		if cls.Rooted {
			return 3
		}
		return 2
	}
	return 0
}

func componentEnd(s string, from int) int {
	if from >= len(s) {
		return len(s)
	}
	i := strings.IndexByte(s[from:], Separator)
	if i < 0 {
		return len(s)
	}
	return from + i
}

func uncRootLen(s string, from int) int {
	end := componentEnd(s, from)
	if end == len(s) {
		return end
	}
	return componentEnd(s, end+1)
}
