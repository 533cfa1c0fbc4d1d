package pathname

import (
	"strings"
	"unicode/utf16"

	"github.com/google/uuid"

	"github.com/bamsammich/widepath/internal/fserr"
)

const (
	// MaxPath is the default short-path threshold.
	MaxPath = 260
	// MaxLongPath is the longest path the extended form accepts.
	MaxLongPath = 32767

	opCanonicalize = "canonicalize"
	illegalChars   = `<>"|?*`
)

// Options controls Canonicalize.
type Options struct {
	// KeepDotOrSpace preserves trailing dots and spaces on the final
	// component. Such a path is always returned in extended form because
	// the native layer strips them otherwise.
	KeepDotOrSpace bool
	// TrailingSeparator ensures the result ends with a separator.
	TrailingSeparator bool
	// ForceLong returns the extended-length form regardless of length.
	ForceLong bool
}

// prefixRule describes how a root kind is rewritten into extended form.
type prefixRule struct {
	prefix  string // prepended
	replace string // leading text removed before prepending
}

// longPrefixes maps every root kind to its extended-length rewrite. Local
// and UNC prefixes differ and must never be interchanged.
var longPrefixes = map[RootKind]prefixRule{
	RootDrive: {prefix: LongPrefix},
	RootUNC:   {prefix: LongUNCPrefix, replace: UNCPrefix},
	// \\.\ paths already bypass the length limit.
	RootDevice: {},
	// Volume GUID paths always carry \\?\.
	RootVolume: {},
	RootNone:   {},
}

// Canonicalizer rewrites paths in any accepted notation into their
// canonical form. The zero value has no environment: relative and
// drive-relative inputs then resolve against C:\ and the drive root.
type Canonicalizer struct {
	Env Environment
	// Threshold is the length above which the extended prefix is added.
	// Zero means MaxPath.
	Threshold int
}

// New returns a Canonicalizer resolving relative input against env.
func New(env Environment) *Canonicalizer {
	return &Canonicalizer{Env: env, Threshold: MaxPath}
}

func (c *Canonicalizer) threshold() int {
	if c == nil || c.Threshold <= 0 {
		return MaxPath
	}
	return c.Threshold
}

// Canonicalize returns the canonical form of input. It fails with
// InvalidPath for control or reserved characters and malformed roots, and
// with UnsupportedPath for a colon that is neither a drive separator nor
// a stream separator in the final component. Canonicalizing a canonical
// path with the same options returns it unchanged.
func (c *Canonicalizer) Canonicalize(input string, opts Options) (Path, error) {
	for i := range len(input) {
		if input[i] < 0x20 {
			return "", fserr.Errorf(fserr.InvalidPath, opCanonicalize, input,
				"control character 0x%02x at offset %d", input[i], i)
		}
	}

	// Trailing spaces survive when the caller asked to keep them.
	s := strings.TrimLeft(input, " ")
	if !opts.KeepDotOrSpace {
		s = strings.TrimRight(s, " ")
	}
	if s == "" {
		return "", fserr.Errorf(fserr.InvalidPath, opCanonicalize, input, "empty path")
	}
	s = toBackslash(s)

	cls := Classify(s)
	if cls.Form == ExtendedLength {
		return c.canonicalizeExtended(input, s, cls, opts)
	}

	s, cls, err := c.absolute(input, s, cls)
	if err != nil {
		return "", err
	}

	root, rest, err := splitRoot(input, s, cls.Root)
	if err != nil {
		return "", err
	}

	segs, err := segments(input, rest, true)
	if err != nil {
		return "", err
	}
	segs = trimFinal(segs, opts.KeepDotOrSpace)

	p := joinSegments(root, segs)
	if opts.ForceLong || utf16Len(p) > c.threshold() || (opts.KeepDotOrSpace && endsWithDotOrSpace(last(segs))) {
		p = addLongPrefix(cls.Root, p)
	}
	return finish(input, p, opts)
}

func (c *Canonicalizer) canonicalizeExtended(input, s string, cls Classification, opts Options) (Path, error) {
	body := s[len(cls.Prefix):]

	var root, rest string
	switch cls.Root {
	case RootUNC:
		server, share, tail, err := splitUNC(input, body)
		if err != nil {
			return "", err
		}
		root, rest = LongUNCPrefix+server+`\`+share, tail
	case RootDrive:
		rest = body[2:]
		if rest != "" && rest[0] != Separator {
			return "", fserr.Errorf(fserr.UnsupportedPath, opCanonicalize, input,
				"drive-relative component in extended path")
		}
		root = LongPrefix + body[:2] + `\`
	default:
		name, tail, _ := strings.Cut(body, `\`)
		if name == "" || strings.ContainsAny(name, illegalChars) {
			return "", fserr.Errorf(fserr.InvalidPath, opCanonicalize, input, "malformed extended root %q", name)
		}
		root, rest = LongPrefix+name, tail
	}

	segs, err := segments(input, rest, false)
	if err != nil {
		return "", err
	}
	segs = trimFinal(segs, opts.KeepDotOrSpace)
	return finish(input, joinSegments(root, segs), opts)
}

// absolute resolves relative and drive-relative input against the
// environment. Rooted input is returned unchanged.
func (c *Canonicalizer) absolute(input, s string, cls Classification) (string, Classification, error) {
	var joined string
	switch {
	case cls.Form == DriveAbsolute && !cls.Rooted:
		base, err := c.base(input, c.driveDirectory(s[0]))
		if err != nil {
			return "", cls, err
		}
		joined = base + `\` + s[2:]
	case cls.Form == Relative:
		wd := `C:\`
		if c != nil && c.Env != nil {
			dir, err := c.Env.WorkingDirectory()
			if err != nil {
				return "", cls, fserr.New(fserr.InvalidPath, opCanonicalize, input, err)
			}
			wd = dir
		}
		base, err := c.base(input, wd)
		if err != nil {
			return "", cls, err
		}
		if strings.HasPrefix(s, `\`) {
			// Root-relative: keep only the root of the working directory.
			joined = base[:rootLen(base)] + s
		} else {
			joined = base + `\` + s
		}
	default:
		return s, cls, nil
	}
	return joined, Classify(joined), nil
}

// base canonicalizes a directory used to resolve relative input and
// returns it in regular (unprefixed) form.
func (c *Canonicalizer) base(input, dir string) (string, error) {
	if !Classify(dir).Rooted {
		return "", fserr.Errorf(fserr.InvalidPath, opCanonicalize, input,
			"base directory %q is not absolute", dir)
	}
	p, err := c.Canonicalize(dir, Options{})
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(Regular(p)), `\`), nil
}

// driveDirectory returns the current directory of drive. A drive with no
// recorded directory resolves to its root.
func (c *Canonicalizer) driveDirectory(drive byte) string {
	if c != nil && c.Env != nil {
		if wd, err := c.Env.WorkingDirectory(); err == nil {
			r := string(Regular(Path(toBackslash(wd))))
			if isDriveSpec(r) && upper(r[0]) == upper(drive) {
				return r
			}
		}
		if dir, ok := c.Env.DriveDirectory(drive); ok {
			return dir
		}
	}
	return string([]byte{upper(drive), ':', '\\'})
}

// splitRoot splits an absolute, non-extended path into its root and the
// remainder. Roots other than drive roots carry no trailing separator.
func splitRoot(input, s string, kind RootKind) (root, rest string, err error) {
	switch kind {
	case RootDrive:
		return s[:2] + `\`, s[3:], nil
	case RootUNC:
		server, share, tail, err := splitUNC(input, s[len(UNCPrefix):])
		if err != nil {
			return "", "", err
		}
		return UNCPrefix + server + `\` + share, tail, nil
	case RootDevice:
		name, tail, _ := strings.Cut(s[len(DevicePrefix):], `\`)
		if name == "" || strings.ContainsAny(name, illegalChars) {
			return "", "", fserr.Errorf(fserr.InvalidPath, opCanonicalize, input, "malformed device name %q", name)
		}
		return DevicePrefix + name, tail, nil
	case RootVolume:
		name, tail, _ := strings.Cut(s[len(LongPrefix):], `\`)
		if err := validateVolumeName(input, name); err != nil {
			return "", "", err
		}
		return LongPrefix + "Volume" + name[len("Volume"):], tail, nil
	}
	return "", "", fserr.Errorf(fserr.InvalidPath, opCanonicalize, input, "path has no root")
}

func splitUNC(input, body string) (server, share, rest string, err error) {
	server, after, _ := strings.Cut(body, `\`)
	share, rest, _ = strings.Cut(after, `\`)
	if server == "" || share == "" {
		return "", "", "", fserr.Errorf(fserr.InvalidPath, opCanonicalize, input, "UNC path requires server and share")
	}
	for _, part := range []string{server, share} {
		if strings.ContainsAny(part, illegalChars+":") {
			return "", "", "", fserr.Errorf(fserr.InvalidPath, opCanonicalize, input, "illegal character in UNC root %q", part)
		}
	}
	return server, share, rest, nil
}

func validateVolumeName(input, name string) error {
	const guidLen = len("{00000000-0000-0000-0000-000000000000}")
	if len(name) != len("Volume")+guidLen || !strings.EqualFold(name[:len("Volume")], "Volume") {
		return fserr.Errorf(fserr.InvalidPath, opCanonicalize, input, "malformed volume name %q", name)
	}
	if _, err := uuid.Parse(name[len("Volume"):]); err != nil {
		return fserr.New(fserr.InvalidPath, opCanonicalize, input, err)
	}
	return nil
}

// segments validates every component of rest and, when collapse is set,
// evaluates "." and ".." lexically. ".." never climbs above the root.
// Empty components from separator runs are dropped.
func segments(input, rest string, collapse bool) ([]string, error) {
	parts := strings.Split(rest, `\`)
	final := len(parts) - 1
	for final > 0 && parts[final] == "" {
		final--
	}

	out := make([]string, 0, len(parts))
	for i, part := range parts {
		if part == "" {
			continue
		}
		if err := validateComponent(input, part, i == final); err != nil {
			return nil, err
		}
		if !collapse {
			out = append(out, part)
			continue
		}
		switch part {
		case ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return out, nil
}

// validateComponent rejects reserved characters and colons outside a
// stream suffix (name:stream or name:stream:$TYPE) on the final component.
func validateComponent(input, part string, final bool) error {
	if i := strings.IndexAny(part, illegalChars); i >= 0 {
		return fserr.Errorf(fserr.InvalidPath, opCanonicalize, input, "illegal character %q in %q", part[i], part)
	}
	if !strings.Contains(part, ":") {
		return nil
	}
	if final {
		fields := strings.Split(part, ":")
		switch len(fields) {
		case 2:
			if fields[0] != "" && fields[1] != "" {
				return nil
			}
		case 3:
			if fields[0] != "" && len(fields[2]) > 1 && fields[2][0] == '$' {
				return nil
			}
		}
	}
	return fserr.Errorf(fserr.UnsupportedPath, opCanonicalize, input, "colon not allowed in %q", part)
}

func trimFinal(segs []string, keep bool) []string {
	if keep || len(segs) == 0 {
		return segs
	}
	n := len(segs) - 1
	trimmed := strings.TrimRight(segs[n], ". ")
	if trimmed == "" {
		return segs[:n]
	}
	segs[n] = trimmed
	return segs
}

func joinSegments(root string, segs []string) string {
	var b strings.Builder
	b.WriteString(root)
	for i, seg := range segs {
		if i > 0 || !strings.HasSuffix(root, `\`) {
			b.WriteByte(Separator)
		}
		b.WriteString(seg)
	}
	return b.String()
}

func addLongPrefix(kind RootKind, p string) string {
	rule, ok := longPrefixes[kind]
	if !ok {
		panic("pathname: no long prefix rule for root kind " + kind.String())
	}
	if rule.prefix == "" || strings.HasPrefix(p, LongPrefix) {
		return p
	}
	return rule.prefix + strings.TrimPrefix(p, rule.replace)
}

// finish applies the trailing separator policy and the length limit.
func finish(input, p string, opts Options) (Path, error) {
	switch {
	case opts.TrailingSeparator && !strings.HasSuffix(p, `\`):
		p += `\`
	case !opts.TrailingSeparator && strings.HasSuffix(p, `\`) && !isDriveRoot(p):
		p = p[:len(p)-1]
	}
	if utf16Len(p) > MaxLongPath {
		return "", fserr.Errorf(fserr.InvalidPath, opCanonicalize, input, "path exceeds %d characters", MaxLongPath)
	}
	return Path(p), nil
}

// isDriveRoot reports whether p is C:\ or \\?\C:\.
func isDriveRoot(p string) bool {
	p = strings.TrimPrefix(p, LongPrefix)
	return len(p) == 3 && isDriveSpec(p) && p[2] == Separator
}

func endsWithDotOrSpace(s string) bool {
	return s != "" && (s[len(s)-1] == '.' || s[len(s)-1] == ' ')
}

func last(segs []string) string {
	if len(segs) == 0 {
		return ""
	}
	return segs[len(segs)-1]
}

func upper(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}
