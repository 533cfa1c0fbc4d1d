package pathname_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/pathname"
)

const testGUID = `{0a1b2c3d-4e5f-6789-abcd-ef0123456789}`

func newTestCanonicalizer() *pathname.Canonicalizer {
	return pathname.New(pathname.StaticEnvironment{
		Dir:    `C:\Users\me`,
		Drives: map[byte]string{'D': `D:\work`},
	})
}

func TestCanonicalize_Resolution(t *testing.T) {
	c := newTestCanonicalizer()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"outer whitespace", `  C:\Temp\file.txt   `, `C:\Temp\file.txt`},
		{"dotdot", `C:\a\b\..\c`, `C:\a\c`},
		{"forward slashes and runs", `C:/a//b/./c/`, `C:\a\b\c`},
		{"dotdot above root", `C:\..\..\x`, `C:\x`},
		{"drive root", `C:\`, `C:\`},
		{"drive root via dotdot", `C:\a\..`, `C:\`},
		{"internal spaces kept", `C:\Program Files\My App\x.txt`, `C:\Program Files\My App\x.txt`},
		{"trailing dot and space", `c:\dir\file. . `, `c:\dir\file`},
		{"all dots final", `C:\a\...`, `C:\a`},
		{"single dot final", `C:\dir\.`, `C:\dir`},
		{"relative", `docs\readme.md`, `C:\Users\me\docs\readme.md`},
		{"relative dot", `.`, `C:\Users\me`},
		{"relative dotdot", `..\other`, `C:\Users\other`},
		{"root relative", `\Windows`, `C:\Windows`},
		{"drive relative recorded", `D:proj`, `D:\work\proj`},
		{"drive relative unrecorded", `E:name`, `E:\name`},
		{"drive relative current drive", `C:name`, `C:\Users\me\name`},
		{"drive relative bare", `D:`, `D:\work`},
		{"unc", `\\server\share\dir\..\f.txt`, `\\server\share\f.txt`},
		{"unc dotdot above share", `\\server\share\..\..\x`, `\\server\share\x`},
		{"unc forward slashes", `//server/share/x`, `\\server\share\x`},
		{"unc root trailing", `\\server\share\`, `\\server\share`},
		{"device", `\\.\PhysicalDrive0`, `\\.\PhysicalDrive0`},
		{"device dotdot", `\\.\C:\a\..\b`, `\\.\C:\b`},
		{"volume guid", `\\?\Volume` + testGUID + `\dir\..\f`, `\\?\Volume` + testGUID + `\f`},
		{"volume guid root", `\\?\Volume` + testGUID + `\`, `\\?\Volume` + testGUID},
		{"extended keeps dotdot", `\\?\C:\a\..\b`, `\\?\C:\a\..\b`},
		{"extended unc trailing", `\\?\UNC\server\share\x\`, `\\?\UNC\server\share\x`},
		{"extended unc lowercase", `\\?\unc\server\share\x`, `\\?\UNC\server\share\x`},
		{"extended trailing dot", `\\?\C:\a\b.`, `\\?\C:\a\b`},
		{"extended drive root", `\\?\C:\`, `\\?\C:\`},
		{"stream", `C:\dir\file.txt:stream`, `C:\dir\file.txt:stream`},
		{"stream with type", `C:\dir\file.txt:stream:$DATA`, `C:\dir\file.txt:stream:$DATA`},
		{"default stream", `C:\dir\file.txt::$DATA`, `C:\dir\file.txt::$DATA`},
		{"directory stream", `C:\dir:meta`, `C:\dir:meta`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := c.Canonicalize(tt.input, pathname.Options{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.String())
		})
	}
}

func TestCanonicalize_Errors(t *testing.T) {
	c := newTestCanonicalizer()

	tests := []struct {
		name  string
		input string
		want  fserr.Kind
	}{
		{"empty", ``, fserr.InvalidPath},
		{"blank", `    `, fserr.InvalidPath},
		{"nul", "C:\\a\x00b", fserr.InvalidPath},
		{"tab", "C:\\a\tb", fserr.InvalidPath},
		{"less than", `C:\a<b`, fserr.InvalidPath},
		{"pipe", `C:\a|b`, fserr.InvalidPath},
		{"question mark", `C:\f?`, fserr.InvalidPath},
		{"wildcard", `C:\*.txt`, fserr.InvalidPath},
		{"illegal char removed by dotdot", `C:\a<b\..\c`, fserr.InvalidPath},
		{"colon in directory", `C:\a:b\c`, fserr.UnsupportedPath},
		{"stream without name", `C:\dir\:stream`, fserr.UnsupportedPath},
		{"stream type without dollar", `C:\f:s:DATA`, fserr.UnsupportedPath},
		{"too many colons", `C:\f:a:$b:c`, fserr.UnsupportedPath},
		{"digit drive", `1:\x`, fserr.UnsupportedPath},
		{"extended drive relative", `\\?\C:x`, fserr.UnsupportedPath},
		{"unc without share", `\\server`, fserr.InvalidPath},
		{"unc empty server", `\\\share`, fserr.InvalidPath},
		{"bad guid", `\\?\Volume{not-a-guid}\x`, fserr.InvalidPath},
		{"device without name", `\\.\`, fserr.InvalidPath},
		{"too long", `\\?\C:\` + strings.Repeat(`a\`, pathname.MaxLongPath/2+1), fserr.InvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Canonicalize(tt.input, pathname.Options{})
			require.Error(t, err)
			kind, _ := fserr.KindOf(err)
			assert.Equal(t, tt.want, kind, "error: %v", err)
		})
	}
}

func TestCanonicalize_LongPrefix(t *testing.T) {
	c := newTestCanonicalizer()
	tail := strings.Repeat(`abcdefghij\`, 30)

	t.Run("local", func(t *testing.T) {
		got, err := c.Canonicalize(`C:\`+tail, pathname.Options{})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got.String(), `\\?\C:\abcdefghij\`), got)
		assert.False(t, strings.HasSuffix(got.String(), `\`))
		assert.False(t, strings.HasPrefix(got.String(), pathname.LongUNCPrefix))
	})

	t.Run("unc", func(t *testing.T) {
		got, err := c.Canonicalize(`\\server\share\`+tail, pathname.Options{})
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(got.String(), `\\?\UNC\server\share\abcdefghij\`), got)
		assert.False(t, strings.HasSuffix(got.String(), `\`))
	})

	t.Run("300 characters", func(t *testing.T) {
		input := `C:\` + strings.Repeat("x", 200) + `\` + strings.Repeat("y", 96)
		require.Len(t, input, 300)

		got, err := c.Canonicalize(input, pathname.Options{})
		require.NoError(t, err)
		assert.Equal(t, `\\?\`+input, got.String())
	})

	t.Run("threshold boundary", func(t *testing.T) {
		at := `C:\` + strings.Repeat("a", pathname.MaxPath-3)
		got, err := c.Canonicalize(at, pathname.Options{})
		require.NoError(t, err)
		assert.Equal(t, at, got.String())

		over := at + "b"
		got, err = c.Canonicalize(over, pathname.Options{})
		require.NoError(t, err)
		assert.Equal(t, `\\?\`+over, got.String())
	})

	t.Run("custom threshold", func(t *testing.T) {
		small := &pathname.Canonicalizer{Threshold: 10}
		got, err := small.Canonicalize(`C:\abcdefghijk`, pathname.Options{})
		require.NoError(t, err)
		assert.Equal(t, `\\?\C:\abcdefghijk`, got.String())
	})
}

func TestCanonicalize_ForceLong(t *testing.T) {
	c := newTestCanonicalizer()
	opts := pathname.Options{ForceLong: true}

	tests := []struct{ input, want string }{
		{`C:\x`, `\\?\C:\x`},
		{`C:\`, `\\?\C:\`},
		{`\\s\sh\x`, `\\?\UNC\s\sh\x`},
		{`\\.\COM1`, `\\.\COM1`},
		{`\\?\Volume` + testGUID + `\x`, `\\?\Volume` + testGUID + `\x`},
		{`rel`, `\\?\C:\Users\me\rel`},
	}
	for _, tt := range tests {
		got, err := c.Canonicalize(tt.input, opts)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got.String(), tt.input)
	}
}

func TestCanonicalize_KeepDotOrSpace(t *testing.T) {
	c := newTestCanonicalizer()
	opts := pathname.Options{KeepDotOrSpace: true}

	got, err := c.Canonicalize(`C:\dir\name. `, opts)
	require.NoError(t, err)
	assert.Equal(t, `\\?\C:\dir\name. `, got.String())

	again, err := c.Canonicalize(got.String(), opts)
	require.NoError(t, err)
	assert.Equal(t, got, again)

	plain, err := c.Canonicalize(`C:\dir\name`, opts)
	require.NoError(t, err)
	assert.Equal(t, `C:\dir\name`, plain.String())
}

func TestCanonicalize_TrailingSeparator(t *testing.T) {
	c := newTestCanonicalizer()
	opts := pathname.Options{TrailingSeparator: true}

	tests := []struct{ input, want string }{
		{`\\?\Volume` + testGUID, `\\?\Volume` + testGUID + `\`},
		{`\\?\Volume` + testGUID + `\`, `\\?\Volume` + testGUID + `\`},
		{`\\.\C:`, `\\.\C:\`},
		{`C:\dir`, `C:\dir\`},
		{`C:\`, `C:\`},
		{`\\server\share`, `\\server\share\`},
	}
	for _, tt := range tests {
		got, err := c.Canonicalize(tt.input, opts)
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.want, got.String(), tt.input)
	}
}

func TestCanonicalize_Idempotent(t *testing.T) {
	c := newTestCanonicalizer()
	inputs := []string{
		`  C:\Temp\file.txt   `,
		`C:\a\b\..\c`,
		`C:/a//b/./c/`,
		`C:\`,
		`c:\dir\file. . `,
		`docs\readme.md`,
		`\Windows`,
		`D:proj`,
		`E:name`,
		`\\server\share\dir\..\f.txt`,
		`\\server\share\`,
		`\\.\PhysicalDrive0`,
		`\\.\C:\a\..\b`,
		`\\?\Volume` + testGUID + `\dir`,
		`\\?\Volume` + testGUID + `\`,
		`\\?\C:\a\..\b`,
		`\\?\UNC\server\share\x\`,
		`C:\dir\file.txt:stream:$DATA`,
		`C:\` + strings.Repeat(`abcdefghij\`, 30),
		`\\server\share\` + strings.Repeat(`abcdefghij\`, 30),
		`C:\dir\name. `,
	}
	optionSets := []pathname.Options{
		{},
		{ForceLong: true},
		{TrailingSeparator: true},
		{KeepDotOrSpace: true},
		{KeepDotOrSpace: true, TrailingSeparator: true, ForceLong: true},
	}

	for _, opts := range optionSets {
		for _, in := range inputs {
			once, err := c.Canonicalize(in, opts)
			require.NoError(t, err, "%q %+v", in, opts)
			twice, err := c.Canonicalize(once.String(), opts)
			require.NoError(t, err, "%q %+v", once, opts)
			assert.Equal(t, once, twice, "input %q options %+v", in, opts)
		}
	}
}

func TestCanonicalize_ZeroValue(t *testing.T) {
	var c pathname.Canonicalizer
	got, err := c.Canonicalize(`a\b`, pathname.Options{})
	require.NoError(t, err)
	assert.Equal(t, `C:\a\b`, got.String())

	got, err = c.Canonicalize(`Q:x`, pathname.Options{})
	require.NoError(t, err)
	assert.Equal(t, `Q:\x`, got.String())
}

func TestCanonicalize_RelativeWorkingDirectory(t *testing.T) {
	c := pathname.New(pathname.StaticEnvironment{Dir: `\\srv\share\team`})

	got, err := c.Canonicalize(`notes.txt`, pathname.Options{})
	require.NoError(t, err)
	assert.Equal(t, `\\srv\share\team\notes.txt`, got.String())

	got, err = c.Canonicalize(`\top.txt`, pathname.Options{})
	require.NoError(t, err)
	assert.Equal(t, `\\srv\share\top.txt`, got.String())

	bad := pathname.New(pathname.StaticEnvironment{Dir: `relative\dir`})
	_, err = bad.Canonicalize(`x`, pathname.Options{})
	assert.ErrorIs(t, err, fserr.ErrInvalidPath)
}
