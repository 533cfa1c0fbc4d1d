// Package nativetest provides an in-memory native.FS with reparse points,
// multiple volumes, failure injection and a call log.
package nativetest

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bamsammich/widepath/internal/fserr"
	"github.com/bamsammich/widepath/internal/native"
	"github.com/bamsammich/widepath/internal/pathname"
)

// Compile-time interface checks.
var (
	_ native.FS     = (*FS)(nil)
	_ native.Hasher = (*FS)(nil)
)

// Op names one native primitive.
type Op string

const (
	OpStat          Op = "stat"
	OpReadDir       Op = "readdir"
	OpCopyFile      Op = "copy"
	OpMove          Op = "move"
	OpRemoveFile    Op = "remove"
	OpRemoveDir     Op = "rmdir"
	OpSetAttributes Op = "setattr"
	OpCreateDir     Op = "mkdir"
	OpCreateLink    Op = "link"
	OpReadLink      Op = "readlink"
	OpHash          Op = "hash"
)

// Call records one primitive invocation.
type Call struct {
	Tx     *native.Transaction
	Op     Op
	Path   pathname.Path
	Target pathname.Path // destination of copy and move
}

type node struct {
	modTime  time.Time
	children map[string]*node // keyed by upper-cased name
	name     string
	target   string
	data     []byte
	attr     native.Attr
	tag      native.ReparseTag
}

func (n *node) isDir() bool { return n.attr.Has(native.AttrDirectory) }

type fault struct {
	err   error
	op    Op
	path  string
	times int // remaining; <0 means forever
}

type hook struct {
	fn   func(*FS)
	op   Op
	path string
}

// FS is an in-memory filesystem. Every root (C:\, \\server\share,
// \\?\Volume{GUID}) is its own volume. Paths compare case-insensitively.
// Removing a read-only entry fails with AccessDenied.
type FS struct {
	roots  map[string]*node
	now    func() time.Time
	faults []*fault
	hooks  []*hook
	calls  []Call
	mu     sync.Mutex
}

// New returns an empty FS with drive C:\ present.
func New() *FS {
	f := &FS{roots: make(map[string]*node), now: time.Now}
	f.AddVolume(`C:\`)
	return f
}

func rootKey(root string) string { return strings.ToUpper(strings.TrimSuffix(root, `\`)) }

// split returns the volume key and the components below it.
func split(p pathname.Path) (string, []string) {
	r := pathname.Regular(p)
	rest := strings.TrimPrefix(string(r)[len(r.Root()):], `\`)
	var parts []string
	for _, s := range strings.Split(rest, `\`) {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return rootKey(r.Root()), parts
}

func keyOf(p pathname.Path) string {
	root, parts := split(p)
	return strings.ToUpper(root + `\` + strings.Join(parts, `\`))
}

// AddVolume creates an empty volume rooted at root.
func (f *FS) AddVolume(root string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := rootKey(root)
	if _, ok := f.roots[key]; !ok {
		f.roots[key] = &node{name: root, attr: native.AttrDirectory, children: map[string]*node{}, modTime: f.now()}
	}
}

// maxLinkDepth bounds reparse point resolution.
const maxLinkDepth = 32

// lookup returns the node at p and its parent. Reparse points in
// intermediate components are resolved through their targets; the final
// component is not followed.
func (f *FS) lookup(p pathname.Path) (n, parent *node) {
	return f.resolve(p, 0)
}

func (f *FS) resolve(p pathname.Path, depth int) (n, parent *node) {
	if depth > maxLinkDepth {
		return nil, nil
	}
	root, parts := split(p)
	n = f.roots[root]
	for _, part := range parts {
		if n != nil && n.attr.Has(native.AttrReparsePoint) {
			n = f.follow(n, depth+1)
		}
		if n == nil || n.children == nil {
			return nil, nil
		}
		parent = n
		n = n.children[strings.ToUpper(part)]
	}
	return n, parent
}

// follow returns the node a reparse point leads to, or nil when the
// target is missing or relative.
func (f *FS) follow(n *node, depth int) *node {
	for n != nil && n.attr.Has(native.AttrReparsePoint) {
		if depth > maxLinkDepth || !pathname.Classify(n.target).Rooted {
			return nil
		}
		n, _ = f.resolve(pathname.Path(n.target), depth+1)
		depth++
	}
	return n
}

func (f *FS) parentOf(p pathname.Path) *node {
	_, parts := split(p)
	if len(parts) == 0 {
		return nil
	}
	n, _ := f.lookup(p.Dir())
	n = f.follow(n, 0)
	if n == nil || !n.isDir() {
		return nil
	}
	return n
}

func notFound(op Op, p pathname.Path) error {
	return fserr.FromCode(fserr.CodeFileNotFound, string(op), string(p), errors.New("no such entry"))
}

// enter logs a call, runs hooks and returns an injected failure, if any.
// It is called with the lock held; hooks run unlocked.
func (f *FS) enter(op Op, p, target pathname.Path, tx *native.Transaction) error {
	f.calls = append(f.calls, Call{Op: op, Path: p, Target: target, Tx: tx})

	key := keyOf(p)
	for i := 0; i < len(f.hooks); i++ {
		h := f.hooks[i]
		if h.op == op && h.path == key {
			f.hooks = append(f.hooks[:i], f.hooks[i+1:]...)
			f.mu.Unlock()
			h.fn(f)
			f.mu.Lock()
			i--
		}
	}
	for _, ft := range f.faults {
		if ft.op != op || ft.path != key || ft.times == 0 {
			continue
		}
		if ft.times > 0 {
			ft.times--
		}
		return fserr.WithPath(ft.err, string(op), string(p))
	}
	return nil
}

// Fail makes the next times calls of op on p fail with err. times < 0
// fails forever.
func (f *FS) Fail(op Op, p pathname.Path, err error, times int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.faults = append(f.faults, &fault{op: op, path: keyOf(p), err: err, times: times})
}

// Before runs fn once, just before the next call of op on p.
func (f *FS) Before(op Op, p pathname.Path, fn func(*FS)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hooks = append(f.hooks, &hook{op: op, path: keyOf(p), fn: fn})
}

// Calls returns a copy of the call log.
func (f *FS) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsOf returns the logged calls of the given ops, in order.
func (f *FS) CallsOf(ops ...Op) []Call {
	var out []Call
	for _, c := range f.Calls() {
		for _, op := range ops {
			if c.Op == op {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// ResetCalls clears the call log.
func (f *FS) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

func (f *FS) put(p pathname.Path, n *node) error {
	parent := f.parentOf(p)
	if parent == nil {
		return fserr.FromCode(fserr.CodePathNotFound, "create", string(p), errors.New("parent does not exist"))
	}
	key := strings.ToUpper(p.Base())
	if _, ok := parent.children[key]; ok {
		return fserr.FromCode(fserr.CodeAlreadyExists, "create", string(p), errors.New("entry exists"))
	}
	n.name = p.Base()
	n.modTime = f.now()
	parent.children[key] = n
	return nil
}

// MkdirAll creates p and any missing parents.
func (f *FS) MkdirAll(p pathname.Path) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	root, parts := split(p)
	n, ok := f.roots[root]
	if !ok {
		return fmt.Errorf("mkdir %s: no volume %s", p, root)
	}
	for _, part := range parts {
		child, ok := n.children[strings.ToUpper(part)]
		if !ok {
			child = &node{name: part, attr: native.AttrDirectory, children: map[string]*node{}, modTime: f.now()}
			n.children[strings.ToUpper(part)] = child
		}
		if !child.isDir() || child.attr.Has(native.AttrReparsePoint) {
			return fmt.Errorf("mkdir %s: %s is not a directory", p, part)
		}
		n = child
	}
	return nil
}

// WriteFile creates or replaces a file, creating parents as needed.
func (f *FS) WriteFile(p pathname.Path, data []byte) error {
	if err := f.MkdirAll(p.Dir()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	parent := f.parentOf(p)
	parent.children[strings.ToUpper(p.Base())] = &node{
		name:    p.Base(),
		attr:    native.AttrArchive,
		data:    append([]byte(nil), data...),
		modTime: f.now(),
	}
	return nil
}

// Symlink creates a symbolic link. dir selects a directory link.
func (f *FS) Symlink(link pathname.Path, target string, dir bool) error {
	attr := native.AttrReparsePoint
	if dir {
		attr |= native.AttrDirectory
	}
	return f.link(link, target, attr, native.TagSymlink)
}

// Junction creates a mount-point reparse point. Pointing it at another
// volume's root models a mounted volume.
func (f *FS) Junction(link pathname.Path, target string) error {
	return f.link(link, target, native.AttrReparsePoint|native.AttrDirectory, native.TagMountPoint)
}

func (f *FS) link(link pathname.Path, target string, attr native.Attr, tag native.ReparseTag) error {
	if err := f.MkdirAll(link.Dir()); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.put(link, &node{attr: attr, tag: tag, target: target})
}

// SetAttr replaces the attribute bits of p, keeping the directory and
// reparse bits.
func (f *FS) SetAttr(p pathname.Path, attr native.Attr) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := f.lookup(p)
	if n == nil {
		return notFound(OpSetAttributes, p)
	}
	n.attr = n.attr&(native.AttrDirectory|native.AttrReparsePoint) | attr
	return nil
}

// Exists reports whether p exists.
func (f *FS) Exists(p pathname.Path) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := f.lookup(p)
	return n != nil
}

// ReadFile returns the content of a file.
func (f *FS) ReadFile(p pathname.Path) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := f.lookup(p)
	if n == nil || n.isDir() {
		return nil, notFound("read", p)
	}
	return append([]byte(nil), n.data...), nil
}

// Delete removes p and everything beneath it, bypassing attributes.
func (f *FS) Delete(p pathname.Path) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, parent := f.lookup(p); parent != nil {
		delete(parent.children, strings.ToUpper(p.Base()))
	}
}

// Tree lists every path under root, sorted, relative to root.
func (f *FS) Tree(root pathname.Path) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, _ := f.lookup(root)
	if n == nil {
		return nil
	}
	var out []string
	var visit func(prefix string, n *node)
	visit = func(prefix string, n *node) {
		for _, c := range n.children {
			rel := c.name
			if prefix != "" {
				rel = prefix + `\` + c.name
			}
			out = append(out, rel)
			if c.children != nil {
				visit(rel, c)
			}
		}
	}
	visit("", n)
	sort.Strings(out)
	return out
}

func attributesOf(n *node) native.Attributes {
	a := native.Attributes{Attr: n.attr, Tag: n.tag, ModTime: n.modTime}
	if !n.isDir() {
		a.Size = int64(len(n.data))
	}
	return a
}

func (f *FS) Stat(_ context.Context, p pathname.Path, tx *native.Transaction) (native.Attributes, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpStat, p, "", tx); err != nil {
		return native.Attributes{}, err
	}
	n, _ := f.lookup(p)
	if n == nil {
		return native.Attributes{}, notFound(OpStat, p)
	}
	return attributesOf(n), nil
}

func (f *FS) ReadDir(_ context.Context, dir pathname.Path, tx *native.Transaction) ([]native.DirEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpReadDir, dir, "", tx); err != nil {
		return nil, err
	}
	n, _ := f.lookup(dir)
	switch {
	case n == nil:
		return nil, fserr.FromCode(fserr.CodePathNotFound, string(OpReadDir), string(dir), errors.New("no such directory"))
	case !n.isDir():
		return nil, fserr.FromCode(fserr.CodeDirectory, string(OpReadDir), string(dir), errors.New("not a directory"))
	}
	if n = f.follow(n, 0); n == nil {
		return nil, fserr.FromCode(fserr.CodePathNotFound, string(OpReadDir), string(dir), errors.New("link target missing"))
	}

	entries := make([]native.DirEntry, 0, len(n.children))
	for _, c := range n.children {
		entries = append(entries, native.DirEntry{Name: c.name, Attributes: attributesOf(c)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (f *FS) CopyFile(_ context.Context, src, dst pathname.Path, overwrite bool, tx *native.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpCopyFile, src, dst, tx); err != nil {
		return err
	}
	s, _ := f.lookup(src)
	if s = f.follow(s, 0); s == nil {
		return notFound(OpCopyFile, src)
	}
	if s.isDir() {
		return fserr.FromCode(fserr.CodeAccessDenied, string(OpCopyFile), string(src), errors.New("source is a directory"))
	}
	if err := f.replace(OpCopyFile, dst, overwrite); err != nil {
		return err
	}
	return f.put(dst, &node{attr: s.attr &^ native.AttrReparsePoint, data: append([]byte(nil), s.data...)})
}

// replace clears dst for a copy or move.
func (f *FS) replace(op Op, dst pathname.Path, overwrite bool) error {
	d, parent := f.lookup(dst)
	switch {
	case d == nil:
		return nil
	case !overwrite:
		return fserr.FromCode(fserr.CodeFileExists, string(op), string(dst), errors.New("destination exists"))
	case d.isDir():
		return fserr.FromCode(fserr.CodeAccessDenied, string(op), string(dst), errors.New("destination is a directory"))
	case d.attr.Has(native.AttrReadOnly):
		return fserr.FromCode(fserr.CodeAccessDenied, string(op), string(dst), errors.New("destination is read-only"))
	}
	delete(parent.children, strings.ToUpper(dst.Base()))
	return nil
}

func (f *FS) Move(_ context.Context, src, dst pathname.Path, overwrite bool, tx *native.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpMove, src, dst, tx); err != nil {
		return err
	}
	s, sp := f.lookup(src)
	if s == nil || sp == nil {
		return notFound(OpMove, src)
	}
	srcRoot, _ := split(src)
	dstRoot, _ := split(dst)
	if srcRoot != dstRoot {
		return fserr.FromCode(fserr.CodeNotSameDevice, string(OpMove), string(src),
			fmt.Errorf("cannot move to %s", dst))
	}
	if pathname.Equal(src, dst) {
		s.name = dst.Base()
		return nil
	}
	if pathname.Within(dst, src) || pathname.Within(src, dst) {
		return fserr.FromCode(fserr.CodeAccessDenied, string(OpMove), string(src), errors.New("destination overlaps source"))
	}
	if err := f.replace(OpMove, dst, overwrite); err != nil {
		return err
	}
	if err := f.put(dst, s); err != nil {
		return err
	}
	delete(sp.children, strings.ToUpper(src.Base()))
	return nil
}

func (f *FS) RemoveFile(_ context.Context, p pathname.Path, tx *native.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpRemoveFile, p, "", tx); err != nil {
		return err
	}
	n, parent := f.lookup(p)
	switch {
	case n == nil || parent == nil:
		return notFound(OpRemoveFile, p)
	case n.isDir():
		return fserr.FromCode(fserr.CodeAccessDenied, string(OpRemoveFile), string(p), errors.New("entry is a directory"))
	case n.attr.Has(native.AttrReadOnly):
		return fserr.FromCode(fserr.CodeAccessDenied, string(OpRemoveFile), string(p), errors.New("entry is read-only"))
	}
	delete(parent.children, strings.ToUpper(p.Base()))
	return nil
}

func (f *FS) RemoveDir(_ context.Context, p pathname.Path, tx *native.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpRemoveDir, p, "", tx); err != nil {
		return err
	}
	n, parent := f.lookup(p)
	switch {
	case n == nil || parent == nil:
		return notFound(OpRemoveDir, p)
	case !n.isDir():
		return fserr.FromCode(fserr.CodeDirectory, string(OpRemoveDir), string(p), errors.New("not a directory"))
	case n.attr.Has(native.AttrReadOnly):
		return fserr.FromCode(fserr.CodeAccessDenied, string(OpRemoveDir), string(p), errors.New("entry is read-only"))
	case len(n.children) > 0:
		return fserr.FromCode(fserr.CodeDirNotEmpty, string(OpRemoveDir), string(p), errors.New("directory not empty"))
	}
	delete(parent.children, strings.ToUpper(p.Base()))
	return nil
}

func (f *FS) SetAttributes(_ context.Context, p pathname.Path, attr native.Attr, tx *native.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpSetAttributes, p, "", tx); err != nil {
		return err
	}
	n, _ := f.lookup(p)
	if n == nil {
		return notFound(OpSetAttributes, p)
	}
	attr &^= native.AttrNormal
	n.attr = n.attr&(native.AttrDirectory|native.AttrReparsePoint) | attr&^(native.AttrDirectory|native.AttrReparsePoint)
	return nil
}

func (f *FS) CreateDir(_ context.Context, p pathname.Path, tx *native.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpCreateDir, p, "", tx); err != nil {
		return err
	}
	return f.put(p, &node{attr: native.AttrDirectory, children: map[string]*node{}})
}

func (f *FS) CreateLink(
	_ context.Context,
	link pathname.Path,
	target string,
	kind native.LinkKind,
	tx *native.Transaction,
) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpCreateLink, link, pathname.Path(target), tx); err != nil {
		return err
	}
	n := &node{attr: native.AttrReparsePoint, tag: native.TagSymlink, target: target}
	switch kind {
	case native.LinkDirectory:
		n.attr |= native.AttrDirectory
	case native.LinkJunction:
		n.attr |= native.AttrDirectory
		n.tag = native.TagMountPoint
	}
	return f.put(link, n)
}

func (f *FS) ReadLink(_ context.Context, p pathname.Path, tx *native.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpReadLink, p, "", tx); err != nil {
		return "", err
	}
	n, _ := f.lookup(p)
	switch {
	case n == nil:
		return "", notFound(OpReadLink, p)
	case !n.attr.Has(native.AttrReparsePoint):
		return "", fserr.FromCode(fserr.CodeNotAReparsePoint, string(OpReadLink), string(p), errors.New("not a link"))
	}
	return n.target, nil
}

// Hash returns the hex BLAKE3 digest of a file.
func (f *FS) Hash(_ context.Context, p pathname.Path, tx *native.Transaction) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.enter(OpHash, p, "", tx); err != nil {
		return "", err
	}
	n, _ := f.lookup(p)
	if n == nil || n.isDir() {
		return "", notFound(OpHash, p)
	}
	sum := blake3.Sum256(n.data)
	return hex.EncodeToString(sum[:]), nil
}
