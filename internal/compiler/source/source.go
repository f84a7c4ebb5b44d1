// Package source owns source texts and the byte-indexed cursor used to walk
// them during lexing.
package source

import (
	"fmt"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Kind distinguishes how a Source's text was obtained.
type Kind int

const (
	KindBuiltin Kind = iota
	KindInMemory
	KindFile
)

// Source is one text the compiler can lex: the synthetic built-in source
// used for manufactured entities (built-in operators), an in-memory named
// buffer, or a file loaded from disk. Equality is by identity: two *Source
// values are the same source iff they are the same pointer.
type Source struct {
	kind Kind
	name string
	path string
	text string
}

// Builtin is the single sentinel source for compiler-manufactured spans
// (e.g. the declaration site of a built-in operator entity).
var Builtin = &Source{kind: KindBuiltin, name: "<built-in>"}

// InMemory creates a named, in-memory source. Useful for tests and for
// embedding hosts that don't have the text on disk.
func InMemory(name, text string) *Source {
	return &Source{kind: KindInMemory, name: name, text: text}
}

// File creates a source backed by file content already read into memory.
func File(path, text string) *Source {
	return &Source{kind: KindFile, name: filepath.Base(path), path: path, text: text}
}

func (s *Source) Kind() Kind { return s.kind }
func (s *Source) Name() string {
	if s == nil {
		return "<nil>"
	}
	return s.name
}
func (s *Source) Path() string { return s.path }
func (s *Source) Text() string { return s.text }

// Pool owns a set of sources loaded together, for example every file under a
// project root. Sources are created at load and destroyed only when the pool
// itself is dropped by the caller.
type Pool struct {
	sources []*Source
}

// NewPool creates an empty pool.
func NewPool() *Pool { return &Pool{} }

// FromFiles loads a pool from an explicit file list.
func FromFiles(paths []string) (*Pool, error) {
	p := NewPool()
	for _, path := range paths {
		if err := p.AddFile(path); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// FromDir recursively gathers files under root with the given extension
// (e.g. ".nb") into a new pool. File-system traversal is treated as a thin
// convenience here; a hosting tool is free to build its own Pool via
// AddFile/AddInMemory instead.
func FromDir(root, ext string) (*Pool, error) {
	p := NewPool()
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if filepath.Ext(path) != ext {
			return nil
		}
		return p.AddFile(path)
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// AddFile reads path and appends it to the pool.
func (p *Pool) AddFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("source: failed to read %s: %w", path, err)
	}
	p.sources = append(p.sources, File(path, string(data)))
	return nil
}

// AddInMemory appends an in-memory source to the pool.
func (p *Pool) AddInMemory(name, text string) *Source {
	s := InMemory(name, text)
	p.sources = append(p.sources, s)
	return s
}

// Sources returns every source currently in the pool, in load order.
func (p *Pool) Sources() []*Source {
	return p.sources
}

// Loc is a resolved line/column/byte-offset triple within a Source.
type Loc struct {
	Line   int // 0-based
	Column int // 0-based, in runes
	Offset int // byte offset
}

func (l Loc) String() string {
	return fmt.Sprintf("%d:%d", l.Line+1, l.Column+1)
}

// Locate computes the line/column of a byte offset by scanning from the
// start of the text. This is intentionally not cached per-character: spans
// are resolved lazily, only when a diagnostic actually needs to be rendered.
func (s *Source) Locate(offset int) Loc {
	if s == nil || s.kind == KindBuiltin {
		return Loc{}
	}
	line, col := 0, 0
	for i := 0; i < offset && i < len(s.text); {
		r, size := utf8.DecodeRuneInString(s.text[i:])
		if r == '\n' {
			line++
			col = 0
		} else {
			col++
		}
		i += size
	}
	return Loc{Line: line, Column: col, Offset: offset}
}

// Cursor walks a Source's text one rune at a time, offering O(1) peek/next
// with one-character lookahead plus the ability to step back.
type Cursor struct {
	src *Source
	pos int // byte offset of the next rune to be read
}

// NewCursor creates a cursor positioned at the start of src.
func NewCursor(src *Source) *Cursor {
	return &Cursor{src: src}
}

func (c *Cursor) Source() *Source { return c.src }

// Pos returns the current byte offset.
func (c *Cursor) Pos() int { return c.pos }

// Peek returns the rune at the cursor without consuming it, or (0, false) at
// end of input.
func (c *Cursor) Peek() (rune, bool) {
	return c.PeekAt(0)
}

// PeekAt returns the rune `ahead` runes past the cursor without consuming
// anything. PeekAt(0) is equivalent to Peek; PeekAt(1) is one-character
// lookahead past the current position.
func (c *Cursor) PeekAt(ahead int) (rune, bool) {
	text := c.src.text
	i := c.pos
	for ; ahead > 0; ahead-- {
		if i >= len(text) {
			return 0, false
		}
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	if i >= len(text) {
		return 0, false
	}
	r, _ := utf8.DecodeRuneInString(text[i:])
	return r, true
}

// Next consumes and returns the rune the cursor was at, advancing one
// position forward respecting UTF-8 boundaries.
func (c *Cursor) Next() (rune, bool) {
	r, ok := c.Peek()
	if !ok {
		return 0, false
	}
	_, size := utf8.DecodeRuneInString(c.src.text[c.pos:])
	c.pos += size
	return r, true
}

// Prev steps the cursor back one rune, respecting UTF-8 boundaries. It is a
// no-op at the start of input.
func (c *Cursor) Prev() {
	if c.pos == 0 {
		return
	}
	i := c.pos - 1
	for i > 0 && isUTF8Continuation(c.src.text[i]) {
		i--
	}
	c.pos = i
}

func isUTF8Continuation(b byte) bool {
	return b&0xC0 == 0x80
}

// AtEOF reports whether the cursor has exhausted the source text.
func (c *Cursor) AtEOF() bool {
	_, ok := c.Peek()
	return !ok
}
