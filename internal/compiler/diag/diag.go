// Package diag implements the structured diagnostics the rest of the
// compiler reports through: messages with a level, a primary span, and an
// ordered list of notes, plus underline rendering of the offending source.
//
// Terminal color formatting is treated as an external collaborator (per
// spec.md §1): Render never emits ANSI escapes itself, but accepts an
// optional Colorizer a host can supply to decorate the rendered text.
package diag

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/btouchard/nibl/internal/compiler/source"
)

// Level is the severity of a diagnostic message.
type Level int

const (
	Info Level = iota
	Warning
	Error
)

func (l Level) String() string {
	switch l {
	case Info:
		return "Info"
	case Warning:
		return "Warning"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}

// Underline selects how a span is underlined when a message is rendered.
type Underline int

const (
	Squiggle Underline = iota // ~~~~ used for the primary span of an error
	Highlight                 // ^^^^ used to call out a sub-span
	Normal                    // ---- used under notes
)

// Note is a secondary annotation attached to a Message, optionally anchored
// at its own span (e.g. "previous declaration here").
type Note struct {
	Headline string
	At       *source.Span
}

// NoteAt creates a note anchored at a span.
func NoteAt(headline string, span source.Span) Note {
	return Note{Headline: headline, At: &span}
}

// NoteOnly creates a note with no span of its own.
func NoteOnly(headline string) Note {
	return Note{Headline: headline}
}

// Message is one structured diagnostic.
type Message struct {
	Level    Level
	Headline string
	Primary  source.Span
	Notes    []Note
}

// New creates a message with no notes.
func New(level Level, headline string, primary source.Span) *Message {
	return &Message{Level: level, Headline: headline, Primary: primary}
}

// WithNote appends a note and returns the message for chaining.
func (m *Message) WithNote(n Note) *Message {
	m.Notes = append(m.Notes, n)
	return m
}

// WithNoteIf appends a note only if present != nil, mirroring the original
// compiler's note_if helper used when an inference site may or may not be
// known.
func (m *Message) WithNoteIf(present *Note) *Message {
	if present != nil {
		m.Notes = append(m.Notes, *present)
	}
	return m
}

// Colorizer lets a host decorate rendered diagnostic text. Render never
// calls it unless one is supplied, and diag itself ships no implementation.
type Colorizer interface {
	Level(l Level, s string) string
	Underline(u Underline, s string) string
}

// Render writes a human-readable rendering of the message to w: the
// headline underlined at its primary span, followed by each note indented
// beneath it.
func (m *Message) Render(w io.Writer, c Colorizer) {
	levelStr := m.Level.String()
	if c != nil {
		levelStr = c.Level(m.Level, levelStr)
	}
	fmt.Fprintf(w, "%s: %s\n", levelStr, m.Headline)
	fmt.Fprint(w, underline(m.Primary, Squiggle, c))
	for _, n := range m.Notes {
		fmt.Fprintf(w, "  note: %s\n", indent(n.Headline))
		if n.At != nil {
			fmt.Fprint(w, indentBlock(underline(*n.At, Normal, c)))
		}
	}
}

func indent(s string) string {
	lines := strings.Split(s, "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = "    " + lines[i]
	}
	return strings.Join(lines, "\n")
}

func indentBlock(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i := range lines {
		lines[i] = "    " + lines[i]
	}
	return strings.Join(lines, "\n") + "\n"
}

// underline renders the single (or multi-) line source text covered by span
// with a run of underline characters beneath the covered columns.
func underline(span source.Span, style Underline, c Colorizer) string {
	start, end := span.Range()
	src := span.Src
	if src == nil {
		return ""
	}
	lines := strings.Split(src.Text(), "\n")
	if start.Line < 0 || start.Line >= len(lines) {
		return "/* invalid source range */\n"
	}

	ch := underlineChar(style)
	var b strings.Builder
	if start.Line == end.Line {
		line := lines[start.Line]
		b.WriteString(line)
		b.WriteByte('\n')
		width := end.Column - start.Column
		if width < 1 {
			width = 1
		}
		mark := strings.Repeat(" ", start.Column) + strings.Repeat(ch, width)
		if c != nil {
			mark = c.Underline(style, mark)
		}
		b.WriteString(mark)
		b.WriteByte('\n')
	} else {
		for i := start.Line; i <= end.Line && i < len(lines); i++ {
			line := lines[i]
			b.WriteString(line)
			b.WriteByte('\n')
			switch i {
			case start.Line:
				width := len(line) - start.Column
				if width < 1 {
					width = 1
				}
				b.WriteString(strings.Repeat(" ", start.Column) + strings.Repeat(ch, width))
			case end.Line:
				width := end.Column
				if width < 1 {
					width = 1
				}
				b.WriteString(strings.Repeat(ch, width))
			default:
				width := len(line)
				if width < 1 {
					width = 1
				}
				b.WriteString(strings.Repeat(ch, width))
			}
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func underlineChar(style Underline) string {
	switch style {
	case Squiggle:
		return "~"
	case Highlight:
		return "^"
	default:
		return "-"
	}
}

// Logger is a thread-safe handle for collecting diagnostics. It serializes
// concurrent Log calls so embedding hosts can drive several compilations in
// parallel against a single logger if they choose.
type Logger struct {
	mu       sync.Mutex
	messages []*Message
	errors   int
	warnings int
}

// NewLogger creates an empty logger.
func NewLogger() *Logger {
	return &Logger{}
}

// Log appends a message and updates the running error/warning counters.
func (l *Logger) Log(m *Message) {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch m.Level {
	case Error:
		l.errors++
	case Warning:
		l.warnings++
	}
	l.messages = append(l.messages, m)
}

// Errorf is a convenience for Log(New(Error, ...)).
func (l *Logger) Errorf(primary source.Span, format string, args ...any) *Message {
	m := New(Error, fmt.Sprintf(format, args...), primary)
	l.Log(m)
	return m
}

// Warnf is a convenience for Log(New(Warning, ...)).
func (l *Logger) Warnf(primary source.Span, format string, args ...any) *Message {
	m := New(Warning, fmt.Sprintf(format, args...), primary)
	l.Log(m)
	return m
}

// Messages returns every message logged so far, in log order.
func (l *Logger) Messages() []*Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Message, len(l.messages))
	copy(out, l.messages)
	return out
}

// Errors returns the running error count.
func (l *Logger) Errors() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.errors
}

// Warnings returns the running warning count.
func (l *Logger) Warnings() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.warnings
}

// HasErrors reports whether any Error-level message has been logged.
func (l *Logger) HasErrors() bool {
	return l.Errors() > 0
}
