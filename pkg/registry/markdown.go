package registry

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// Registry documents are markdown, one level-2 section per entry:
//
//	# Part Prefixes
//
//	## SCREW
//
//	**Description:** Socket head cap screws
//
//	**Format:** `SCREW-{MATERIAL}-{THREAD}-{LENGTH}`
//
// Material sections have no Format paragraph.

const (
	labelDescription = "Description:"
	labelFormat      = "Format:"
)

var (
	// ErrCorruptRegistry is matched by every *CorruptError.
	ErrCorruptRegistry = errors.New("corrupt registry")
	// ErrInvalidEntry is returned for an entry that cannot be written to a
	// registry document without changing its structure.
	ErrInvalidEntry = errors.New("invalid registry entry")
)

// CorruptError locates a malformed section in a registry document.
type CorruptError struct {
	Path    string
	Line    int
	Section string
	Reason  string
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("%s:%d: section %q: %s", e.Path, e.Line, e.Section, e.Reason)
}

func (e *CorruptError) Is(target error) bool {
	return target == ErrCorruptRegistry
}

type section struct {
	code        string
	line        int
	description *string
	format      *string
	badFormat   bool
}

// decode parses a registry document of the given kind. path is only used in
// error messages.
// Sections are split line by line on ATX headings; each label line is parsed
// as markdown on its own, so blank lines and rules between labels are optional.
func decode(kind Kind, path string, src []byte) ([]Entry, error) {
	var (
		sections []*section
		cur      *section
	)
	for i, line := range strings.Split(string(src), "\n") {
		line = strings.TrimRight(line, "\r")
		if level, title, ok := atxHeading(line); ok {
			if level > 2 {
				continue
			}
			cur = nil
			if level == 2 {
				cur = &section{code: title, line: i + 1}
				sections = append(sections, cur)
			}
			continue
		}
		if cur == nil || strings.TrimSpace(line) == "" {
			continue
		}

		lsrc := []byte(line)
		p, ok := goldmark.DefaultParser().Parse(text.NewReader(lsrc)).FirstChild().(*ast.Paragraph)
		if !ok {
			continue
		}
		switch strongLabel(p, lsrc) {
		case labelDescription:
			if cur.description == nil {
				d := afterLabel(line, labelDescription)
				cur.description = &d
			}
		case labelFormat:
			if cur.format == nil && !cur.badFormat {
				if f, ok := firstCodeSpan(p, lsrc); ok {
					cur.format = &f
				} else {
					cur.badFormat = true
				}
			}
		}
	}

	entries := make([]Entry, 0, len(sections))
	seen := make(map[string]int, len(sections))
	for _, s := range sections {
		corrupt := func(reason string) error {
			return &CorruptError{Path: path, Line: s.line, Section: s.code, Reason: reason}
		}
		if s.code == "" {
			return nil, corrupt("empty code heading")
		}
		if first, dup := seen[s.code]; dup {
			return nil, corrupt(fmt.Sprintf("duplicate code, first defined on line %d", first))
		}
		seen[s.code] = s.line
		if s.description == nil || *s.description == "" {
			return nil, corrupt("missing description")
		}

		switch kind {
		case KindPrefix:
			if s.badFormat {
				return nil, corrupt("format has no code span")
			}
			if s.format == nil || *s.format == "" {
				return nil, corrupt("missing format")
			}
			entries = append(entries, PrefixEntry{Code: s.code, Description: *s.description, FormatTemplate: *s.format})
		case KindMaterial:
			entries = append(entries, MaterialEntry{Code: s.code, Description: *s.description})
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
		}
	}
	return entries, nil
}

// encodeSection renders one entry as a document section.
func encodeSection(e Entry) ([]byte, error) {
	if err := checkEncodable(e); err != nil {
		return nil, err
	}

	var b bytes.Buffer
	switch e := e.(type) {
	case PrefixEntry:
		fmt.Fprintf(&b, "## %s\n\n", e.Code)
		fmt.Fprintf(&b, "**%s** %s\n\n", labelDescription, e.Description)
		fmt.Fprintf(&b, "**%s** `%s`\n\n", labelFormat, e.FormatTemplate)
	case MaterialEntry:
		fmt.Fprintf(&b, "## %s\n\n", e.Code)
		fmt.Fprintf(&b, "**%s** %s\n\n", labelDescription, e.Description)
	default:
		return nil, fmt.Errorf("%w: unexpected entry type %T", ErrInvalidEntry, e)
	}
	return b.Bytes(), nil
}

// appendSection returns doc with section added, creating the document header
// when doc is empty.
func appendSection(kind Kind, doc, sec []byte) []byte {
	out := make([]byte, 0, len(doc)+len(sec)+32)
	if len(bytes.TrimSpace(doc)) == 0 {
		out = append(out, "# "+kind.title()+"\n\n"...)
		return append(out, sec...)
	}
	out = append(out, doc...)
	switch {
	case bytes.HasSuffix(out, []byte("\n\n")):
	case bytes.HasSuffix(out, []byte("\n")):
		out = append(out, '\n')
	default:
		out = append(out, "\n\n"...)
	}
	return append(out, sec...)
}

func checkEncodable(e Entry) error {
	fields := map[string]string{"code": e.Key(), "description": Description(e)}
	if p, ok := e.(PrefixEntry); ok {
		fields["format_template"] = p.FormatTemplate
		if strings.Contains(p.FormatTemplate, "`") {
			return fmt.Errorf("%w: format_template contains a backtick", ErrInvalidEntry)
		}
	}
	for name, v := range fields {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: empty %s", ErrInvalidEntry, name)
		}
		if strings.ContainsAny(v, "\r\n") {
			return fmt.Errorf("%w: %s spans multiple lines", ErrInvalidEntry, name)
		}
	}
	return nil
}

// atxHeading reports whether line is an ATX heading and returns its level and
// title with any closing hashes removed.
func atxHeading(line string) (int, string, bool) {
	trimmed := strings.TrimLeft(line, " ")
	if len(line)-len(trimmed) > 3 {
		return 0, "", false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level == 0 || level > 6 {
		return 0, "", false
	}
	rest := trimmed[level:]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return 0, "", false
	}
	title := strings.TrimSpace(rest)
	if t := strings.TrimRight(title, "#"); t == "" || strings.HasSuffix(t, " ") || strings.HasSuffix(t, "\t") {
		title = strings.TrimSpace(t)
	}
	return level, title, true
}

// afterLabel strips a leading **label** or __label__ from a raw line,
// keeping the rest verbatim.
func afterLabel(raw, label string) string {
	raw = strings.TrimSpace(raw)
	for _, delim := range []string{"**", "__"} {
		if rest, ok := strings.CutPrefix(raw, delim+label+delim); ok {
			return strings.TrimSpace(rest)
		}
	}
	return raw
}

// strongLabel returns the text of a paragraph's leading **strong** span.
func strongLabel(p *ast.Paragraph, src []byte) string {
	em, ok := p.FirstChild().(*ast.Emphasis)
	if !ok || em.Level != 2 {
		return ""
	}
	return strings.TrimSpace(plainText(em, src))
}

func firstCodeSpan(p *ast.Paragraph, src []byte) (string, bool) {
	for c := p.FirstChild(); c != nil; c = c.NextSibling() {
		if cs, ok := c.(*ast.CodeSpan); ok {
			return plainText(cs, src), true
		}
	}
	return "", false
}

func plainText(n ast.Node, src []byte) string {
	var b strings.Builder
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		switch c := c.(type) {
		case *ast.Text:
			b.Write(c.Segment.Value(src))
			if c.SoftLineBreak() {
				b.WriteByte(' ')
			}
		case *ast.String:
			b.Write(c.Value)
		default:
			b.WriteString(plainText(c, src))
		}
	}
	return b.String()
}
