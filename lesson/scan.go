package lesson

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Value tree
// ---------------------------------------------------------------------------

type valueKind int

const (
	kindOther valueKind = iota
	kindString
	kindTemplate
	kindObject
	kindArray
)

// value is one parsed expression of the source. Only the shapes needed to
// read lesson records are decoded; everything else is kindOther with its span.
type value struct {
	kind  valueKind
	start int // first byte of the value
	end   int // one past the last byte
	str   string
	obj   *object
	elems []value
	// subst is set for template literals containing ${...}.
	subst bool
}

type field struct {
	key      string
	keyStart int
	quoted   bool
	comment  string
	val      value
}

type object struct {
	start, end int
	fields     []field
}

func (o *object) lookup(name string) (field, bool) {
	for _, f := range o.fields {
		if f.key == name {
			return f, true
		}
	}
	return field{}, false
}

// ---------------------------------------------------------------------------
// Scanner
// ---------------------------------------------------------------------------

// scanner is a forgiving reader for TypeScript object literals. It understands
// strings, template literals, comments and bracket nesting; anything else is
// skipped as opaque tokens.
type scanner struct {
	src []byte
	pos int
	// comment holds the text of the most recent comment consumed by skipSpace.
	comment string
}

type syntaxError struct {
	pos int
	msg string
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("offset %d: %s", e.pos, e.msg)
}

func (s *scanner) errorf(pos int, format string, args ...any) error {
	return &syntaxError{pos: pos, msg: fmt.Sprintf(format, args...)}
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte {
	if s.pos >= len(s.src) {
		return 0
	}
	return s.src[s.pos]
}

// skipSpace consumes whitespace and comments. The last comment seen is kept
// in s.comment; a blank run without comments clears it.
func (s *scanner) skipSpace() {
	sawComment := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v':
			s.pos++
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '/':
			end := s.pos + 2
			for end < len(s.src) && s.src[end] != '\n' {
				end++
			}
			s.comment = strings.TrimSpace(string(s.src[s.pos+2 : end]))
			sawComment = true
			s.pos = end
		case c == '/' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '*':
			end := strings.Index(string(s.src[s.pos+2:]), "*/")
			if end < 0 {
				s.pos = len(s.src)
				return
			}
			body := string(s.src[s.pos+2 : s.pos+2+end])
			s.comment = strings.TrimSpace(strings.Trim(body, "* \n\t"))
			sawComment = true
			s.pos += end + 4
		default:
			if c == 0xEF && s.pos == 0 && strings.HasPrefix(string(s.src), "\ufeff") {
				s.pos += 3
				continue
			}
			if !sawComment {
				s.comment = ""
			}
			return
		}
	}
}

// readQuoted reads a '...' or "..." literal starting at s.pos.
func (s *scanner) readQuoted() (value, error) {
	start := s.pos
	quote := s.src[s.pos]
	s.pos++
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch c {
		case '\\':
			s.pos += 2
			continue
		case '\n':
			return value{}, s.errorf(start, "unterminated string literal")
		case quote:
			s.pos++
			raw := string(s.src[start+1 : s.pos-1])
			str, err := unescape(raw)
			if err != nil {
				return value{}, s.errorf(start, "%v", err)
			}
			return value{kind: kindString, start: start, end: s.pos, str: str}, nil
		}
		s.pos++
	}
	return value{}, s.errorf(start, "unterminated string literal")
}

// readTemplate reads a `...` literal starting at s.pos, including nested
// ${...} substitutions.
func (s *scanner) readTemplate() (value, error) {
	start := s.pos
	s.pos++
	subst := false
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\\':
			s.pos += 2
			continue
		case c == '`':
			s.pos++
			raw := string(s.src[start+1 : s.pos-1])
			v := value{kind: kindTemplate, start: start, end: s.pos, subst: subst}
			if subst {
				v.str = raw
				return v, nil
			}
			str, err := unescape(raw)
			if err != nil {
				return value{}, s.errorf(start, "%v", err)
			}
			v.str = str
			return v, nil
		case c == '$' && s.pos+1 < len(s.src) && s.src[s.pos+1] == '{':
			subst = true
			s.pos += 2
			if err := s.skipUntil('}'); err != nil {
				return value{}, err
			}
			s.pos++ // closing }
			continue
		}
		s.pos++
	}
	return value{}, s.errorf(start, "unterminated template literal")
}

// skipUntil advances to the next unmatched closer at nesting depth zero,
// leaving s.pos on it.
func (s *scanner) skipUntil(closer byte) error {
	start := s.pos
	var stack []byte
	for {
		s.skipSpace()
		if s.eof() {
			return s.errorf(start, "missing %q", closer)
		}
		c := s.peek()
		switch c {
		case '"', '\'':
			if _, err := s.readQuoted(); err != nil {
				return err
			}
			continue
		case '`':
			if _, err := s.readTemplate(); err != nil {
				return err
			}
			continue
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '(':
			stack = append(stack, ')')
		case '}', ']', ')':
			if len(stack) == 0 {
				if c == closer {
					return nil
				}
				return s.errorf(s.pos, "unexpected %q", c)
			}
			if stack[len(stack)-1] != c {
				return s.errorf(s.pos, "mismatched %q", c)
			}
			stack = stack[:len(stack)-1]
		}
		s.pos++
	}
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c >= 0x80
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

// parseObject parses an object literal starting at the '{' under s.pos.
// ok is false when the braces do not hold a key/value object (a code block,
// type body with methods, etc.); in that case the block is skipped.
func (s *scanner) parseObject() (*object, bool, error) {
	obj := &object{start: s.pos}
	s.pos++ // {
	group := ""
	for {
		s.skipSpace()
		if s.eof() {
			return nil, false, s.errorf(obj.start, "unterminated object literal")
		}
		if s.peek() == '}' {
			s.pos++
			obj.end = s.pos
			return obj, true, nil
		}
		if s.peek() == ',' || s.peek() == ';' {
			s.pos++
			continue
		}
		if s.comment != "" {
			group = s.comment
		}

		f := field{keyStart: s.pos, comment: group}
		switch c := s.peek(); {
		case c == '"' || c == '\'':
			v, err := s.readQuoted()
			if err != nil {
				return nil, false, err
			}
			f.key, f.quoted = v.str, true
		case isIdentStart(c) || (c >= '0' && c <= '9'):
			for !s.eof() && isIdentPart(s.peek()) {
				s.pos++
			}
			f.key = string(s.src[f.keyStart:s.pos])
			if s.peek() == '?' {
				s.pos++
			}
		default:
			return s.abandonObject(obj)
		}

		s.skipSpace()
		if s.peek() != ':' {
			return s.abandonObject(obj)
		}
		s.pos++
		s.skipSpace()

		v, err := s.parseValue()
		if err != nil {
			return nil, false, err
		}
		f.val = v
		obj.fields = append(obj.fields, f)
	}
}

// abandonObject skips the rest of a brace block that turned out not to be a
// plain object literal.
func (s *scanner) abandonObject(obj *object) (*object, bool, error) {
	s.pos = obj.start + 1
	if err := s.skipUntil('}'); err != nil {
		return nil, false, err
	}
	s.pos++
	return nil, false, nil
}

// parseValue parses one property value or array element, stopping before the
// ',' or closer that ends it.
func (s *scanner) parseValue() (value, error) {
	start := s.pos
	var first value
	n := 0
	for {
		s.skipSpace()
		if s.eof() {
			return value{}, s.errorf(start, "unexpected end of input")
		}
		c := s.peek()
		if c == ',' || c == '}' || c == ']' || c == ')' || c == ';' {
			break
		}
		var v value
		var err error
		switch c {
		case '"', '\'':
			v, err = s.readQuoted()
		case '`':
			v, err = s.readTemplate()
		case '{':
			var obj *object
			var ok bool
			at := s.pos
			obj, ok, err = s.parseObject()
			v = value{kind: kindOther, start: at, end: s.pos}
			if ok {
				v = value{kind: kindObject, start: at, end: s.pos, obj: obj}
			}
		case '[':
			v, err = s.parseArray()
		case '(':
			at := s.pos
			s.pos++
			if err = s.skipUntil(')'); err == nil {
				s.pos++
			}
			v = value{kind: kindOther, start: at, end: s.pos}
		default:
			at := s.pos
			s.pos++
			for !s.eof() && isIdentPart(s.peek()) && isIdentPart(c) {
				s.pos++
			}
			v = value{kind: kindOther, start: at, end: s.pos}
		}
		if err != nil {
			return value{}, err
		}
		if n == 0 {
			first = v
		}
		n++
	}
	if n == 1 {
		return first, nil
	}
	end := s.pos
	for end > start && isSpace(s.src[end-1]) {
		end--
	}
	return value{kind: kindOther, start: start, end: end}, nil
}

func (s *scanner) parseArray() (value, error) {
	v := value{kind: kindArray, start: s.pos}
	s.pos++ // [
	for {
		s.skipSpace()
		if s.eof() {
			return value{}, s.errorf(v.start, "unterminated array literal")
		}
		switch s.peek() {
		case ']':
			s.pos++
			v.end = s.pos
			return v, nil
		case ',':
			s.pos++
			continue
		case '}', ')', ';':
			return value{}, s.errorf(s.pos, "unexpected %q in array", s.peek())
		}
		elem, err := s.parseValue()
		if err != nil {
			return value{}, err
		}
		v.elems = append(v.elems, elem)
	}
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// ---------------------------------------------------------------------------
// Escapes
// ---------------------------------------------------------------------------

// unescape decodes JavaScript string escapes.
func unescape(raw string) (string, error) {
	if !strings.Contains(raw, `\`) {
		return raw, nil
	}
	var b strings.Builder
	b.Grow(len(raw))
	for i := 0; i < len(raw); i++ {
		c := raw[i]
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		i++
		if i >= len(raw) {
			return "", fmt.Errorf("trailing backslash")
		}
		switch e := raw[i]; e {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case 'b':
			b.WriteByte('\b')
		case 'f':
			b.WriteByte('\f')
		case 'v':
			b.WriteByte('\v')
		case '0':
			b.WriteByte(0)
		case '\n':
			// line continuation
		case '\r':
			if i+1 < len(raw) && raw[i+1] == '\n' {
				i++
			}
		case 'x':
			if i+3 > len(raw) {
				return "", fmt.Errorf("short \\x escape")
			}
			n, err := strconv.ParseUint(raw[i+1:i+3], 16, 8)
			if err != nil {
				return "", fmt.Errorf("bad \\x escape: %w", err)
			}
			b.WriteRune(rune(n))
			i += 2
		case 'u':
			r, width, err := decodeUnicodeEscape(raw[i+1:])
			if err != nil {
				return "", err
			}
			i += width
			if utf16.IsSurrogate(r) && strings.HasPrefix(raw[i+1:], `\u`) {
				if r2, w2, err := decodeUnicodeEscape(raw[i+3:]); err == nil {
					if pair := utf16.DecodeRune(r, r2); pair != utf8.RuneError {
						r = pair
						i += 2 + w2
					}
				}
			}
			b.WriteRune(r)
		default:
			b.WriteByte(e)
		}
	}
	return b.String(), nil
}

// decodeUnicodeEscape decodes the part after `\u`: either XXXX or {X...}.
func decodeUnicodeEscape(s string) (rune, int, error) {
	if strings.HasPrefix(s, "{") {
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return 0, 0, fmt.Errorf("unterminated \\u{...} escape")
		}
		n, err := strconv.ParseUint(s[1:end], 16, 32)
		if err != nil {
			return 0, 0, fmt.Errorf("bad \\u{...} escape: %w", err)
		}
		return rune(n), end + 1, nil
	}
	if len(s) < 4 {
		return 0, 0, fmt.Errorf("short \\u escape")
	}
	n, err := strconv.ParseUint(s[:4], 16, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("bad \\u escape: %w", err)
	}
	return rune(n), 4, nil
}

// MatchBrace returns the offset of the brace closing the one at src[open],
// skipping string, template and comment contents.
func MatchBrace(src []byte, open int) (int, error) {
	if open < 0 || open >= len(src) || src[open] != '{' {
		return 0, fmt.Errorf("offset %d is not an opening brace", open)
	}
	s := &scanner{src: src, pos: open + 1}
	if err := s.skipUntil('}'); err != nil {
		return 0, err
	}
	return s.pos, nil
}

// Unquote decodes a complete JavaScript string or template literal,
// quotes included.
func Unquote(lit string) (string, error) {
	if len(lit) < 2 {
		return "", fmt.Errorf("literal too short: %q", lit)
	}
	q := lit[0]
	if (q != '"' && q != '\'' && q != '`') || lit[len(lit)-1] != q {
		return "", fmt.Errorf("not a quoted literal: %q", lit)
	}
	return unescape(lit[1 : len(lit)-1])
}
