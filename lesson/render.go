package lesson

import (
	"fmt"
	"strings"
)

// Style captures the formatting of a record so a replacement can be written
// in the same shape as its neighbours.
type Style struct {
	// Indent precedes the key line and the closing brace.
	Indent string
	// FieldIndent precedes title, content and keyTakeaways.
	FieldIndent string
	// ItemIndent precedes each key takeaway.
	ItemIndent string
	// QuoteKey writes the lesson key as "key" rather than key.
	QuoteKey bool
	// QuoteFields writes field names as "title" rather than title.
	QuoteFields bool
	// TemplateContent writes content as a template literal.
	TemplateContent bool
	// TrailingComma adds a comma after the last field.
	TrailingComma bool
	// ItemTrailingComma adds a comma after the last key takeaway.
	ItemTrailingComma bool
}

// DefaultStyle is used for inserted records and when no neighbour exists.
var DefaultStyle = Style{
	Indent:            "  ",
	FieldIndent:       "    ",
	ItemIndent:        "      ",
	QuoteKey:          true,
	TemplateContent:   true,
	TrailingComma:     true,
	ItemTrailingComma: true,
}

func lineIndent(src []byte, pos int) (string, bool) {
	i := pos
	for i > 0 && (src[i-1] == ' ' || src[i-1] == '\t') {
		i--
	}
	if i == 0 || src[i-1] == '\n' {
		return string(src[i:pos]), true
	}
	return "", false
}

func followedByComma(src []byte, pos int) bool {
	s := &scanner{src: src, pos: pos}
	s.skipSpace()
	return s.peek() == ','
}

func detectStyle(src []byte, f field, body *object) Style {
	st := DefaultStyle
	st.QuoteKey = f.quoted
	if ind, ok := lineIndent(src, f.keyStart); ok {
		st.Indent = ind
	}
	st.FieldIndent = st.Indent + "  "
	st.ItemIndent = st.FieldIndent + "  "

	if len(body.fields) == 0 {
		return st
	}
	first := body.fields[0]
	st.QuoteFields = first.quoted
	if ind, ok := lineIndent(src, first.keyStart); ok {
		st.FieldIndent = ind
		st.ItemIndent = ind + strings.TrimPrefix(ind, st.Indent)
	}
	last := body.fields[len(body.fields)-1]
	st.TrailingComma = followedByComma(src, last.val.end)

	if content, ok := body.lookup("content"); ok {
		st.TemplateContent = content.val.kind == kindTemplate
	}
	if kt, ok := body.lookup("keyTakeaways"); ok && kt.val.kind == kindArray && len(kt.val.elems) > 0 {
		if ind, ok := lineIndent(src, kt.val.elems[0].start); ok {
			st.ItemIndent = ind
		}
		lastItem := kt.val.elems[len(kt.val.elems)-1]
		st.ItemTrailingComma = followedByComma(src, lastItem.end)
	}
	return st
}

// Render writes rec as an object literal property, starting at the key and
// ending at the closing brace. The caller supplies Indent before the key.
func Render(rec Record, st Style) string {
	var b strings.Builder

	if st.QuoteKey {
		b.WriteString(Quote(rec.Key, '"'))
	} else {
		b.WriteString(rec.Key)
	}
	b.WriteString(": {\n")

	name := func(n string) string {
		if st.QuoteFields {
			return Quote(n, '"')
		}
		return n
	}
	comma := func(last bool, trailing bool) string {
		if last && !trailing {
			return ""
		}
		return ","
	}

	fmt.Fprintf(&b, "%s%s: %s,\n", st.FieldIndent, name("title"), Quote(rec.Title, '"'))

	var content string
	switch {
	case rec.Templated:
		content = "`" + TemplateRaw(rec.Content) + "`"
	case st.TemplateContent:
		content = TemplateQuote(rec.Content)
	default:
		content = Quote(rec.Content, '"')
	}
	fmt.Fprintf(&b, "%s%s: %s,\n", st.FieldIndent, name("content"), content)

	if len(rec.KeyTakeaways) == 0 {
		fmt.Fprintf(&b, "%s%s: []%s\n", st.FieldIndent, name("keyTakeaways"), comma(true, st.TrailingComma))
	} else {
		fmt.Fprintf(&b, "%s%s: [\n", st.FieldIndent, name("keyTakeaways"))
		for i, item := range rec.KeyTakeaways {
			last := i == len(rec.KeyTakeaways)-1
			fmt.Fprintf(&b, "%s%s%s\n", st.ItemIndent, Quote(item, '"'), comma(last, st.ItemTrailingComma))
		}
		fmt.Fprintf(&b, "%s]%s\n", st.FieldIndent, comma(true, st.TrailingComma))
	}

	b.WriteString(st.Indent)
	b.WriteString("}")
	return b.String()
}

// Quote writes s as a JavaScript string literal using the given quote.
func Quote(s string, quote byte) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte(quote)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\u2028':
			b.WriteString(`\u2028`)
		case '\u2029':
			b.WriteString(`\u2029`)
		default:
			switch {
			case r == rune(quote):
				b.WriteByte('\\')
				b.WriteRune(r)
			case r < 0x20 || r == 0x7f:
				fmt.Fprintf(&b, `\x%02x`, r)
			default:
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte(quote)
	return b.String()
}

// TemplateQuote writes s as a template literal. Backslashes, backticks and
// "${" are escaped so the text is taken literally.
func TemplateQuote(s string) string {
	r := strings.NewReplacer(`\`, `\\`, "`", "\\`", "${", `\${`)
	return "`" + r.Replace(s) + "`"
}

// TemplateRaw returns the body of a template literal whose substitutions are
// kept live. Unescaped backticks outside ${...} are escaped; everything else,
// including existing escapes, is left as written.
func TemplateRaw(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			b.WriteByte(c)
			b.WriteByte(s[i+1])
			i++
		case c == '\\':
			b.WriteString(`\\`)
		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			sc := &scanner{src: []byte(s), pos: i + 2}
			if err := sc.skipUntil('}'); err != nil {
				b.WriteString(s[i:])
				return b.String()
			}
			b.WriteString(s[i : sc.pos+1])
			i = sc.pos
		case c == '`':
			b.WriteString("\\`")
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
