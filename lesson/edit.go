package lesson

import (
	"bytes"
	"fmt"
)

// Replace returns a copy of src with the located record replaced by text.
// Everything outside loc.Span is carried over byte for byte.
func Replace(src []byte, loc *Location, text string) []byte {
	var b bytes.Buffer
	b.Grow(len(src) - loc.Span.Len() + len(text) + len(loc.Separator))
	b.Write(src[:loc.Span.Start])
	b.WriteString(text)
	b.WriteString(loc.Separator)
	b.Write(src[loc.Span.End:])
	return b.Bytes()
}

// Insert returns a copy of the collection source with rec added as a new
// property right after the entry for after. An empty after appends the record
// behind the last entry. The new record copies the neighbour's formatting.
func Insert(c *Collection, after string, rec Record) ([]byte, error) {
	if c.Count(rec.Key) > 0 {
		return nil, &LocateError{Key: rec.Key, Kind: ErrDuplicateKey, Count: c.Count(rec.Key) + 1}
	}

	var anchor *Entry
	if after != "" {
		e, err := c.Lookup(after)
		if err != nil {
			return nil, err
		}
		anchor = e
	} else if len(c.entries) > 0 {
		anchor = c.entries[len(c.entries)-1]
	}
	if anchor == nil {
		return nil, fmt.Errorf("no lesson records to insert %q next to", rec.Key)
	}

	st := anchor.Style
	text := Render(rec, st)

	src := c.src
	pos := anchor.Span.End
	s := &scanner{src: src, pos: pos}
	s.skipSpace()

	var b bytes.Buffer
	if s.peek() == ',' {
		// anchor,<here> newRecord,
		pos = s.pos + 1
		b.Write(src[:pos])
		b.WriteString("\n" + st.Indent + text + ",")
	} else {
		// anchor<here>,newRecord  (anchor was the last property)
		b.Write(src[:pos])
		b.WriteString(",\n" + st.Indent + text)
		if st.TrailingComma {
			b.WriteString(",")
		}
	}
	b.Write(src[pos:])
	return b.Bytes(), nil
}
