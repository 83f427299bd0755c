package lesson

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Strategy selects how the end of a lesson record is found.
type Strategy string

const (
	// StrategyStructural uses the brace-matched object literal.
	StrategyStructural Strategy = "structural"
	// StrategyNextKey ends the record where the next sibling key begins.
	StrategyNextKey Strategy = "next-key"
	// StrategyTakeaways finds keyTakeaways: and scans to the closing brace.
	StrategyTakeaways Strategy = "takeaways"
)

// Strategies lists the accepted strategy names.
var Strategies = []Strategy{StrategyStructural, StrategyNextKey, StrategyTakeaways}

// ParseStrategy converts a flag value into a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	if s == "" {
		return StrategyStructural, nil
	}
	for _, st := range Strategies {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown strategy %q (valid: structural, next-key, takeaways)", s)
}

// Location is the result of Locate.
type Location struct {
	Span Span
	// Separator must be written between the new record and Span.End to keep
	// the surrounding formatting intact. Empty for strategies whose span ends
	// on the closing brace.
	Separator string
	// Entry is the parsed entry for the key, when the source parsed cleanly.
	Entry *Entry
}

func keyPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(?:^|[^\w$])(["']?)` + regexp.QuoteMeta(key) + `(["']?)\s*:\s*\{`)
}

// Occurrences counts how many times the key literal occurs in src, quoted or
// bare. It is a plain text count: it sees keys the parser would also see,
// plus any that sit in malformed regions of the file.
func Occurrences(src []byte, key string) int {
	n := 0
	for _, m := range keyPattern(key).FindAllSubmatchIndex(src, -1) {
		if string(src[m[2]:m[3]]) == string(src[m[4]:m[5]]) {
			n++
		}
	}
	return n
}

// Locate finds the byte range of the lesson record for key.
func Locate(src []byte, key string, strategy Strategy) (*Location, error) {
	if strategy == "" {
		strategy = StrategyStructural
	}

	c, perr := Parse(src)

	switch strategy {
	case StrategyStructural:
		if perr != nil {
			var le *LocateError
			if errors.As(perr, &le) {
				le.Key = key
			}
			return nil, perr
		}
		e, err := c.Lookup(key)
		if err != nil {
			return nil, err
		}
		return &Location{Span: e.Span, Entry: e}, nil

	case StrategyNextKey:
		return locateNextKey(src, c, key)

	case StrategyTakeaways:
		return locateTakeaways(src, c, key)
	}
	return nil, fmt.Errorf("unknown strategy %q", strategy)
}

// keyStarts returns the offsets of every occurrence of the key literal.
func keyStarts(src []byte, key string) []int {
	var starts []int
	for _, m := range keyPattern(key).FindAllSubmatchIndex(src, -1) {
		if string(src[m[2]:m[3]]) != string(src[m[4]:m[5]]) {
			continue
		}
		starts = append(starts, m[2])
	}
	return starts
}

func uniqueStart(src []byte, key string) (int, error) {
	starts := keyStarts(src, key)
	switch len(starts) {
	case 0:
		return 0, &LocateError{Key: key, Kind: ErrKeyNotFound}
	case 1:
		return starts[0], nil
	default:
		return 0, &LocateError{Key: key, Kind: ErrDuplicateKey, Count: len(starts)}
	}
}

// locateNextKey ends the record where the following sibling key begins. The
// sibling is taken from the parsed collection when possible, otherwise from
// the next key-shaped literal in the text.
func locateNextKey(src []byte, c *Collection, key string) (*Location, error) {
	start, err := uniqueStart(src, key)
	if err != nil {
		return nil, err
	}

	var entry *Entry
	next := -1
	if c != nil {
		if e, err := c.Lookup(key); err == nil {
			entry = e
			if n := c.Next(e); n != nil {
				next = n.Span.Start
			}
		}
	}
	if next < 0 {
		re := regexp.MustCompile(`(?m)^[ \t]*["']?[\w$]+["']?\s*:\s*\{`)
		from := start + 1
		if loc := re.FindIndex(src[from:]); loc != nil {
			next = from + loc[0]
			for next < len(src) && (src[next] == ' ' || src[next] == '\t') {
				next++
			}
		}
	}
	if next < 0 {
		return nil, &LocateError{Key: key, Kind: ErrMarkerNotFound, Marker: "next lesson key"}
	}

	// Keep whatever sat between the old record and its sibling (comma,
	// blank lines, module comments) when the old record's end is known.
	var sep string
	if entry != nil && entry.Span.Start == start && entry.Span.End <= next {
		sep = string(src[entry.Span.End:next])
	} else {
		lineStart := strings.LastIndexByte(string(src[:next]), '\n') + 1
		sep = ",\n" + string(src[lineStart:next])
	}
	return &Location{
		Span:      Span{Start: start, End: next},
		Separator: sep,
		Entry:     entry,
	}, nil
}

// locateTakeaways finds "keyTakeaways:" after the key, skips its array and
// ends the record on the closing brace that follows. When the record parsed,
// the search stays inside it.
func locateTakeaways(src []byte, c *Collection, key string) (*Location, error) {
	start, err := uniqueStart(src, key)
	if err != nil {
		return nil, err
	}

	var entry *Entry
	limit := len(src)
	if c != nil {
		if e, err := c.Lookup(key); err == nil {
			entry = e
			if e.Span.Start == start {
				limit = e.Span.End
			}
		}
	}

	const marker = "keyTakeaways"
	re := regexp.MustCompile(`["']?` + marker + `["']?\s*:\s*\[`)
	loc := re.FindIndex(src[start:limit])
	if loc == nil {
		return nil, &LocateError{Key: key, Kind: ErrMarkerNotFound, Marker: marker + ":"}
	}

	s := &scanner{src: src, pos: start + loc[1]}
	if err := s.skipUntil(']'); err != nil {
		return nil, &LocateError{Key: key, Kind: ErrMalformedBlock, Err: err}
	}
	s.pos++ // ]
	if err := s.skipUntil('}'); err != nil {
		return nil, &LocateError{Key: key, Kind: ErrMalformedBlock, Err: err}
	}
	s.pos++ // }

	return &Location{Span: Span{Start: start, End: s.pos}, Entry: entry}, nil
}
