package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/bregydoc/gtranslate"
)

// Google translates through the public Google Translate web endpoint.
// It needs no credentials.
type Google struct{}

// Translate implements Translator.
func (Google) Translate(ctx context.Context, text, from, to string) (string, error) {
	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		out, err := gtranslate.TranslateWithParams(text, gtranslate.TranslationParams{
			From: googleCode(from),
			To:   googleCode(to),
		})
		ch <- reply{out, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("google translate %s->%s: %w", from, to, r.err)
		}
		return r.text, nil
	}
}

// googleCode maps BCP 47 codes to the codes Google Translate expects.
func googleCode(lang string) string {
	switch strings.ToLower(lang) {
	case "zh", "zh-cn", "zh-hans":
		return "zh-CN"
	case "zh-tw", "zh-hant":
		return "zh-TW"
	case "he":
		return "iw"
	case "nb", "no":
		return "no"
	}
	if i := strings.IndexAny(lang, "-_"); i > 0 && !strings.HasPrefix(strings.ToLower(lang), "pt") {
		return strings.ToLower(lang[:i])
	}
	return lang
}
