// Package translate machine-translates short strings such as asset
// descriptions, one string per request.
//
// Translation never aborts a batch: a string that still fails after the
// configured number of attempts is returned in its source language with
// StatusFallback, and the batch moves on. Only context cancellation stops a
// batch early.
package translate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Translator translates a single string.
type Translator interface {
	Translate(ctx context.Context, text, from, to string) (string, error)
}

// Status is the outcome of translating one string.
type Status string

const (
	StatusTranslated Status = "translated"
	StatusCached     Status = "cached"
	StatusFallback   Status = "fallback"
)

// Item is one string to translate.
type Item struct {
	Key  string
	Text string
}

// Result is the outcome for one Item.
type Result struct {
	Key      string
	Source   string
	Text     string
	Status   Status
	Attempts int
	// Err is the last error for StatusFallback results.
	Err error
}

// Cache stores previous translations keyed by language, key and source text.
type Cache interface {
	Lookup(lang, key, source string) (string, bool)
	Store(lang, key, source, text string)
}

// RateLimitError is returned by translators that were told to slow down.
type RateLimitError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited (retry after %v): %v", e.RetryAfter, e.Err)
}

func (e *RateLimitError) Unwrap() error { return e.Err }

// ---------------------------------------------------------------------------
// Translation options
// ---------------------------------------------------------------------------

// Options controls the translation behavior.
type Options struct {
	// From is the source language code. Default: "en".
	From string
	// To is the target language code.
	To string
	// Retries is the maximum number of attempts per string. Default: 5.
	Retries int
	// RetryDelay is multiplied by the attempt number to get the wait before
	// the next attempt. Default: 2s.
	RetryDelay time.Duration
	// Delay is the pause after each request.
	Delay time.Duration
	// BatchSize is the number of requests between BatchDelay pauses
	// (0 = no batch pauses).
	BatchSize int
	// BatchDelay is the pause after every BatchSize requests.
	BatchDelay time.Duration
	// Cache, if set, is consulted before translating and updated after.
	Cache Cache

	// OnProgress is called after each string.
	OnProgress func(lang string, done, total int)
	// OnLog emits log messages during translation.
	OnLog func(format string, args ...any)
	// OnError emits error messages during translation.
	OnError func(format string, args ...any)
	// Verbose enables per-attempt logging.
	Verbose bool
}

func (o *Options) log(format string, args ...any) {
	if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) logError(format string, args ...any) {
	if o.OnError != nil {
		o.OnError(format, args...)
	} else if o.OnLog != nil {
		o.OnLog(format, args...)
	}
}

func (o *Options) effectiveFrom() string {
	if o.From != "" {
		return o.From
	}
	return "en"
}

func (o *Options) effectiveRetries() int {
	if o.Retries > 0 {
		return o.Retries
	}
	return 5
}

func (o *Options) effectiveRetryDelay() time.Duration {
	if o.RetryDelay > 0 {
		return o.RetryDelay
	}
	return 2 * time.Second
}

// ---------------------------------------------------------------------------
// Batch translation
// ---------------------------------------------------------------------------

// Batch translates items sequentially into opts.To. The returned slice has
// one result per item processed; on cancellation it holds the results
// gathered so far together with the context error.
func Batch(ctx context.Context, tr Translator, items []Item, opts Options) ([]Result, error) {
	if opts.To == "" {
		return nil, fmt.Errorf("no target language")
	}
	from := opts.effectiveFrom()

	results := make([]Result, 0, len(items))
	requests := 0
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		if opts.Cache != nil {
			if text, ok := opts.Cache.Lookup(opts.To, it.Key, it.Text); ok {
				results = append(results, Result{Key: it.Key, Source: it.Text, Text: text, Status: StatusCached})
				progress(&opts, i+1, len(items))
				continue
			}
		}

		// Pace requests: Delay after each, BatchDelay after every BatchSize.
		if requests > 0 {
			wait := opts.Delay
			if opts.BatchSize > 0 && requests%opts.BatchSize == 0 && opts.BatchDelay > wait {
				opts.log("Batch of %d done, pausing %v", opts.BatchSize, opts.BatchDelay)
				wait = opts.BatchDelay
			}
			if err := sleep(ctx, wait); err != nil {
				return results, err
			}
		}

		res, err := translateOne(ctx, tr, it, from, &opts)
		requests++
		if err != nil {
			return results, err
		}
		if res.Status == StatusTranslated && opts.Cache != nil {
			opts.Cache.Store(opts.To, it.Key, it.Text, res.Text)
		}
		results = append(results, res)
		progress(&opts, i+1, len(items))
	}
	return results, nil
}

// translateOne tries a string up to Retries times. It returns an error only
// when ctx is done.
func translateOne(ctx context.Context, tr Translator, it Item, from string, opts *Options) (Result, error) {
	res := Result{Key: it.Key, Source: it.Text}
	if strings.TrimSpace(it.Text) == "" {
		res.Text = it.Text
		res.Status = StatusTranslated
		return res, nil
	}

	retries := opts.effectiveRetries()
	for attempt := 1; attempt <= retries; attempt++ {
		res.Attempts = attempt
		text, err := tr.Translate(ctx, it.Text, from, opts.To)
		if err == nil && strings.TrimSpace(text) == "" {
			err = errors.New("empty translation")
		}
		if err == nil {
			res.Text = text
			res.Status = StatusTranslated
			res.Err = nil
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		res.Err = err
		if opts.Verbose {
			opts.log("  %s attempt %d/%d failed: %v", it.Key, attempt, retries, err)
		}
		if attempt == retries {
			break
		}

		wait := time.Duration(attempt) * opts.effectiveRetryDelay()
		var rl *RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > wait {
			wait = rl.RetryAfter
		}
		if err := sleep(ctx, wait); err != nil {
			return res, err
		}
	}

	opts.logError("%s: giving up after %d attempts, keeping source text: %v", it.Key, res.Attempts, res.Err)
	res.Text = it.Text
	res.Status = StatusFallback
	return res, nil
}

func progress(opts *Options, done, total int) {
	if opts.OnProgress != nil {
		opts.OnProgress(opts.To, done, total)
	}
}

// sleep waits d or until ctx is done. Tests replace it to record waits.
var sleep = func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// ---------------------------------------------------------------------------
// Multi-language
// ---------------------------------------------------------------------------

// LangResult holds the results for one target language.
type LangResult struct {
	Lang    string
	Results []Result
	// Partial is set when the batch was interrupted.
	Partial bool
}

// TranslateAll runs Batch for each language in turn. opts.To is ignored.
// On cancellation the languages finished so far, plus the partial one, are
// returned with the context error.
func TranslateAll(ctx context.Context, tr Translator, items []Item, langs []string, opts Options) ([]LangResult, error) {
	var out []LangResult
	for i, lang := range langs {
		o := opts
		o.To = lang
		opts.log("Translating %d strings to %s (%d/%d)", len(items), lang, i+1, len(langs))

		results, err := Batch(ctx, tr, items, o)
		lr := LangResult{Lang: lang, Results: results}
		if err != nil {
			lr.Partial = true
			out = append(out, lr)
			return out, err
		}
		out = append(out, lr)

		if i < len(langs)-1 {
			if err := sleep(ctx, opts.BatchDelay); err != nil {
				return out, err
			}
		}
	}
	return out, nil
}

// Counts tallies results by status.
func Counts(results []Result) (translated, cached, fallback int) {
	for _, r := range results {
		switch r.Status {
		case StatusTranslated:
			translated++
		case StatusCached:
			cached++
		case StatusFallback:
			fallback++
		}
	}
	return
}
