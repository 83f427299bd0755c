// Package translate contains tests for the translation engine.
package translate

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Fakes
// ---------------------------------------------------------------------------

// fakeTranslator upper-cases text, failing for keys listed in fail.
type fakeTranslator struct {
	fail  map[string]int // text -> number of failing calls before success (-1 = always)
	calls map[string]int
}

func newFake() *fakeTranslator {
	return &fakeTranslator{fail: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeTranslator) Translate(ctx context.Context, text, from, to string) (string, error) {
	f.calls[text]++
	if n, ok := f.fail[text]; ok && (n < 0 || f.calls[text] <= n) {
		return "", errors.New("service unavailable")
	}
	return to + ":" + strings.ToUpper(text), nil
}

type mapCache map[string]string

func (m mapCache) Lookup(lang, key, source string) (string, bool) {
	v, ok := m[lang+"|"+key+"|"+source]
	return v, ok
}

func (m mapCache) Store(lang, key, source, text string) {
	m[lang+"|"+key+"|"+source] = text
}

var items = []Item{
	{Key: "desc_EURUSD", Text: "euro dollar"},
	{Key: "desc_BTC", Text: "bitcoin"},
	{Key: "desc_GOLD", Text: "gold"},
}

// ---------------------------------------------------------------------------
// Batch
// ---------------------------------------------------------------------------

func TestBatchFallbackAfterRetries(t *testing.T) {
	tr := newFake()
	tr.fail["bitcoin"] = -1

	var errs []string
	results, err := Batch(context.Background(), tr, items, Options{
		To:         "de",
		RetryDelay: time.Millisecond,
		OnError:    func(f string, a ...any) { errs = append(errs, f) },
	})
	if err != nil {
		t.Fatalf("Batch: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}

	btc := results[1]
	if btc.Status != StatusFallback || btc.Text != "bitcoin" || btc.Attempts != 5 || btc.Err == nil {
		t.Errorf("fallback result = %+v", btc)
	}
	if tr.calls["bitcoin"] != 5 {
		t.Errorf("bitcoin attempted %d times, want 5", tr.calls["bitcoin"])
	}
	if results[2].Status != StatusTranslated || results[2].Text != "de:GOLD" {
		t.Errorf("batch did not continue after fallback: %+v", results[2])
	}
	if len(errs) != 1 {
		t.Errorf("OnError called %d times, want 1", len(errs))
	}

	tcount, ccount, fcount := Counts(results)
	if tcount != 2 || ccount != 0 || fcount != 1 {
		t.Errorf("Counts = %d/%d/%d", tcount, ccount, fcount)
	}
}

func TestBatchRecoversWithinRetries(t *testing.T) {
	tr := newFake()
	tr.fail["gold"] = 2

	results, err := Batch(context.Background(), tr, items, Options{To: "fr", Retries: 3, RetryDelay: time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if r := results[2]; r.Status != StatusTranslated || r.Attempts != 3 || r.Text != "fr:GOLD" {
		t.Fatalf("result = %+v", r)
	}
}

// recordSleeps replaces sleep for the duration of the test and returns the
// waits it was asked for.
func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var waits []time.Duration
	orig := sleep
	sleep = func(ctx context.Context, d time.Duration) error {
		waits = append(waits, d)
		return ctx.Err()
	}
	t.Cleanup(func() { sleep = orig })
	return &waits
}

// rateLimited always fails with a RateLimitError carrying after.
type rateLimited struct{ after time.Duration }

func (r rateLimited) Translate(ctx context.Context, text, from, to string) (string, error) {
	return "", &RateLimitError{RetryAfter: r.after, Err: errors.New("429")}
}

func TestRetryDelayGrowsLinearly(t *testing.T) {
	waits := recordSleeps(t)
	tr := newFake()
	tr.fail["gold"] = -1

	results, err := Batch(context.Background(), tr, []Item{{Key: "desc_GOLD", Text: "gold"}}, Options{
		To:         "de",
		Retries:    5,
		RetryDelay: 3 * time.Second,
	})
	if err != nil {
		t.Fatal(err)
	}
	if results[0].Status != StatusFallback || results[0].Attempts != 5 {
		t.Fatalf("result = %+v", results[0])
	}

	want := []time.Duration{3 * time.Second, 6 * time.Second, 9 * time.Second, 12 * time.Second}
	if len(*waits) != len(want) {
		t.Fatalf("waits = %v, want %v", *waits, want)
	}
	for i, w := range want {
		if (*waits)[i] != w {
			t.Errorf("wait %d = %v, want %v", i+1, (*waits)[i], w)
		}
	}
}

func TestRetryAfterOverridesDelay(t *testing.T) {
	tests := []struct {
		name  string
		after time.Duration
		want  []time.Duration
	}{
		{"longer retry-after wins", 5 * time.Second, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}},
		{"shorter retry-after ignored", 500 * time.Millisecond, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}},
		{"mixed", 2500 * time.Millisecond, []time.Duration{2500 * time.Millisecond, 2500 * time.Millisecond, 3 * time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			waits := recordSleeps(t)
			results, err := Batch(context.Background(), rateLimited{tt.after}, []Item{{Key: "desc_BTC", Text: "bitcoin"}}, Options{
				To:         "ru",
				Retries:    4,
				RetryDelay: time.Second,
			})
			if err != nil {
				t.Fatal(err)
			}
			var rl *RateLimitError
			if r := results[0]; r.Status != StatusFallback || !errors.As(r.Err, &rl) {
				t.Fatalf("result = %+v", r)
			}
			if len(*waits) != len(tt.want) {
				t.Fatalf("waits = %v, want %v", *waits, tt.want)
			}
			for i, w := range tt.want {
				if (*waits)[i] != w {
					t.Errorf("wait %d = %v, want %v", i+1, (*waits)[i], w)
				}
			}
		})
	}
}

func TestBatchCache(t *testing.T) {
	tr := newFake()
	cache := mapCache{}
	cache.Store("de", "desc_BTC", "bitcoin", "Bitcoin (cached)")

	results, err := Batch(context.Background(), tr, items, Options{To: "de", Cache: cache})
	if err != nil {
		t.Fatal(err)
	}
	if results[1].Status != StatusCached || results[1].Text != "Bitcoin (cached)" {
		t.Fatalf("cached result = %+v", results[1])
	}
	if tr.calls["bitcoin"] != 0 {
		t.Fatal("cached string was sent to the translator")
	}
	if v, ok := cache.Lookup("de", "desc_GOLD", "gold"); !ok || v != "de:GOLD" {
		t.Fatalf("new translation not stored: %q %v", v, ok)
	}

	// A changed source misses the cache.
	changed := []Item{{Key: "desc_BTC", Text: "bitcoin, the first crypto"}}
	results, _ = Batch(context.Background(), tr, changed, Options{To: "de", Cache: cache})
	if results[0].Status != StatusTranslated {
		t.Fatalf("changed source status = %s", results[0].Status)
	}
}

func TestBatchFallbackNotCached(t *testing.T) {
	tr := newFake()
	tr.fail["gold"] = -1
	cache := mapCache{}
	if _, err := Batch(context.Background(), tr, items, Options{To: "de", Retries: 1, Cache: cache}); err != nil {
		t.Fatal(err)
	}
	if _, ok := cache.Lookup("de", "desc_GOLD", "gold"); ok {
		t.Fatal("fallback text was cached")
	}
}

func TestBatchProgressAndPacing(t *testing.T) {
	tr := newFake()
	var done []int
	var logs []string
	start := time.Now()
	_, err := Batch(context.Background(), tr, items, Options{
		To:         "es",
		Delay:      time.Millisecond,
		BatchSize:  2,
		BatchDelay: 20 * time.Millisecond,
		OnProgress: func(lang string, d, total int) { done = append(done, d) },
		OnLog:      func(f string, a ...any) { logs = append(logs, f) },
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(done) != 3 || done[2] != 3 {
		t.Fatalf("progress = %v", done)
	}
	if time.Since(start) < 20*time.Millisecond {
		t.Fatal("batch delay was not applied")
	}
	if len(logs) != 1 {
		t.Fatalf("expected one batch pause log, got %v", logs)
	}
}

func TestBatchCanceled(t *testing.T) {
	tr := newFake()
	tr.fail["euro dollar"] = -1
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	results, err := Batch(ctx, tr, items, Options{To: "de", RetryDelay: time.Second})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(results) != 0 {
		t.Fatalf("results = %v, want none", results)
	}
}

func TestBatchNeedsTarget(t *testing.T) {
	if _, err := Batch(context.Background(), newFake(), items, Options{}); err == nil {
		t.Fatal("expected error without target language")
	}
}

func TestTranslateAll(t *testing.T) {
	out, err := TranslateAll(context.Background(), newFake(), items[:1], []string{"de", "ru"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 2 || out[1].Lang != "ru" || out[1].Results[0].Text != "ru:EURO DOLLAR" {
		t.Fatalf("TranslateAll = %+v", out)
	}
}

// ---------------------------------------------------------------------------
// HTTP providers
// ---------------------------------------------------------------------------

func TestProviderOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer k" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		var req struct {
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[0].Content, "to de") {
			http.Error(w, "bad prompt", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"\"Gold\"\n"}}]}`))
	}))
	defer srv.Close()

	tr, err := New(ProviderCustomOpenAI, Provider{BaseURL: srv.URL, APIKey: "k", Model: "m"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	got, err := tr.Translate(context.Background(), "gold", "en", "de")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if got != "Gold" {
		t.Fatalf("Translate = %q", got)
	}
}

func TestProviderRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"details":[{"@type":"type.googleapis.com/google.rpc.RetryInfo","retryDelay":"2s"}]}}`))
	}))
	defer srv.Close()

	tr, err := New(ProviderGemini, Provider{BaseURL: srv.URL, APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	_, err = tr.Translate(context.Background(), "gold", "en", "de")
	var rl *RateLimitError
	if !errors.As(err, &rl) {
		t.Fatalf("error = %v, want *RateLimitError", err)
	}
	if rl.RetryAfter != 7*time.Second {
		t.Fatalf("RetryAfter = %v, want 7s", rl.RetryAfter)
	}
}

func TestNewProvider(t *testing.T) {
	if tr, err := New("", Provider{}); err != nil {
		t.Fatal(err)
	} else if _, ok := tr.(Google); !ok {
		t.Fatalf("default translator = %T, want Google", tr)
	}
	if _, err := New("groq", Provider{}); err == nil || !strings.Contains(err.Error(), "API key") {
		t.Fatalf("groq without key error = %v", err)
	}
	if _, err := New("ollama", Provider{}); err != nil {
		t.Fatalf("ollama needs no key: %v", err)
	}
	if _, err := New("deepl", Provider{}); err == nil {
		t.Fatal("expected unknown provider error")
	}
}

func TestExtractResponseText(t *testing.T) {
	tests := []struct {
		body    string
		want    string
		wantErr bool
	}{
		{`{"choices":[{"message":{"content":"Hallo"}}]}`, "Hallo", false},
		{`{"candidates":[{"content":{"parts":[{"text":"Bonjour"}]}}]}`, "Bonjour", false},
		{`{"error":{"message":"quota"}}`, "", true},
		{`{}`, "", true},
		{`not json`, "", true},
	}
	for _, tc := range tests {
		got, err := extractResponseText([]byte(tc.body))
		if (err != nil) != tc.wantErr || got != tc.want {
			t.Errorf("extractResponseText(%s) = %q, %v", tc.body, got, err)
		}
	}
}

func TestGoogleCode(t *testing.T) {
	tests := map[string]string{
		"de":    "de",
		"zh":    "zh-CN",
		"zh-TW": "zh-TW",
		"he":    "iw",
		"pt-BR": "pt-BR",
		"es-MX": "es",
	}
	for in, want := range tests {
		if got := googleCode(in); got != want {
			t.Errorf("googleCode(%q) = %q, want %q", in, got, want)
		}
	}
}
