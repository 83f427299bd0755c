package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ---------------------------------------------------------------------------
// Provider IDs
// ---------------------------------------------------------------------------

const (
	ProviderGoogleTranslate = "google-translate"
	ProviderGemini          = "gemini"
	ProviderGroq            = "groq"
	ProviderOllama          = "ollama"
	ProviderCustomOpenAI    = "custom-openai"
)

// ---------------------------------------------------------------------------
// Provider configuration
// ---------------------------------------------------------------------------

// Provider holds the configuration for an AI translation service. It
// implements Translator with one request per string.
type Provider struct {
	// ID is the provider identifier.
	ID string
	// Name is the display name.
	Name string
	// BaseURL is the API base URL.
	BaseURL string
	// APIKey is the authentication key (empty for local services).
	APIKey string
	// Model is the model identifier.
	Model string
	// Proxy is an optional HTTP/HTTPS proxy URL.
	Proxy string
	// Timeout is the request timeout.
	Timeout time.Duration

	client *http.Client
}

// DefaultProviders returns the pre-configured provider definitions.
func DefaultProviders() map[string]Provider {
	return map[string]Provider{
		ProviderGemini: {
			ID:      ProviderGemini,
			Name:    "Google AI (Gemini)",
			BaseURL: "https://generativelanguage.googleapis.com",
			Model:   "gemini-2.0-flash",
			Timeout: 60 * time.Second,
		},
		ProviderGroq: {
			ID:      ProviderGroq,
			Name:    "Groq",
			BaseURL: "https://api.groq.com/openai/v1",
			Model:   "llama-3.3-70b-versatile",
			Timeout: 60 * time.Second,
		},
		ProviderOllama: {
			ID:      ProviderOllama,
			Name:    "Ollama",
			BaseURL: "http://localhost:11434",
			Model:   "llama3.1",
			Timeout: 120 * time.Second,
		},
		ProviderCustomOpenAI: {
			ID:      ProviderCustomOpenAI,
			Name:    "Custom OpenAI",
			Timeout: 60 * time.Second,
		},
	}
}

// New resolves a translator by provider id. "google-translate" (or empty)
// selects the keyless Google backend; the others are HTTP providers whose
// defaults are overridden by non-empty fields of override.
func New(id string, override Provider) (Translator, error) {
	if id == "" || id == ProviderGoogleTranslate {
		return Google{}, nil
	}
	p, ok := DefaultProviders()[id]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}
	if override.BaseURL != "" {
		p.BaseURL = override.BaseURL
	}
	if override.APIKey != "" {
		p.APIKey = override.APIKey
	}
	if override.Model != "" {
		p.Model = override.Model
	}
	if override.Proxy != "" {
		p.Proxy = override.Proxy
	}
	if override.Timeout > 0 {
		p.Timeout = override.Timeout
	}
	switch {
	case p.BaseURL == "":
		return nil, fmt.Errorf("provider %s needs a base URL", id)
	case p.Model == "":
		return nil, fmt.Errorf("provider %s needs a model", id)
	case p.APIKey == "" && id != ProviderOllama:
		return nil, fmt.Errorf("provider %s needs an API key (set LESSONKIT_API_KEY)", id)
	}
	p.client = makeHTTPClient(p.Proxy, p.Timeout)
	return &p, nil
}

// SystemPrompt is sent with every request to AI providers.
const SystemPrompt = `You are a professional translator for a trading education game. Translate the user's text from {{sourceLang}} to {{targetLang}}.

RULES:
- Reply with the translation only: no quotes, notes or explanations.
- Keep ticker symbols, currency codes, numbers and placeholders like {name} unchanged.
- Keep the tone short and informative, like a product description.`

// Translate implements Translator.
func (p *Provider) Translate(ctx context.Context, text, from, to string) (string, error) {
	prompt := strings.NewReplacer("{{sourceLang}}", from, "{{targetLang}}", to).Replace(SystemPrompt)

	endpoint, headers, body, err := p.buildRequest(prompt, text)
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	client := p.client
	if client == nil {
		client = makeHTTPClient(p.Proxy, p.Timeout)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("API request failed: %w", err)
	}
	respBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{
			RetryAfter: parseRetryDelay(respBody),
			Err:        fmt.Errorf("%s returned 429: %s", p.Name, truncate(string(respBody), 200)),
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	out, err := extractResponseText(respBody)
	if err != nil {
		return "", err
	}
	return strings.Trim(strings.TrimSpace(out), `"`), nil
}

func (p *Provider) buildRequest(systemPrompt, userPrompt string) (string, map[string]string, []byte, error) {
	headers := map[string]string{
		"Content-Type": "application/json",
	}
	base := strings.TrimRight(p.BaseURL, "/")

	switch p.ID {
	case ProviderGemini:
		body, err := buildGeminiRequest(systemPrompt, userPrompt, 0.2)
		endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", base, p.Model)
		headers["x-goog-api-key"] = p.APIKey
		return endpoint, headers, body, err
	case ProviderOllama:
		body, err := buildOpenAIChatRequest(p.Model, systemPrompt, userPrompt, 0.2)
		return base + "/v1/chat/completions", headers, body, err
	default:
		body, err := buildOpenAIChatRequest(p.Model, systemPrompt, userPrompt, 0.2)
		if p.APIKey != "" {
			headers["Authorization"] = "Bearer " + p.APIKey
		}
		return base + "/chat/completions", headers, body, err
	}
}

// ---------------------------------------------------------------------------
// HTTP client with real proxy support
// ---------------------------------------------------------------------------

func makeHTTPClient(proxyURL string, timeout time.Duration) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()

	// Support both an explicit proxy and HTTP_PROXY/HTTPS_PROXY env vars
	if proxyURL != "" {
		parsed, err := url.Parse(proxyURL)
		if err == nil {
			transport.Proxy = http.ProxyURL(parsed)
		}
	} else {
		transport.Proxy = http.ProxyFromEnvironment
	}

	return &http.Client{
		Transport: transport,
		Timeout:   timeout,
	}
}

// ---------------------------------------------------------------------------
// Request builders
// ---------------------------------------------------------------------------

func buildOpenAIChatRequest(model, systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type msg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	req := struct {
		Model       string  `json:"model"`
		Messages    []msg   `json:"messages"`
		Temperature float64 `json:"temperature"`
		Stream      bool    `json:"stream"`
	}{
		Model: model,
		Messages: []msg{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: temperature,
	}
	return json.Marshal(req)
}

func buildGeminiRequest(systemPrompt, userPrompt string, temperature float64) ([]byte, error) {
	type part struct {
		Text string `json:"text"`
	}
	type content struct {
		Role  string `json:"role,omitempty"`
		Parts []part `json:"parts"`
	}
	type genConfig struct {
		Temperature float64 `json:"temperature"`
	}
	req := struct {
		Contents          []content `json:"contents"`
		GenerationConfig  genConfig `json:"generationConfig"`
		SystemInstruction *content  `json:"systemInstruction,omitempty"`
	}{
		Contents: []content{
			{Role: "user", Parts: []part{{Text: userPrompt}}},
		},
		GenerationConfig: genConfig{Temperature: temperature},
	}
	if systemPrompt != "" {
		req.SystemInstruction = &content{Parts: []part{{Text: systemPrompt}}}
	}
	return json.Marshal(req)
}

// ---------------------------------------------------------------------------
// Response parsing
// ---------------------------------------------------------------------------

// extractResponseText reads OpenAI chat and Gemini responses.
func extractResponseText(body []byte) (string, error) {
	var raw struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Candidates []struct {
			Content struct {
				Parts []struct {
					Text string `json:"text"`
				} `json:"parts"`
			} `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return "", fmt.Errorf("invalid JSON response: %w", err)
	}
	if raw.Error != nil {
		return "", fmt.Errorf("API error: %s", raw.Error.Message)
	}
	if len(raw.Choices) > 0 {
		return raw.Choices[0].Message.Content, nil
	}
	if len(raw.Candidates) > 0 && len(raw.Candidates[0].Content.Parts) > 0 {
		return raw.Candidates[0].Content.Parts[0].Text, nil
	}
	return "", fmt.Errorf("could not extract text from response: %s", truncate(string(body), 500))
}

// parseRetryDelay extracts the retry delay from a 429 response body.
// Looks for Google's RetryInfo detail with retryDelay field.
// Returns the delay to wait, defaulting to 60s + 5s buffer.
func parseRetryDelay(body []byte) time.Duration {
	const defaultDelay = 65 * time.Second

	var errResp struct {
		Error struct {
			Details []struct {
				Type       string `json:"@type"`
				RetryDelay string `json:"retryDelay"`
			} `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return defaultDelay
	}
	for _, detail := range errResp.Error.Details {
		if strings.Contains(detail.Type, "RetryInfo") && detail.RetryDelay != "" {
			d := strings.TrimSuffix(detail.RetryDelay, "s")
			if secs, err := strconv.ParseFloat(d, 64); err == nil {
				return time.Duration(secs*1000)*time.Millisecond + 5*time.Second
			}
		}
	}
	return defaultDelay
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
