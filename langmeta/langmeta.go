// Package langmeta is the registry of target languages lessonkit can
// translate into: native names and emoji flags keyed by BCP 47 code.
package langmeta

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// ErrUnknownLanguage is returned for codes that are not in the registry.
var ErrUnknownLanguage = errors.New("unknown language")

// Meta describes language display metadata.
type Meta struct {
	Native string
	Flag   string
}

// Language is a resolved registry entry.
type Language struct {
	Code   string // canonical BCP 47 code
	Name   string // English name
	Native string
	Flag   string
}

// GameLanguages is the list "all" expands to when no languages are
// configured: the locales the game ships besides English.
var GameLanguages = []string{
	"ru", "de", "es", "fr", "it", "pt-BR", "pl", "uk", "tr",
	"ar", "hi", "ja", "ko", "zh-CN", "id", "vi",
}

// Registry contains canonical language metadata.
// Locale variants are resolved in Resolve via base fallback.
var Registry = map[string]Meta{
	"af":    {Native: "Afrikaans", Flag: "🇿🇦"},
	"am":    {Native: "አማርኛ", Flag: "🇪🇹"},
	"ar":    {Native: "العربية", Flag: "🇸🇦"},
	"ar-EG": {Native: "العربية (مصر)", Flag: "🇪🇬"},
	"az":    {Native: "Azərbaycanca", Flag: "🇦🇿"},
	"be":    {Native: "Беларуская", Flag: "🇧🇾"},
	"bg":    {Native: "Български", Flag: "🇧🇬"},
	"bn":    {Native: "বাংলা", Flag: "🇧🇩"},
	"bs":    {Native: "Bosanski", Flag: "🇧🇦"},
	"ca":    {Native: "Català", Flag: "🇪🇸"},
	"cs":    {Native: "Čeština", Flag: "🇨🇿"},
	"cy":    {Native: "Cymraeg", Flag: "🇬🇧"},
	"da":    {Native: "Dansk", Flag: "🇩🇰"},
	"de":    {Native: "Deutsch", Flag: "🇩🇪"},
	"de-AT": {Native: "Deutsch (Österreich)", Flag: "🇦🇹"},
	"de-CH": {Native: "Deutsch (Schweiz)", Flag: "🇨🇭"},
	"el":    {Native: "Ελληνικά", Flag: "🇬🇷"},
	"en":    {Native: "English", Flag: "🇺🇸"},
	"en-AU": {Native: "English (Australia)", Flag: "🇦🇺"},
	"en-CA": {Native: "English (Canada)", Flag: "🇨🇦"},
	"en-GB": {Native: "English (UK)", Flag: "🇬🇧"},
	"en-IN": {Native: "English (India)", Flag: "🇮🇳"},
	"en-US": {Native: "English (US)", Flag: "🇺🇸"},
	"es":    {Native: "Español", Flag: "🇪🇸"},
	"es-AR": {Native: "Español (Argentina)", Flag: "🇦🇷"},
	"es-MX": {Native: "Español (México)", Flag: "🇲🇽"},
	"et":    {Native: "Eesti", Flag: "🇪🇪"},
	"eu":    {Native: "Euskara", Flag: "🇪🇸"},
	"fa":    {Native: "فارسی", Flag: "🇮🇷"},
	"fi":    {Native: "Suomi", Flag: "🇫🇮"},
	"fr":    {Native: "Français", Flag: "🇫🇷"},
	"fr-BE": {Native: "Français (Belgique)", Flag: "🇧🇪"},
	"fr-CA": {Native: "Français (Canada)", Flag: "🇨🇦"},
	"fr-CH": {Native: "Français (Suisse)", Flag: "🇨🇭"},
	"ga":    {Native: "Gaeilge", Flag: "🇮🇪"},
	"gl":    {Native: "Galego", Flag: "🇪🇸"},
	"gu":    {Native: "ગુજરાતી", Flag: "🇮🇳"},
	"he":    {Native: "עברית", Flag: "🇮🇱"},
	"hi":    {Native: "हिन्दी", Flag: "🇮🇳"},
	"hr":    {Native: "Hrvatski", Flag: "🇭🇷"},
	"hu":    {Native: "Magyar", Flag: "🇭🇺"},
	"hy":    {Native: "Հայերեն", Flag: "🇦🇲"},
	"id":    {Native: "Bahasa Indonesia", Flag: "🇮🇩"},
	"is":    {Native: "Íslenska", Flag: "🇮🇸"},
	"it":    {Native: "Italiano", Flag: "🇮🇹"},
	"ja":    {Native: "日本語", Flag: "🇯🇵"},
	"ka":    {Native: "ქართული", Flag: "🇬🇪"},
	"kk":    {Native: "Қазақ тілі", Flag: "🇰🇿"},
	"km":    {Native: "ខ្មែរ", Flag: "🇰🇭"},
	"ko":    {Native: "한국어", Flag: "🇰🇷"},
	"lo":    {Native: "ລາວ", Flag: "🇱🇦"},
	"lt":    {Native: "Lietuvių", Flag: "🇱🇹"},
	"lv":    {Native: "Latviešu", Flag: "🇱🇻"},
	"mk":    {Native: "Македонски", Flag: "🇲🇰"},
	"ml":    {Native: "മലയാളം", Flag: "🇮🇳"},
	"mn":    {Native: "Монгол", Flag: "🇲🇳"},
	"mr":    {Native: "मराठी", Flag: "🇮🇳"},
	"ms":    {Native: "Bahasa Melayu", Flag: "🇲🇾"},
	"mt":    {Native: "Malti", Flag: "🇲🇹"},
	"my":    {Native: "မြန်မာ", Flag: "🇲🇲"},
	"nb":    {Native: "Norsk bokmål", Flag: "🇳🇴"},
	"ne":    {Native: "नेपाली", Flag: "🇳🇵"},
	"nl":    {Native: "Nederlands", Flag: "🇳🇱"},
	"nl-BE": {Native: "Nederlands (België)", Flag: "🇧🇪"},
	"nn":    {Native: "Norsk nynorsk", Flag: "🇳🇴"},
	"no":    {Native: "Norsk", Flag: "🇳🇴"},
	"pa":    {Native: "ਪੰਜਾਬੀ", Flag: "🇮🇳"},
	"pl":    {Native: "Polski", Flag: "🇵🇱"},
	"ps":    {Native: "پښتو", Flag: "🇦🇫"},
	"pt":    {Native: "Português", Flag: "🇵🇹"},
	"pt-BR": {Native: "Português (Brasil)", Flag: "🇧🇷"},
	"pt-PT": {Native: "Português (Portugal)", Flag: "🇵🇹"},
	"ro":    {Native: "Română", Flag: "🇷🇴"},
	"ru":    {Native: "Русский", Flag: "🇷🇺"},
	"si":    {Native: "සිංහල", Flag: "🇱🇰"},
	"sk":    {Native: "Slovenčina", Flag: "🇸🇰"},
	"sl":    {Native: "Slovenščina", Flag: "🇸🇮"},
	"sq":    {Native: "Shqip", Flag: "🇦🇱"},
	"sr":    {Native: "Српски", Flag: "🇷🇸"},
	"sv":    {Native: "Svenska", Flag: "🇸🇪"},
	"sw":    {Native: "Kiswahili", Flag: "🇹🇿"},
	"ta":    {Native: "தமிழ்", Flag: "🇮🇳"},
	"te":    {Native: "తెలుగు", Flag: "🇮🇳"},
	"th":    {Native: "ไทย", Flag: "🇹🇭"},
	"tr":    {Native: "Türkçe", Flag: "🇹🇷"},
	"uk":    {Native: "Українська", Flag: "🇺🇦"},
	"ur":    {Native: "اردو", Flag: "🇵🇰"},
	"uz":    {Native: "O'zbek", Flag: "🇺🇿"},
	"vi":    {Native: "Tiếng Việt", Flag: "🇻🇳"},
	"xh":    {Native: "isiXhosa", Flag: "🇿🇦"},
	"yo":    {Native: "Yorùbá", Flag: "🇳🇬"},
	"zh":    {Native: "中文", Flag: "🇨🇳"},
	"zh-CN": {Native: "简体中文", Flag: "🇨🇳"},
	"zh-TW": {Native: "繁體中文", Flag: "🇹🇼"},
	"zu":    {Native: "isiZulu", Flag: "🇿🇦"},
}

// Canonicalize normalizes a language code ("pt_br", " EN-us ") to its
// canonical BCP 47 form ("pt-BR", "en-US").
func Canonicalize(code string) (string, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", fmt.Errorf("empty language code")
	}
	tag, err := language.Parse(strings.ReplaceAll(code, "_", "-"))
	if err != nil {
		return "", fmt.Errorf("%q: %w", code, err)
	}
	return tag.String(), nil
}

// Resolve returns the registry entry for code. Region variants missing from
// the registry fall back to their base language ("fr-LU" -> "fr").
func Resolve(code string) (Language, error) {
	canon, err := Canonicalize(code)
	if err != nil {
		return Language{}, fmt.Errorf("%w: %v", ErrUnknownLanguage, err)
	}
	tag := language.Make(canon)

	m, ok := Registry[canon]
	if !ok {
		base, _ := tag.Base()
		m, ok = Registry[base.String()]
	}
	if !ok {
		return Language{}, fmt.Errorf("%w: %s", ErrUnknownLanguage, code)
	}
	return Language{
		Code:   canon,
		Name:   display.English.Tags().Name(tag),
		Native: m.Native,
		Flag:   m.Flag,
	}, nil
}

// Label formats a language for CLI output, e.g. "🇩🇪 de (German, Deutsch)".
func (l Language) Label() string {
	s := l.Code + " (" + l.Name
	if l.Native != "" && l.Native != l.Name {
		s += ", " + l.Native
	}
	s += ")"
	if l.Flag != "" {
		s = l.Flag + " " + s
	}
	return s
}

// Expand turns the user's language argument into a list of canonical codes.
// "all" selects configured (or GameLanguages when empty); otherwise arg is a
// comma-separated list. The source language and duplicates are dropped.
func Expand(arg string, configured []string, source string) ([]string, error) {
	var codes []string
	if strings.EqualFold(strings.TrimSpace(arg), "all") {
		codes = configured
		if len(codes) == 0 {
			codes = GameLanguages
		}
	} else {
		for _, c := range strings.Split(arg, ",") {
			if c = strings.TrimSpace(c); c != "" {
				codes = append(codes, c)
			}
		}
	}
	if len(codes) == 0 {
		return nil, fmt.Errorf("no languages given")
	}

	src, _ := Canonicalize(source)
	seen := make(map[string]bool)
	var out []string
	for _, c := range codes {
		l, err := Resolve(c)
		if err != nil {
			return nil, err
		}
		if l.Code == src || seen[l.Code] {
			continue
		}
		seen[l.Code] = true
		out = append(out, l.Code)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no target languages besides the source language %s", source)
	}
	return out, nil
}

// Codes returns the registry codes, sorted.
func Codes() []string {
	codes := make([]string, 0, len(Registry))
	for c := range Registry {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return codes
}
