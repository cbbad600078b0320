// Package i18n resolves message keys to user-facing text. Catalogs are
// embedded and loaded once by New; a Resolver is read-only afterwards.
package i18n

import (
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strings"

	"golang.org/x/text/language"
)

//go:embed locales/*.json
var catalogFS embed.FS

type Resolver struct {
	tags     []language.Tag
	matcher  language.Matcher
	catalogs []map[string]string
}

// New loads every embedded catalog. defaultLang is used when the caller's
// locale matches nothing and for keys missing from the matched catalog.
func New(defaultLang string) (*Resolver, error) {
	entries, err := catalogFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}

	def, err := language.Parse(defaultLang)
	if err != nil {
		return nil, fmt.Errorf("default language %q: %w", defaultLang, err)
	}

	r := &Resolver{}
	defIdx := -1
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), path.Ext(e.Name()))
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("locale file %s: %w", e.Name(), err)
		}
		raw, err := catalogFS.ReadFile(path.Join("locales", e.Name()))
		if err != nil {
			return nil, err
		}
		catalog := map[string]string{}
		if err := json.Unmarshal(raw, &catalog); err != nil {
			return nil, fmt.Errorf("parse %s: %w", e.Name(), err)
		}
		if tag == def {
			defIdx = len(r.tags)
		}
		r.tags = append(r.tags, tag)
		r.catalogs = append(r.catalogs, catalog)
	}
	if defIdx < 0 {
		return nil, fmt.Errorf("no catalog for default language %q", defaultLang)
	}

	// The matcher falls back to the first tag.
	r.tags[0], r.tags[defIdx] = r.tags[defIdx], r.tags[0]
	r.catalogs[0], r.catalogs[defIdx] = r.catalogs[defIdx], r.catalogs[0]
	r.matcher = language.NewMatcher(r.tags)
	return r, nil
}

// MustNew is New that panics on error.
func MustNew(defaultLang string) *Resolver {
	r, err := New(defaultLang)
	if err != nil {
		panic(err)
	}
	return r
}

// Resolve returns the text for key in the best match for locale, which may
// be a single tag or an Accept-Language value. Unknown keys come back as-is.
func (r *Resolver) Resolve(key, locale string) string {
	idx := 0
	if locale != "" {
		if tags, _, err := language.ParseAcceptLanguage(locale); err == nil && len(tags) > 0 {
			_, idx, _ = r.matcher.Match(tags...)
		}
	}

	if msg, ok := r.catalogs[idx][key]; ok {
		return msg
	}
	if msg, ok := r.catalogs[0][key]; ok {
		return msg
	}
	return key
}

// Localize resolves key for the request's Accept-Language header.
func (r *Resolver) Localize(req *http.Request, key string) string {
	return r.Resolve(key, req.Header.Get("Accept-Language"))
}

// Languages lists the supported languages, default first.
func (r *Resolver) Languages() []string {
	out := make([]string, len(r.tags))
	for i, t := range r.tags {
		out[i] = t.String()
	}
	return out
}
