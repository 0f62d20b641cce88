// internal/routing/domains.go
package routing

import (
	"net/url"
	"strings"

	"golang.org/x/net/publicsuffix"
)

// safeDomains maps a site label to its canonical URL. A bare label such as
// "youtube" resolves through the key; a host is safe only when it is the
// canonical host of an entry or one of its subdomains.
var safeDomains = map[string]string{
	"reddit":            "https://reddit.com",
	"youtube":           "https://youtube.com",
	"github":            "https://github.com",
	"stackoverflow":     "https://stackoverflow.com",
	"wikipedia":         "https://wikipedia.org",
	"google":            "https://google.com",
	"duckduckgo":        "https://duckduckgo.com",
	"bing":              "https://bing.com",
	"startpage":         "https://startpage.com",
	"mozilla":           "https://mozilla.org",
	"python":            "https://python.org",
	"nodejs":            "https://nodejs.org",
	"developer.mozilla": "https://developer.mozilla.org",
	"docs.python":       "https://docs.python.org",
	"npmjs":             "https://npmjs.com",
	"pypi":              "https://pypi.org",
}

// safeHosts indexes safeDomains by canonical host, e.g. "youtube.com".
var safeHosts = func() map[string]string {
	m := make(map[string]string, len(safeDomains))
	for _, u := range safeDomains {
		m[hostOf(u)] = u
	}
	return m
}()

// legitimateDomains lists well-known sites outside the safe set together with
// the task words that make them a relevant destination.
var legitimateDomains = map[string][]string{
	"unsplash.com":      {"photo", "photos", "picture", "pictures", "image", "images", "wallpaper", "puppies", "puppy", "kittens", "dogs", "cats"},
	"petfinder.com":     {"pet", "pets", "adopt", "adoption", "puppies", "puppy", "dogs", "dog", "kittens", "cats"},
	"pexels.com":        {"photo", "photos", "stock", "images", "pictures"},
	"amazon.com":        {"buy", "shop", "shopping", "order", "product", "price"},
	"ebay.com":          {"buy", "auction", "shop", "used"},
	"weather.com":       {"weather", "forecast", "rain", "temperature"},
	"bbc.com":           {"news", "headlines", "world"},
	"nytimes.com":       {"news", "headlines", "article"},
	"cnn.com":           {"news", "headlines", "breaking"},
	"imdb.com":          {"movie", "movies", "film", "actor", "tv"},
	"openstreetmap.org": {"map", "maps", "directions", "location"},
	"archive.org":       {"archive", "old", "history", "wayback"},
	"twitch.tv":         {"stream", "streams", "live", "gaming"},
	"spotify.com":       {"music", "song", "songs", "playlist", "podcast"},
	"linkedin.com":      {"jobs", "career", "profile", "network"},
	"netflix.com":       {"movie", "movies", "series", "watch"},
}

// keywordMappings are destination URLs for topics that have no obvious single
// site. Search engines come last.
var keywordMappings = map[string][]string{
	"puppies": {"https://unsplash.com/s/photos/puppies", "https://www.petfinder.com/search/dogs-for-adoption/", "https://www.google.com/search?q=puppies&tbm=isch"},
	"kittens": {"https://unsplash.com/s/photos/kittens", "https://www.petfinder.com/search/cats-for-adoption/", "https://www.google.com/search?q=kittens&tbm=isch"},
	"weather": {"https://weather.com", "https://www.google.com/search?q=weather"},
	"news":    {"https://www.bbc.com/news", "https://news.google.com"},
	"maps":    {"https://www.openstreetmap.org", "https://maps.google.com"},
}

// hostOf normalizes a URL or bare domain to a lowercase host without "www.".
func hostOf(raw string) string {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}

// siteName returns host without its public suffix, e.g. "developer.mozilla".
func siteName(host string) string {
	if !strings.Contains(host, ".") {
		return host
	}
	suffix, _ := publicsuffix.PublicSuffix(host)
	return strings.TrimSuffix(host, "."+suffix)
}

// registrableDomain returns eTLD+1, or the host itself when that fails.
func registrableDomain(host string) string {
	if d, err := publicsuffix.EffectiveTLDPlusOne(host); err == nil {
		return d
	}
	return host
}

// IsSafeDomain reports whether target (a URL, host, or bare site name) is in the safe-domain set.
func IsSafeDomain(target string) bool {
	_, ok := SafeDomainURL(target)
	return ok
}

// SafeDomainURL returns the canonical URL of a safe-domain target. The host is
// walked from its full name down to its registrable domain, so
// "en.wikipedia.org" matches "wikipedia.org" while "youtube.tk" matches nothing.
func SafeDomainURL(target string) (string, bool) {
	host := hostOf(target)
	if host == "" {
		return "", false
	}
	if !strings.Contains(host, ".") {
		u, ok := safeDomains[host]
		return u, ok
	}
	floor := registrableDomain(host)
	for name := host; ; {
		if u, ok := safeHosts[name]; ok {
			return u, true
		}
		i := strings.Index(name, ".")
		if name == floor || i < 0 {
			return "", false
		}
		name = name[i+1:]
	}
}

// LegitimateKeywords returns the relevance words of a known legitimate domain.
func LegitimateKeywords(host string) ([]string, bool) {
	kw, ok := legitimateDomains[registrableDomain(host)]
	return kw, ok
}

// MappedURLs returns the destination URLs for the first mapped keyword found in task.
func MappedURLs(task string) []string {
	words := tokenize(task)
	for _, w := range words {
		if urls, ok := keywordMappings[w]; ok {
			return append([]string(nil), urls...)
		}
	}
	return nil
}

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "show": true, "me": true, "some": true,
	"please": true, "can": true, "you": true, "to": true, "go": true, "of": true,
	"a": true, "an": true, "on": true, "in": true, "at": true, "visit": true,
	"navigate": true, "open": true, "search": true, "find": true, "look": true,
	"up": true, "what": true, "who": true, "how": true, "is": true, "are": true,
	"com": true, "org": true, "net": true, "www": true, "http": true, "https": true,
}

// tokenize splits text into lowercase alphanumeric words, dropping stopwords.
func tokenize(text string) []string {
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		if len(f) >= 2 && !stopwords[f] {
			out = append(out, f)
		}
	}
	return out
}
