// Package trust models entity identity and source authority: the name
// variations an entity appears under in text, the web domains that
// belong to it, and the tiered allow-list of authority domains.
package trust

import (
	"strings"
)

// Tier classifies an authority domain. Lower numbered tiers carry more
// weight; TierNone marks an unknown domain.
type Tier int

const (
	TierNone       Tier = 0
	TierRegulatory Tier = 1
	TierFinancial  Tier = 2
	TierIndustry   Tier = 3
	TierESG        Tier = 4
)

// authorityDomains is the static allow-list. Matching is suffix-aware,
// so www.sec.gov inherits the sec.gov tier.
var authorityDomains = map[string]Tier{
	"sec.gov":     TierRegulatory,
	"epa.gov":     TierRegulatory,
	"energy.gov":  TierRegulatory,
	"carb.ca.gov": TierRegulatory,
	"dot.gov":     TierRegulatory,
	"fmcsa.dot.gov": TierRegulatory,

	"reuters.com":   TierFinancial,
	"bloomberg.com": TierFinancial,
	"wsj.com":       TierFinancial,
	"ft.com":        TierFinancial,

	"ttnews.com":       TierIndustry,
	"freightwaves.com": TierIndustry,
	"fleetowner.com":   TierIndustry,
	"truckinginfo.com": TierIndustry,
	"ngtnews.com":      TierIndustry,
	"act-news.com":     TierIndustry,

	"cdp.net":             TierESG,
	"globalreporting.org": TierESG,
	"unglobalcompact.org": TierESG,
	"sciencebasedtargets.org": TierESG,
}

// subdomainPrefixes are the host prefixes companies publish their own
// material under, including CDN-style asset hosts.
var subdomainPrefixes = []string{
	"www.", "investor.", "investors.", "ir.", "cdn.", "assets.",
	"files.", "docs.", "static.", "sustainability.", "esg.",
}

// corporateSuffixes are trailing words stripped when deriving name
// variations.
var corporateSuffixes = map[string]bool{
	"inc": true, "incorporated": true, "corp": true, "corporation": true,
	"company": true, "co": true, "llc": true, "ltd": true,
	"limited": true, "lp": true, "llp": true, "logistics": true,
}

// AuthorityTier returns the tier for host, matching registered domains
// and their subdomains.
func AuthorityTier(host string) Tier {
	host = NormalizeHost(host)
	for domain, tier := range authorityDomains {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return tier
		}
	}
	return TierNone
}

// IsRegulatoryAuthority reports whether host is on the unconditional
// accept list of regulatory registries.
func IsRegulatoryAuthority(host string) bool {
	return AuthorityTier(host) == TierRegulatory
}

// NormalizeHost lowercases a host and strips any port.
func NormalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	return host
}

// StripSubdomain removes one recognized publishing prefix, so
// cdn.acme.com and acme.com compare equal.
func StripSubdomain(host string) string {
	host = NormalizeHost(host)
	for _, p := range subdomainPrefixes {
		if strings.HasPrefix(host, p) {
			return host[len(p):]
		}
	}
	return host
}

// HostedOnCDNPath reports whether a URL path looks like an asset or
// document store, which lowers the mention threshold for ownership
// checks.
func HostedOnCDNPath(rawPath string) bool {
	p := strings.ToLower(rawPath)
	for _, marker := range []string{"/cdn/", "/files/", "/assets/", "/static/", "/docs/", "/content/", "/media/"} {
		if strings.Contains(p, marker) {
			return true
		}
	}
	return false
}

// Variations derives the lowercase name variants an entity is matched
// under: the raw name, a punctuation-free form, the suffix-stripped
// form, and the leading word when long enough to be distinctive.
// Ordering is most specific first.
func Variations(name string) []string {
	base := strings.ToLower(strings.TrimSpace(name))
	if base == "" {
		return nil
	}

	var out []string
	seen := make(map[string]bool)
	add := func(v string) {
		v = strings.Join(strings.Fields(v), " ")
		if v != "" && !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}

	add(base)

	cleaned := strings.NewReplacer(".", "", ",", "", "'", "", "’", "", "-", " ", "&", " ").Replace(base)
	add(cleaned)

	words := strings.Fields(cleaned)
	for len(words) > 1 && corporateSuffixes[words[len(words)-1]] {
		words = words[:len(words)-1]
	}
	stripped := strings.Join(words, " ")
	add(stripped)

	if len(words) > 0 && len(words[0]) > 2 {
		add(words[0])
	}
	return out
}
