package trust

import (
	"regexp"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
)

// Registry holds what one run knows about its entity: the name
// variations to match in text and the domains discovered to belong to
// it. Each run owns its own Registry, so domain verdicts cached here
// never leak across runs.
type Registry struct {
	name       string
	variations []string
	patterns   []*regexp.Regexp
	domains    map[string]struct{}
	verdicts   *gocache.Cache
	logger     *zap.Logger
}

// NewRegistry builds a Registry for the named entity.
func NewRegistry(name string, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	variations := Variations(name)
	patterns := make([]*regexp.Regexp, 0, len(variations))
	for _, v := range variations {
		patterns = append(patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(v)+`\b`))
	}
	return &Registry{
		name:       name,
		variations: variations,
		patterns:   patterns,
		domains:    make(map[string]struct{}),
		verdicts:   gocache.New(30*time.Minute, 10*time.Minute),
		logger:     logger,
	}
}

// Name returns the entity name the registry was built for.
func (r *Registry) Name() string {
	return r.name
}

// Variations returns the derived name variants.
func (r *Registry) Variations() []string {
	out := make([]string, len(r.variations))
	copy(out, r.variations)
	return out
}

// AddDomain registers a host as belonging to the entity. Publishing
// prefixes are stripped so www.acme.com registers acme.com.
func (r *Registry) AddDomain(host string) {
	root := StripSubdomain(host)
	if root == "" {
		return
	}
	if _, ok := r.domains[root]; !ok {
		r.domains[root] = struct{}{}
		r.verdicts.Flush()
		r.logger.Debug("registered entity domain", zap.String("domain", root))
	}
}

// Domains returns the registered entity domains.
func (r *Registry) Domains() []string {
	out := make([]string, 0, len(r.domains))
	for d := range r.domains {
		out = append(out, d)
	}
	return out
}

// IsEntityDomain reports whether host belongs to the entity, matching
// registered domains and their subdomains. Verdicts are memoized for
// the life of the run.
func (r *Registry) IsEntityDomain(host string) bool {
	host = NormalizeHost(host)
	if host == "" {
		return false
	}
	if v, ok := r.verdicts.Get(host); ok {
		return v.(bool)
	}
	verdict := false
	for d := range r.domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			verdict = true
			break
		}
	}
	r.verdicts.Set(host, verdict, gocache.DefaultExpiration)
	return verdict
}

// MentionCount returns the highest word-boundary occurrence count of
// any name variation in text. The maximum, not the sum, so overlapping
// variants of the same mention are not double counted.
func (r *Registry) MentionCount(text string) int {
	if text == "" || len(r.patterns) == 0 {
		return 0
	}
	lower := strings.ToLower(text)
	best := 0
	for _, p := range r.patterns {
		if n := len(p.FindAllStringIndex(lower, -1)); n > best {
			best = n
		}
	}
	return best
}

// Mentioned reports whether any name variation occurs in text.
func (r *Registry) Mentioned(text string) bool {
	return r.MentionCount(text) > 0
}
