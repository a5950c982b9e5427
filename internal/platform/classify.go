package platform

import (
	"fmt"
	"net/url"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the number of hostnames a Classifier remembers.
const DefaultCacheSize = 1024

type match struct {
	platform Platform
	ok       bool
}

// Classifier resolves URLs to platforms by hostname.
// Results are cached per hostname since tab events repeat the same hosts.
type Classifier struct {
	domains map[string]Platform
	cache   *lru.Cache[string, match]
}

// NewClassifier creates a Classifier over the built-in domain table.
func NewClassifier(cacheSize int) (*Classifier, error) {
	return NewClassifierWithDomains(Domains, cacheSize)
}

// NewClassifierWithDomains creates a Classifier over a custom domain table.
func NewClassifierWithDomains(domains map[string]Platform, cacheSize int) (*Classifier, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, match](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create classifier cache: %w", err)
	}

	table := make(map[string]Platform, len(domains))
	for domain, p := range domains {
		table[strings.ToLower(domain)] = p
	}

	return &Classifier{domains: table, cache: cache}, nil
}

// Classify returns the platform for rawURL, or false when the URL does not
// belong to a tracked platform.
func (c *Classifier) Classify(rawURL string) (Platform, bool) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	return c.ClassifyHost(u.Hostname())
}

// ClassifyHost returns the platform for a bare hostname.
func (c *Classifier) ClassifyHost(host string) (Platform, bool) {
	host = strings.TrimSuffix(strings.ToLower(host), ".")
	host = strings.TrimPrefix(host, "www.")
	if host == "" {
		return "", false
	}

	if cached, ok := c.cache.Get(host); ok {
		return cached.platform, cached.ok
	}

	result := c.lookup(host)
	c.cache.Add(host, result)
	return result.platform, result.ok
}

func (c *Classifier) lookup(host string) match {
	if p, ok := c.domains[host]; ok {
		return match{platform: p, ok: true}
	}
	for domain, p := range c.domains {
		if strings.HasSuffix(host, "."+domain) {
			return match{platform: p, ok: true}
		}
	}
	return match{}
}
