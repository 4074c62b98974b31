package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// DomainPolicy restricts which hosts the blog branch may return.
// An empty Allow list admits every host not listed in Block.
type DomainPolicy struct {
	Allow []string `mapstructure:"allow"`
	Block []string `mapstructure:"block"`
}

// Normalize lowercases hosts, strips schemes and www., and removes duplicates.
func (p DomainPolicy) Normalize() DomainPolicy {
	return DomainPolicy{
		Allow: normalizeHostList(p.Allow),
		Block: normalizeHostList(p.Block),
	}
}

// Validate rejects hosts that are both allowed and blocked.
func (p DomainPolicy) Validate() error {
	norm := p.Normalize()
	allow := make(map[string]struct{}, len(norm.Allow))
	for _, host := range norm.Allow {
		allow[host] = struct{}{}
	}
	for _, host := range norm.Block {
		if _, ok := allow[host]; ok {
			return fmt.Errorf("domain policy conflict: host %q present in both allow and block lists", host)
		}
	}
	return nil
}

// Permits reports whether rawURL's host passes the policy. Subdomains match
// their parent entry.
func (p DomainPolicy) Permits(rawURL string) bool {
	host := NormalizeHost(rawURL)
	if host == "" {
		return len(p.Allow) == 0
	}
	for _, blocked := range p.Block {
		if hostMatches(host, blocked) {
			return false
		}
	}
	if len(p.Allow) == 0 {
		return true
	}
	for _, allowed := range p.Allow {
		if hostMatches(host, allowed) {
			return true
		}
	}
	return false
}

func hostMatches(host, entry string) bool {
	return host == entry || strings.HasSuffix(host, "."+entry)
}

func normalizeHostList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		if host := NormalizeHost(raw); host != "" {
			seen[host] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

// NormalizeHost reduces a host or URL to its lowercase host without www.
func NormalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		u, err := url.Parse(value)
		if err != nil || u.Host == "" {
			return ""
		}
		value = u.Hostname()
	}
	return strings.TrimPrefix(value, "www.")
}
