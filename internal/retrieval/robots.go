package retrieval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// robotsRule is one Allow/Disallow line of a robots.txt group.
type robotsRule struct {
	path  string
	allow bool
}

// robotsPolicy is the rule set applying to our user agent on one host.
type robotsPolicy struct {
	rules       []robotsRule
	disallowAll bool
}

// allows applies longest-match precedence; an Allow wins ties. No matching
// rule means the path is allowed.
func (p *robotsPolicy) allows(path string) bool {
	if p.disallowAll {
		return false
	}
	if path == "" {
		path = "/"
	}

	bestLen := -1
	allowed := true
	for _, rule := range p.rules {
		if rule.path == "" {
			continue
		}
		if strings.HasPrefix(path, rule.path) {
			if len(rule.path) > bestLen || (len(rule.path) == bestLen && rule.allow) {
				bestLen = len(rule.path)
				allowed = rule.allow
			}
		}
	}
	return allowed
}

// RobotsChecker enforces robots.txt before any page fetch. Hosts whose
// robots.txt cannot be retrieved are treated as off limits; a missing file
// permits crawling per convention.
type RobotsChecker struct {
	userAgent  string
	httpClient *http.Client
	mu         sync.Mutex
	cache      map[string]*robotsPolicy
}

// NewRobotsChecker creates a checker identifying as userAgent.
func NewRobotsChecker(userAgent string, timeout time.Duration) *RobotsChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &RobotsChecker{
		userAgent: userAgent,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		cache: make(map[string]*robotsPolicy),
	}
}

// Allowed reports whether our user agent may fetch the URL. Policies are
// cached per host for the checker's lifetime.
func (c *RobotsChecker) Allowed(ctx context.Context, pageURL string) bool {
	parsed, err := url.Parse(pageURL)
	if err != nil || parsed.Host == "" {
		return false
	}

	c.mu.Lock()
	policy, ok := c.cache[parsed.Host]
	c.mu.Unlock()

	if !ok {
		policy = c.fetchPolicy(ctx, parsed)
		c.mu.Lock()
		c.cache[parsed.Host] = policy
		c.mu.Unlock()
	}

	return policy.allows(parsed.Path)
}

func (c *RobotsChecker) fetchPolicy(ctx context.Context, page *url.URL) *robotsPolicy {
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", page.Scheme, page.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return &robotsPolicy{disallowAll: true}
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &robotsPolicy{disallowAll: true}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusOK:
		return parseRobots(resp.Body, c.userAgent)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &robotsPolicy{disallowAll: true}
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// No robots.txt published, crawling is unrestricted.
		return &robotsPolicy{}
	default:
		return &robotsPolicy{disallowAll: true}
	}
}

// parseRobots extracts the rules of the group matching userAgent, falling
// back to the wildcard group.
func parseRobots(r io.Reader, userAgent string) *robotsPolicy {
	agent := strings.ToLower(userAgent)

	var (
		specific    []robotsRule
		wildcard    []robotsRule
		inSpecific  bool
		inWildcard  bool
		afterAgents bool
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if idx := strings.Index(line, "#"); idx >= 0 {
			line = line[:idx]
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "user-agent":
			// A user-agent line after rules starts a new group.
			if afterAgents {
				inSpecific = false
				inWildcard = false
				afterAgents = false
			}
			ua := strings.ToLower(value)
			if ua == "*" {
				inWildcard = true
			} else if strings.Contains(agent, ua) {
				inSpecific = true
			}
		case "allow", "disallow":
			afterAgents = true
			rule := robotsRule{path: value, allow: key == "allow"}
			if inSpecific {
				specific = append(specific, rule)
			}
			if inWildcard {
				wildcard = append(wildcard, rule)
			}
		}
	}

	if len(specific) > 0 {
		return &robotsPolicy{rules: specific}
	}
	return &robotsPolicy{rules: wildcard}
}
