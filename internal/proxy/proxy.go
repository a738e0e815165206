package proxy

import (
	"fmt"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
)

// Manager handles proxy selection for a run
type Manager struct {
	List []string
	rand *rand.Rand
}

// NewManager creates a new proxy manager over the candidate list. rng may
// be nil, in which case the global source is used.
func NewManager(list []string, rng *rand.Rand) *Manager {
	return &Manager{
		List: list,
		rand: rng,
	}
}

// Enabled reports whether any proxy is configured
func (m *Manager) Enabled() bool {
	return m != nil && len(m.List) > 0
}

// Pick returns one proxy URL from the list, or nil when none is configured
func (m *Manager) Pick() (*url.URL, error) {
	if !m.Enabled() {
		return nil, nil
	}

	proxyStr := m.List[0]
	if len(m.List) > 1 {
		proxyStr = m.List[m.intn(len(m.List))]
	}

	if !strings.Contains(proxyStr, "://") {
		proxyStr = "http://" + proxyStr
	}
	proxyURL, err := url.Parse(proxyStr)
	if err != nil {
		return nil, fmt.Errorf("parsing proxy %q: %w", proxyStr, err)
	}
	if proxyURL.Host == "" {
		return nil, fmt.Errorf("proxy %q has no host", proxyStr)
	}
	return proxyURL, nil
}

// ServerAddr renders u for the browser's proxy-server flag. Chrome does not
// accept credentials there, so they are stripped.
func ServerAddr(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// Redact renders u without its password
func Redact(u *url.URL) string {
	if u == nil {
		return ""
	}
	return u.Redacted()
}

// ApplyToTransport applies u to an HTTP transport
func ApplyToTransport(transport *http.Transport, u *url.URL) {
	if u != nil {
		transport.Proxy = http.ProxyURL(u)
	}
}

func (m *Manager) intn(n int) int {
	if m.rand != nil {
		return m.rand.Intn(n)
	}
	return rand.Intn(n)
}
