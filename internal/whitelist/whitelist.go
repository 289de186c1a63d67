package whitelist

import (
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

// Checker decides whether an address belongs to one of a set of domains
type Checker struct {
	domains map[string]struct{}
	logger  *zap.Logger
}

// NewChecker creates a checker for the given domains. Blank entries are ignored.
func NewChecker(domains []string, logger *zap.Logger) *Checker {
	normalized := make(map[string]struct{}, len(domains))
	for _, domain := range domains {
		domain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), "@")
		if domain != "" {
			normalized[domain] = struct{}{}
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized domain checker", zap.Int("domains", len(normalized)))
	}

	return &Checker{domains: normalized, logger: logger}
}

// Empty reports whether no domains are configured
func (c *Checker) Empty() bool {
	return len(c.domains) == 0
}

// Contains reports whether the address's domain is listed
func (c *Checker) Contains(address string) bool {
	domain := DomainOf(address)
	if domain == "" {
		return false
	}
	_, ok := c.domains[domain]
	if ok && c.logger != nil {
		c.logger.Debug("Domain matched", zap.String("domain", domain), zap.String("address", address))
	}
	return ok
}

// Allows is Contains, except that an empty checker allows every address
func (c *Checker) Allows(address string) bool {
	return c.Empty() || c.Contains(address)
}

// DomainOf returns the lowercased domain of an address, or "" when it has none.
// Display-name forms such as "Bob <bob@example.com>" are accepted.
func DomainOf(address string) string {
	address = strings.TrimSpace(address)
	if parsed, err := mail.ParseAddress(address); err == nil {
		address = parsed.Address
	}
	at := strings.LastIndex(address, "@")
	if at < 0 || at == len(address)-1 {
		return ""
	}
	return strings.ToLower(strings.Trim(address[at+1:], "<> "))
}
