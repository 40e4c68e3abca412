package validate

import (
	"fmt"
	"regexp"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?$`)

var reservedSubdomains = map[string]bool{
	"www": true, "api": true, "admin": true, "dashboard": true,
	"deploy": true, "git": true, "db": true, "mail": true,
	"staging": true, "dev": true,
}

// Subdomain reports whether s is an acceptable project subdomain: it must
// match subdomainPattern and must not be in the reserved set (spec §3, §8
// invariant 7).
func Subdomain(s string) bool {
	if !subdomainPattern.MatchString(s) {
		return false
	}
	return !reservedSubdomains[s]
}

// SubdomainError validates s and returns a descriptive error, or nil if s is
// acceptable.
func SubdomainError(s string) error {
	if !subdomainPattern.MatchString(s) {
		return fmt.Errorf("subdomain %q does not match the required pattern", s)
	}
	if reservedSubdomains[s] {
		return fmt.Errorf("subdomain %q is reserved", s)
	}
	return nil
}
