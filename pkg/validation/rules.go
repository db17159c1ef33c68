package validation

import (
	"fmt"
	"strings"
)

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the address syntax and, when allowedDomains is not
// empty, that its domain is one of them.
func ValidateEmail(email string, allowedDomains []string) error {
	email = NormalizeEmail(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if err := validate.Var(email, "required,email"); err != nil {
		return fmt.Errorf("invalid email address: %s", email)
	}
	if len(allowedDomains) == 0 {
		return nil
	}
	domain := email[strings.LastIndexByte(email, '@')+1:]
	for _, allowed := range allowedDomains {
		if domain == strings.ToLower(allowed) {
			return nil
		}
	}
	return fmt.Errorf("email domain %s is not allowed", domain)
}

// RequireTrimmed trims each named value and reports the names left empty.
func RequireTrimmed(fields map[string]*string) map[string]string {
	errs := map[string]string{}
	for name, value := range fields {
		*value = strings.TrimSpace(*value)
		if *value == "" {
			errs[name] = "is required"
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

// UniqueIDs drops duplicate ids while keeping the first-seen order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// NormalizeCategory trims a category filter; an empty result means no filter.
func NormalizeCategory(category string) string {
	return strings.TrimSpace(category)
}
