package util

import (
	"net/mail"
	"strings"
)

// NormalizeSender returns the lowercased address of a From value with any
// +tag removed from the local part, or "" when no address can be parsed.
// Dots in the local part are kept.
func NormalizeSender(from string) string {
	addr := parseFirstAddress(from)
	if addr == "" {
		return ""
	}
	email := strings.ToLower(addr)
	at := strings.LastIndexByte(email, '@')
	if at <= 0 {
		return email
	}
	local, domain := email[:at], email[at+1:]
	if plus := strings.IndexByte(local, '+'); plus > -1 {
		local = local[:plus]
	}
	return local + "@" + domain
}

// SenderDomain returns the domain of a normalized address, including the
// leading "@", or "" when there is none.
func SenderDomain(normalized string) string {
	at := strings.LastIndexByte(normalized, '@')
	if at < 0 || at == len(normalized)-1 {
		return ""
	}
	return normalized[at:]
}

// DisplayName picks a short human name for a From value:
// "Twitter <notify@twitter.com>" gives "Twitter", a bare
// "jane.doe@x.com" gives "Jane Doe".
func DisplayName(from string) string {
	if a, err := mail.ParseAddress(from); err == nil && a.Name != "" {
		return a.Name
	}
	if idx := strings.Index(from, "<"); idx > 0 {
		if name := strings.Trim(strings.TrimSpace(from[:idx]), `"'`); name != "" {
			return name
		}
	}
	normalized := NormalizeSender(from)
	at := strings.IndexByte(normalized, '@')
	if at <= 0 {
		if strings.TrimSpace(from) == "" {
			return "Unknown"
		}
		return strings.TrimSpace(from)
	}
	parts := strings.Split(normalized[:at], ".")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}

func parseFirstAddress(from string) string {
	from = strings.TrimSpace(from)
	if from == "" {
		return ""
	}
	if a, err := mail.ParseAddress(from); err == nil {
		return strings.TrimSpace(a.Address)
	}
	// Lists and broken headers: take the first entry that parses.
	for _, p := range strings.Split(from, ",") {
		if a, err := mail.ParseAddress(strings.TrimSpace(p)); err == nil {
			return strings.TrimSpace(a.Address)
		}
	}
	return ""
}
