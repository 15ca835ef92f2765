// Package redact scrubs credentials and URL paths from log lines. Webhook
// sinks are configured with auth headers and tokenized URLs, and both end up
// in config dumps and delivery errors.
package redact

import (
	"fmt"
	"log"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var (
	authHeaderRe = regexp.MustCompile(`(?i)(authorization\s*[:=]\s*bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	bearerRe     = regexp.MustCompile(`(?i)(bearer\s+)([A-Za-z0-9._\-+/=]+)`)
	headerKeyRe  = regexp.MustCompile(`(?i)(x-api-key|x-webhook-secret|x-signature)\s*[:=]\s*([A-Za-z0-9._\-+/=]+)`)
	publicKeyRe  = regexp.MustCompile(`(?i)(public_key\s*[:=]\s*)([A-Za-z0-9._\-+/=]+)`)
	tokenishRe   = regexp.MustCompile(`(?i)(key|token|secret|password)\s*[:=]\s*([A-Za-z0-9._\-+/=]{6,})`)
	urlRe        = regexp.MustCompile(`https?://[^\s"'<>]+`)
)

// String redacts known secret patterns from free-form strings.
func String(s string) string {
	if s == "" {
		return s
	}

	out := s
	out = authHeaderRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = bearerRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = headerKeyRe.ReplaceAllString(out, "${1}=[REDACTED]")
	out = publicKeyRe.ReplaceAllString(out, "${1}[REDACTED]")
	out = tokenishRe.ReplaceAllStringFunc(out, func(m string) string {
		if strings.Contains(m, "[REDACTED]") {
			return m
		}
		parts := tokenishRe.FindStringSubmatch(m)
		if len(parts) < 3 {
			return m
		}
		return parts[1] + "=[REDACTED]"
	})
	out = urlRe.ReplaceAllStringFunc(out, redactURL)
	for strings.Contains(out, "[REDACTED][REDACTED]") {
		out = strings.ReplaceAll(out, "[REDACTED][REDACTED]", "[REDACTED]")
	}
	return out
}

// Sprintf formats like fmt.Sprintf and redacts the result.
func Sprintf(format string, args ...any) string {
	return String(fmt.Sprintf(format, args...))
}

// Logf prints a redacted log line.
func Logf(format string, args ...any) {
	log.Print(Sprintf(format, args...))
}

// redactURL keeps scheme, host and the last path element. Query strings and
// the rest of the path often carry tokens.
func redactURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	u, err := url.Parse(trimmed)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "[REDACTED_URL]"
	}

	if strings.HasSuffix(trimmed, "/") {
		return fmt.Sprintf("%s://%s/[REDACTED_PATH]", u.Scheme, u.Host)
	}
	base := path.Base(strings.TrimSuffix(u.Path, "/"))
	if base == "." || base == "/" || base == "" {
		return fmt.Sprintf("%s://%s", u.Scheme, u.Host)
	}
	return fmt.Sprintf("%s://%s/%s", u.Scheme, u.Host, base)
}
