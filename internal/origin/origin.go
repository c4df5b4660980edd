// Package origin decides whether a browser Origin may use the websocket and
// ICE endpoints. The webapp is the expected caller, so the default policy is
// same host; deployments that serve the webapp elsewhere configure an
// explicit allowlist.
package origin

import (
	"net/url"
	"strconv"
	"strings"
)

// Normalize validates an Origin header and returns it in canonical
// scheme://host[:port] form, plus the host[:port] part for same-host
// comparison. Default ports are stripped. The opaque value "null" is
// returned as-is with an empty host.
func Normalize(header string) (normalized, host string, ok bool) {
	trimmed := strings.TrimSpace(header)
	if trimmed == "" {
		return "", "", false
	}
	if trimmed == "null" {
		return "null", "", true
	}

	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" || u.User != nil || u.RawQuery != "" || u.Fragment != "" {
		return "", "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", "", false
	}

	host, ok = canonicalHost(u.Host, scheme)
	if !ok {
		return "", "", false
	}
	return scheme + "://" + host, host, true
}

// Allowed reports whether the Origin may reach the given request host.
//
// A non-empty allowlist is authoritative: each entry is "*" or a normalized
// origin. With no allowlist the origin's host must equal the request's Host
// header. Scheme is not compared because a TLS-terminating proxy makes the
// request look like HTTP while the browser origin is HTTPS.
func Allowed(header, requestHost string, allowlist []string) bool {
	normalized, host, ok := Normalize(header)
	if !ok {
		return false
	}

	if len(allowlist) > 0 {
		for _, entry := range allowlist {
			if entry == "*" || entry == normalized {
				return true
			}
		}
		return false
	}

	// "null" never matches a host-based default policy.
	if host == "" {
		return false
	}
	scheme := "http"
	if strings.HasPrefix(normalized, "https://") {
		scheme = "https"
	}
	want, ok := canonicalHost(strings.ToLower(strings.TrimSpace(requestHost)), scheme)
	return ok && host == want
}

// canonicalHost lowercases host[:port], validates the port and drops it when
// it is the scheme's default.
func canonicalHost(authority, scheme string) (string, bool) {
	name, rawPort, ok := splitAuthority(authority)
	if !ok || name == "" {
		return "", false
	}
	name = strings.ToLower(name)

	var port uint64
	if rawPort != "" {
		n, err := strconv.ParseUint(rawPort, 10, 16)
		if err != nil || n == 0 {
			return "", false
		}
		port = n
	}
	if (scheme == "http" && port == 80) || (scheme == "https" && port == 443) {
		port = 0
	}

	host := name
	if strings.Contains(name, ":") {
		host = "[" + name + "]"
	}
	if port != 0 {
		host += ":" + strconv.FormatUint(port, 10)
	}
	return host, true
}

// splitAuthority splits host[:port], unbracketing IPv6 literals.
func splitAuthority(authority string) (name, port string, ok bool) {
	if authority == "" {
		return "", "", false
	}
	if strings.HasPrefix(authority, "[") {
		end := strings.IndexByte(authority, ']')
		if end < 0 {
			return "", "", false
		}
		name = authority[1:end]
		rest := authority[end+1:]
		if rest == "" {
			return name, "", true
		}
		if !strings.HasPrefix(rest, ":") || len(rest) == 1 {
			return "", "", false
		}
		return name, rest[1:], true
	}

	switch strings.Count(authority, ":") {
	case 0:
		return authority, "", true
	case 1:
		name, port, _ = strings.Cut(authority, ":")
		if name == "" || port == "" {
			return "", "", false
		}
		return name, port, true
	default:
		// Unbracketed IPv6 literals are not valid authority syntax.
		return "", "", false
	}
}
