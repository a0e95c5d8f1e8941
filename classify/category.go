package classify

import (
	"regexp"
	"strings"
)

// Category is a coarse bucket for a recorded failure.
type Category string

const (
	Network        Category = "network"
	Protocol       Category = "protocol"
	Server         Category = "server"
	RateLimit      Category = "rate_limit"
	Authentication Category = "authentication"
	Unknown        Category = "unknown"
)

// Categories returns every category, in the order Categorize checks them.
func Categories() []Category {
	return []Category{Network, Protocol, Authentication, RateLimit, Server, Unknown}
}

func (c Category) String() string {
	return string(c)
}

var (
	authCodePattern      = regexp.MustCompile(`\b(401|403)\b`) //nolint:gochecknoglobals
	rateLimitCodePattern = regexp.MustCompile(`\b429\b`)       //nolint:gochecknoglobals
	serverCodePattern    = regexp.MustCompile(`\b5\d\d\b`)     //nolint:gochecknoglobals
)

// Categorize assigns exactly one category to err. Checks run in a fixed
// order and look at the dynamic type names along the cause chain and at the
// message; the first hit wins:
//
//	network:        connection, timeout, network terms, or a transport error
//	protocol:       json, parse, decode, malformed, schema
//	authentication: 401, 403, unauthorized, authentication, or an "auth" type
//	rate_limit:     429, rate limit, throttle, or a "rate" type
//	server:         a 5xx code, or a "server" type
//
// Anything else, including nil, is unknown.
func Categorize(err error) Category {
	if err == nil {
		return Unknown
	}

	names := typeNames(err)
	msg := strings.ToLower(err.Error())
	status, hasStatus := statusOf(err)

	switch {
	case isNetwork(err) ||
		strings.Contains(names, "net.") ||
		containsAny(names+msg, "connection", "connect:", "timeout", "timed out", "network"):
		return Network
	case containsAny(names+msg, "json", "parse", "decode", "unmarshal", "malformed", "schema"):
		return Protocol
	case hasStatus && (status == 401 || status == 403),
		authCodePattern.MatchString(msg),
		containsAny(msg, "unauthorized", "authentication"),
		strings.Contains(names, "auth"):
		return Authentication
	case hasStatus && status == 429,
		rateLimitCodePattern.MatchString(msg),
		containsAny(msg, "rate limit", "rate_limit", "throttle"),
		strings.Contains(names, "rate"):
		return RateLimit
	case hasStatus && status >= 500,
		serverCodePattern.MatchString(msg),
		strings.Contains(names, "server"):
		return Server
	default:
		return Unknown
	}
}
