// Package middleware binds the admission service to HTTP routes.
package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/manenim/gateway-admission/pkg/admission"
)

// RateLimit enforces the named policy on every request passing through it.
//
// The identity key comes from the policy's Key function when set, otherwise
// from the client IP. Allowed requests continue with X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset headers attached; denied
// requests are rejected with 429, a Retry-After header and a JSON body
// carrying the decision metadata. An operation with no registered policy
// passes through untouched (rate limiting is opt-in per route).
func RateLimit(svc *admission.Service, policyName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		policy, err := svc.Policy(policyName)
		if err == nil && policy.Skip != nil && policy.Skip(c.Request) {
			c.Next()
			return
		}

		key := ""
		if err == nil && policy.Key != nil {
			key = policy.Key(c.Request)
		}
		if key == "" {
			key = ClientIP(c.Request)
		}
		if key == "" {
			// No usable identity; admission control cannot apply.
			c.Next()
			return
		}

		dec, err := svc.Check(c.Request.Context(), policyName, key)
		if admission.IsUnknownPolicy(err) {
			c.Next()
			return
		}
		if err != nil {
			// Check only errors on caller defects (empty key) or a dead
			// local path; neither should reject live traffic here.
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.FormatInt(dec.Limit, 10))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(dec.Remaining, 10))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(dec.ResetTime.Unix(), 10))

		if !dec.Allowed {
			c.Header("Retry-After", strconv.FormatInt(int64(dec.RetryAfter.Seconds()+0.5), 10))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":     "too many requests",
				"policy":    policyName,
				"remaining": dec.Remaining,
				"reset":     dec.ResetTime.Unix(),
				"blocked":   dec.Blocked,
			})
			return
		}
		c.Next()
	}
}

// HeaderKey returns a key strategy that identifies clients by a request
// header, e.g. an API key. Requests without the header fall back to the
// client IP.
func HeaderKey(name string) admission.KeyFunc {
	return func(r *http.Request) string {
		return r.Header.Get(name)
	}
}

// ClientIP extracts the client address, preferring the standard proxy
// headers over the socket address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ip := firstForwardedIP(xff); ip != "" {
			return ip
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if net.ParseIP(xri) != nil {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// firstForwardedIP returns the first valid address in an X-Forwarded-For
// list, which may contain several comma-separated hops.
func firstForwardedIP(xff string) string {
	first := xff
	if i := strings.IndexByte(xff, ','); i >= 0 {
		first = xff[:i]
	}
	first = strings.TrimSpace(first)
	if net.ParseIP(first) != nil {
		return first
	}
	return ""
}
