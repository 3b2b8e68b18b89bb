package common

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIP returns the caller address. chi's RealIP middleware already folds
// X-Forwarded-For and X-Real-IP into RemoteAddr; the headers are consulted
// directly for handlers mounted without it. Unparseable values yield "".
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	candidates := []string{r.RemoteAddr}
	if fwd, _, _ := strings.Cut(r.Header.Get("X-Forwarded-For"), ","); fwd != "" {
		candidates = []string{fwd, r.Header.Get("X-Real-IP"), r.RemoteAddr}
	} else if real := r.Header.Get("X-Real-IP"); real != "" {
		candidates = []string{real, r.RemoteAddr}
	}
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if host, _, err := net.SplitHostPort(c); err == nil {
			c = host
		}
		if addr, err := netip.ParseAddr(c); err == nil {
			return addr.Unmap().String()
		}
	}
	return ""
}
