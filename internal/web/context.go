package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/bulkimport/internal/core"
)

// WithRequestMetadata adds IP and User-Agent to context so jobs record who
// submitted them.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	ctx = core.ContextWithIPAddress(ctx, clientIP(r))
	ctx = core.ContextWithUserAgent(ctx, r.UserAgent())
	return ctx
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already replaced with the forwarded client address when appropriate.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
