package zuauth

import "context"

// origin is what the HTTP layer knows about the caller. It rides on the
// request context so Engine methods keep a transport-free signature.
type origin struct {
	ip        string
	userAgent string
}

type originKey struct{}

func originOf(ctx context.Context) origin {
	if ctx == nil {
		return origin{}
	}
	o, _ := ctx.Value(originKey{}).(origin)
	return o
}

// WithClientIP records the caller's address on ctx. Nonce and
// authentication throttles are keyed on it and audit events carry it.
func WithClientIP(ctx context.Context, ip string) context.Context {
	o := originOf(ctx)
	o.ip = ip
	return context.WithValue(ctx, originKey{}, o)
}

// WithUserAgent records the User-Agent header on ctx for audit events.
func WithUserAgent(ctx context.Context, userAgent string) context.Context {
	o := originOf(ctx)
	o.userAgent = userAgent
	return context.WithValue(ctx, originKey{}, o)
}

func clientIPFromContext(ctx context.Context) string { return originOf(ctx).ip }

func userAgentFromContext(ctx context.Context) string { return originOf(ctx).userAgent }
