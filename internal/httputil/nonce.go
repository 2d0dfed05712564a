package httputil

import (
	"context"
	"crypto/rand"
)

type nonceKey struct{}

// NewNonce returns a fresh CSP nonce for one response.
func NewNonce() string {
	return rand.Text()
}

func WithNonce(ctx context.Context, nonce string) context.Context {
	return context.WithValue(ctx, nonceKey{}, nonce)
}

// NonceFromContext returns the nonce stamped by the security middleware, or
// "" outside of it.
func NonceFromContext(ctx context.Context) string {
	nonce, _ := ctx.Value(nonceKey{}).(string)
	return nonce
}
