package remote

import "context"

// TokenProvider supplies the bearer credential for cart API calls. Token
// issuance itself is external; the client only asks for the current token
// and, after a 401, for one refreshed token.
type TokenProvider interface {
	// Token returns the current bearer token.
	Token(ctx context.Context) (string, error)

	// Refresh obtains a fresh token after the current one was rejected.
	Refresh(ctx context.Context) (string, error)
}

// StaticTokenProvider returns a fixed token and cannot refresh it. Useful for
// tests and for CLI usage with a long-lived token.
type StaticTokenProvider struct {
	token string
}

func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

func (p *StaticTokenProvider) Token(context.Context) (string, error) {
	return p.token, nil
}

func (p *StaticTokenProvider) Refresh(context.Context) (string, error) {
	return p.token, nil
}
