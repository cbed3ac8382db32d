package avatar

import (
	"context"

	"github.com/dkeye/Avatar/internal/config"
	"github.com/dkeye/Avatar/internal/core"
	"github.com/dkeye/Avatar/internal/domain"
)

// Authenticator exchanges the long-lived API key for a session token.
// It never retries.
type Authenticator struct {
	api core.StreamingAPI
}

func NewAuthenticator(api core.StreamingAPI) *Authenticator {
	return &Authenticator{api: api}
}

func (a *Authenticator) AcquireToken(ctx context.Context, credential string) (string, error) {
	if credential == "" || credential == config.PlaceholderAPIKey {
		return "", &domain.AuthError{Reason: domain.AuthMissingCredential, Err: domain.ErrInvalidInput}
	}
	token, err := a.api.CreateToken(ctx, credential)
	if err != nil {
		reason := domain.AuthUnavailable
		if domain.IsRemote(err) {
			reason = domain.AuthRemoteRejected
		}
		return "", &domain.AuthError{Reason: reason, Message: domain.RemoteMessage(err), Err: err}
	}
	if token == "" {
		return "", &domain.AuthError{Reason: domain.AuthRemoteRejected}
	}
	return token, nil
}
