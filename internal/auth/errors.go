package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/oauth2"

	"github.com/quartetops/quartet/pkg/models"
)

// Sentinel errors for the credential lifecycle. AuthorizationRequired is the
// expected first-use path, not a fault to log loudly.
var (
	// ErrAuthorizationRequired signals that no usable credential exists
	// and the user must complete an authorization flow.
	ErrAuthorizationRequired = errors.New("authorization required")

	// ErrNoAccessibleTenant is returned when the introspection endpoint
	// lists zero accessible sites. Fatal for the authorization attempt;
	// the user must grant access to at least one site and retry.
	ErrNoAccessibleTenant = errors.New("no accessible tenant for this authorization")

	// ErrTokenExpired signals an expired access token with no refresh
	// token to exchange. Recovered by re-authorization.
	ErrTokenExpired = errors.New("access token expired and no refresh token available")

	// ErrProviderUnavailable signals a transient failure talking to the
	// identity provider. The caller may retry; the core does not.
	ErrProviderUnavailable = errors.New("identity provider temporarily unavailable")
)

// classifyTokenError sorts a token-endpoint failure into transient versus
// definitive. Only a 4xx answer from the endpoint (other than 429) is a
// definitive rejection of the grant; outages, timeouts and 5xx/429 wrap
// ErrProviderUnavailable so the stored credential is kept.
func classifyTokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		status := 0
		if re.Response != nil {
			status = re.Response.StatusCode
		}
		if status >= 500 || status == http.StatusTooManyRequests {
			return fmt.Errorf("token endpoint returned %d: %w", status, ErrProviderUnavailable)
		}
		return err
	}
	// The endpoint never answered: network failure or client timeout.
	return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
}

// AuthorizationPending is the error returned by Store.Get while an
// authorization flow is in flight for a (provider, user) key. It carries
// the URL the user must visit; callers surface it and halt the current
// operation rather than blocking.
type AuthorizationPending struct {
	Provider models.Provider
	UserID   string
	// URL is the human-facing authorization URL.
	URL string
	// UserCode is the device-flow code the user enters, when the flow
	// uses one.
	UserCode string
	// ExpiresAt is when the pending flow lapses.
	ExpiresAt time.Time
}

func (p *AuthorizationPending) Error() string {
	if p.UserCode != "" {
		return fmt.Sprintf("authorization required for %s/%s: visit %s and enter code %s", p.Provider, p.UserID, p.URL, p.UserCode)
	}
	return fmt.Sprintf("authorization required for %s/%s: visit %s", p.Provider, p.UserID, p.URL)
}

// Is makes errors.Is(err, ErrAuthorizationRequired) hold for pending
// authorizations.
func (p *AuthorizationPending) Is(target error) bool {
	return target == ErrAuthorizationRequired
}
