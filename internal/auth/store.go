package auth

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quartetops/quartet/internal/state"
	"github.com/quartetops/quartet/pkg/models"
)

// credKey is the unique (provider, user) key for stored credentials.
type credKey struct {
	provider models.Provider
	userID   string
}

func (k credKey) String() string {
	return string(k.provider) + "/" + k.userID
}

// Store is the process-wide credential store. It caches credentials in
// memory over the sqlite database (and optionally the OS keychain for
// token material), and serializes authorization and refresh so at most one
// flight is active per (provider, user) key.
type Store struct {
	db       *state.DB
	secrets  SecretBackend
	authWait time.Duration
	now      func() time.Time

	mu        sync.RWMutex
	providers map[models.Provider]Provider
	cache     map[credKey]*models.UserCredential
	pending   map[credKey]*AuthorizationPending

	group singleflight.Group
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSecretBackend stores token material in the given backend instead of
// the sqlite database.
func WithSecretBackend(sb SecretBackend) StoreOption {
	return func(s *Store) { s.secrets = sb }
}

// WithAuthorizationWait bounds how long a background authorization flow is
// kept alive waiting for the user.
func WithAuthorizationWait(d time.Duration) StoreOption {
	return func(s *Store) { s.authWait = d }
}

// withClock overrides the time source (tests).
func withClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore creates a credential store over the given database.
func NewStore(db *state.DB, opts ...StoreOption) *Store {
	s := &Store{
		db:        db,
		authWait:  10 * time.Minute,
		now:       time.Now,
		providers: make(map[models.Provider]Provider),
		cache:     make(map[credKey]*models.UserCredential),
		pending:   make(map[credKey]*AuthorizationPending),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds an auth provider to the store.
func (s *Store) Register(p Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.providers[p.Name()] = p
}

// Provider returns the registered auth provider for a name.
func (s *Store) Provider(name models.Provider) (Provider, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.providers[name]
	if !ok {
		return nil, fmt.Errorf("no auth provider registered for %q", name)
	}
	return p, nil
}

// Get returns a usable credential for the (provider, user) key.
//
// When no credential is cached it starts an authorization flow and returns
// an *AuthorizationPending error carrying the URL the user must visit;
// repeated calls while the flow is in flight return the same pending URL.
// Expired credentials are refreshed transparently when a refresh token
// exists; otherwise they fall back to re-authorization.
func (s *Store) Get(ctx context.Context, provider models.Provider, userID string) (*models.UserCredential, error) {
	// Tokens are never readable by provider alone.
	if userID == "" {
		return nil, fmt.Errorf("get credential for %s: user id is required", provider)
	}

	p, err := s.Provider(provider)
	if err != nil {
		return nil, err
	}
	k := credKey{provider: provider, userID: userID}

	cred, err := s.load(k)
	if err != nil {
		return nil, err
	}

	if cred != nil && !cred.Expired(s.now()) {
		return cred.Clone(), nil
	}

	if cred != nil && cred.RefreshToken != "" {
		refreshed, err := s.refresh(ctx, p, k)
		if err == nil {
			return refreshed, nil
		}
		if errors.Is(err, ErrProviderUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			// Transient: the caller retries; the credential stays put.
			return nil, err
		}
		// The provider rejected the refresh token; re-authorize.
		log.Printf("auth: refresh rejected for %s, re-authorizing: %v", k, err)
		if err := s.Invalidate(provider, userID); err != nil {
			return nil, err
		}
	}

	return nil, s.beginAuthorization(ctx, p, k)
}

// refresh serializes token refresh per key: concurrent callers share one
// flight instead of racing exchanges that would invalidate each other's
// freshly issued token.
func (s *Store) refresh(ctx context.Context, p Provider, k credKey) (*models.UserCredential, error) {
	v, err, _ := s.group.Do("refresh:"+k.String(), func() (any, error) {
		cur, err := s.load(k)
		if err != nil {
			return nil, err
		}
		if cur == nil {
			return nil, ErrTokenExpired
		}
		// Another flight may have refreshed while we waited.
		if !cur.Expired(s.now()) {
			return cur.Clone(), nil
		}

		next, err := p.Refresh(ctx, cur.Clone())
		if err != nil {
			return nil, err
		}
		// Derived metadata survives a refresh.
		if next.Metadata == nil {
			next.Metadata = cur.Metadata
		}
		if err := s.Put(next); err != nil {
			return nil, err
		}
		return next.Clone(), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.UserCredential), nil
}

// beginAuthorization starts at most one authorization flow per key and
// returns the pending-authorization error for it.
func (s *Store) beginAuthorization(ctx context.Context, p Provider, k credKey) error {
	s.mu.RLock()
	pend := s.pending[k]
	s.mu.RUnlock()
	if pend != nil && (pend.ExpiresAt.IsZero() || s.now().Before(pend.ExpiresAt)) {
		return pend
	}

	v, err, _ := s.group.Do("authorize:"+k.String(), func() (any, error) {
		s.mu.RLock()
		existing := s.pending[k]
		s.mu.RUnlock()
		if existing != nil && (existing.ExpiresAt.IsZero() || s.now().Before(existing.ExpiresAt)) {
			return existing, nil
		}

		req, err := p.Authorize(ctx, k.userID)
		if err != nil {
			return nil, err
		}

		pend := &AuthorizationPending{
			Provider:  k.provider,
			UserID:    k.userID,
			URL:       req.URL,
			UserCode:  req.UserCode,
			ExpiresAt: req.ExpiresAt,
		}
		s.mu.Lock()
		s.pending[k] = pend
		s.mu.Unlock()

		go s.finishAuthorization(p, k, req)
		return pend, nil
	})
	if err != nil {
		return fmt.Errorf("start authorization for %s: %w", k, err)
	}
	return v.(*AuthorizationPending)
}

// finishAuthorization waits in the background for the user to complete the
// flow, then runs the provider's resolution step and persists the result.
// Nothing is persisted when resolution fails.
func (s *Store) finishAuthorization(p Provider, k credKey, req *AuthorizationRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), s.authWait)
	defer cancel()
	defer func() {
		s.mu.Lock()
		delete(s.pending, k)
		s.mu.Unlock()
	}()

	tok, err := req.Token(ctx)
	if err != nil {
		log.Printf("auth: authorization for %s not completed: %v", k, err)
		return
	}

	cred, err := p.Complete(ctx, k.userID, tok)
	if err != nil {
		log.Printf("auth: completing authorization for %s: %v", k, err)
		return
	}

	if err := s.Put(cred); err != nil {
		log.Printf("auth: storing credential for %s: %v", k, err)
	}
}

// BeginAuthorization starts an authorization flow directly, for the auth
// CLI command. The flow is registered so concurrent Get calls surface the
// same URL instead of starting a second flow.
func (s *Store) BeginAuthorization(ctx context.Context, provider models.Provider, userID string) (*AuthorizationRequest, error) {
	if userID == "" {
		return nil, fmt.Errorf("begin authorization for %s: user id is required", provider)
	}
	p, err := s.Provider(provider)
	if err != nil {
		return nil, err
	}

	req, err := p.Authorize(ctx, userID)
	if err != nil {
		return nil, err
	}

	k := credKey{provider: provider, userID: userID}
	s.mu.Lock()
	s.pending[k] = &AuthorizationPending{
		Provider:  provider,
		UserID:    userID,
		URL:       req.URL,
		UserCode:  req.UserCode,
		ExpiresAt: req.ExpiresAt,
	}
	s.mu.Unlock()
	return req, nil
}

// FinishAuthorization blocks until the flow completes, runs the provider's
// resolution step and persists the credential.
func (s *Store) FinishAuthorization(ctx context.Context, req *AuthorizationRequest) (*models.UserCredential, error) {
	k := credKey{provider: req.Provider, userID: req.UserID}
	defer func() {
		s.mu.Lock()
		delete(s.pending, k)
		s.mu.Unlock()
	}()

	p, err := s.Provider(req.Provider)
	if err != nil {
		return nil, err
	}

	tok, err := req.Token(ctx)
	if err != nil {
		return nil, err
	}

	cred, err := p.Complete(ctx, req.UserID, tok)
	if err != nil {
		return nil, err
	}

	if err := s.Put(cred); err != nil {
		return nil, err
	}
	return cred.Clone(), nil
}

// Put upserts a credential for its (provider, user) key. The write replaces
// any prior value wholesale, including derived metadata, so a fresh token
// without metadata forces re-resolution rather than reusing a stale cloud
// id.
func (s *Store) Put(cred *models.UserCredential) error {
	if !cred.Provider.Valid() {
		return fmt.Errorf("put credential: invalid provider %q", cred.Provider)
	}
	if cred.UserID == "" {
		return fmt.Errorf("put credential for %s: user id is required", cred.Provider)
	}

	stored := cred.Clone()
	stored.UpdatedAt = s.now()

	inKeyring := s.secrets != nil
	if inKeyring {
		secret, err := encodeTokenSecret(stored)
		if err != nil {
			return err
		}
		if err := s.secrets.Set(stored.Key(), secret); err != nil {
			return err
		}
	}

	if err := s.db.PutCredential(stored, inKeyring); err != nil {
		return err
	}

	k := credKey{provider: stored.Provider, userID: stored.UserID}
	s.mu.Lock()
	s.cache[k] = stored
	s.mu.Unlock()
	return nil
}

// Invalidate removes the credential for a key, forcing re-authorization on
// the next access. Used when a downstream API answers 401/403.
func (s *Store) Invalidate(provider models.Provider, userID string) error {
	if userID == "" {
		return fmt.Errorf("invalidate credential for %s: user id is required", provider)
	}
	k := credKey{provider: provider, userID: userID}

	s.mu.Lock()
	delete(s.cache, k)
	s.mu.Unlock()

	if s.secrets != nil {
		if err := s.secrets.Delete(k.String()); err != nil {
			return err
		}
	}
	return s.db.DeleteCredential(provider, userID)
}

// List returns a token-free view of all stored credentials.
func (s *Store) List() ([]state.CredentialInfo, error) {
	return s.db.ListCredentials()
}

// load returns the cached credential for a key, falling back to the
// database (and secret backend) on a cache miss.
func (s *Store) load(k credKey) (*models.UserCredential, error) {
	s.mu.RLock()
	cached := s.cache[k]
	s.mu.RUnlock()
	if cached != nil {
		return cached, nil
	}

	cred, inKeyring, err := s.db.GetCredential(k.provider, k.userID)
	if err != nil || cred == nil {
		return nil, err
	}

	if inKeyring {
		if s.secrets == nil {
			// Token material is unreachable without the backend that
			// stored it; treat as absent and re-authorize.
			return nil, nil
		}
		secret, err := s.secrets.Get(cred.Key())
		if err != nil {
			return nil, err
		}
		if secret == "" {
			return nil, nil
		}
		if err := decodeTokenSecret(secret, cred); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	s.cache[k] = cred
	s.mu.Unlock()
	return cred, nil
}
