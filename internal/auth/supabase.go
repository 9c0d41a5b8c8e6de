package auth

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	apperrors "github.com/julianstephens/habitual/internal/errors"
	"github.com/julianstephens/habitual/internal/keyring"
	"github.com/julianstephens/habitual/internal/logger"
	"github.com/julianstephens/habitual/internal/models"
	"github.com/julianstephens/habitual/internal/storage/supabase"
)

// SupabaseAuth signs in with GoTrue and keeps the session in the OS keyring
// so every CLI invocation and the daemon share it.
type SupabaseAuth struct {
	listeners
	client *supabase.Client
	now    func() time.Time
}

func NewSupabaseAuth(client *supabase.Client) *SupabaseAuth {
	return &SupabaseAuth{client: client, now: time.Now}
}

// Login signs in with email and password and stores the session.
func (a *SupabaseAuth) Login(ctx context.Context, email, password string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, apperrors.Validation("login", "email and password are required", nil)
	}

	session, err := a.client.SignInWithPassword(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("sign in failed: %w", err)
	}
	if session.User == nil {
		if session.User, err = a.client.GetUser(ctx, session.AccessToken); err != nil {
			return nil, fmt.Errorf("failed to load user: %w", err)
		}
	}
	if err := a.save(session); err != nil {
		return nil, err
	}

	a.client.SetAccessToken(session.AccessToken)
	logger.Info("Signed in", "user", session.User.ID)
	a.notify(session.User)
	return session.User, nil
}

// Register creates an account. When the project confirms accounts
// immediately the new session is stored and signedIn is true; otherwise
// the user has to confirm the address and then Login.
func (a *SupabaseAuth) Register(ctx context.Context, email, password string) (user *models.User, signedIn bool, err error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, false, apperrors.Validation("register", "email and password are required", nil)
	}

	user, session, err := a.client.SignUp(ctx, email, password)
	if err != nil {
		return nil, false, fmt.Errorf("registration failed: %w", err)
	}
	if session == nil {
		logger.Info("Account created, awaiting confirmation", "user", user.ID)
		return user, false, nil
	}

	if err := a.save(session); err != nil {
		return nil, false, err
	}
	a.client.SetAccessToken(session.AccessToken)
	logger.Info("Account created and signed in", "user", user.ID)
	a.notify(user)
	return user, true, nil
}

func (a *SupabaseAuth) save(session *supabase.Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	return keyring.SetSession(string(data))
}

func (a *SupabaseAuth) load() (*supabase.Session, error) {
	raw, err := keyring.GetSession()
	if stderrors.Is(err, keyring.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session supabase.Session
	if err := json.Unmarshal([]byte(raw), &session); err != nil {
		logger.Warn("Discarding unreadable stored session", "error", err)
		return nil, nil
	}
	return &session, nil
}

// CurrentUser returns the stored session's user, refreshing the access
// token when it has expired. An expired session that cannot be refreshed
// counts as signed out.
func (a *SupabaseAuth) CurrentUser(ctx context.Context) (*models.User, error) {
	session, err := a.load()
	if err != nil || session == nil {
		return nil, err
	}

	if session.Expired(a.now()) {
		if session.RefreshToken == "" {
			return nil, nil
		}
		fresh, err := a.client.RefreshSession(ctx, session.RefreshToken)
		if err != nil {
			logger.Warn("Session refresh failed", "error", err)
			return nil, nil
		}
		if fresh.User == nil {
			fresh.User = session.User
		}
		if err := a.save(fresh); err != nil {
			logger.Warn("Failed to store refreshed session", "error", err)
		}
		session = fresh
	}

	a.client.SetAccessToken(session.AccessToken)
	if session.User == nil {
		return a.client.GetUser(ctx, session.AccessToken)
	}
	return session.User, nil
}

// AccessToken returns the stored access token, or "" when signed out.
func (a *SupabaseAuth) AccessToken() string {
	session, err := a.load()
	if err != nil || session == nil {
		return ""
	}
	return session.AccessToken
}

// SignOut revokes the session server side when possible and forgets it.
func (a *SupabaseAuth) SignOut(ctx context.Context) error {
	session, err := a.load()
	if err != nil {
		return err
	}
	if session != nil && session.AccessToken != "" {
		if err := a.client.SignOut(ctx, session.AccessToken); err != nil {
			logger.Warn("Server sign out failed", "error", err)
		}
	}
	if err := keyring.DeleteSession(); err != nil && !stderrors.Is(err, keyring.ErrNotFound) {
		return err
	}
	a.client.SetAccessToken("")
	a.notify(nil)
	return nil
}

func (a *SupabaseAuth) OnAuthStateChange(fn func(*models.User)) func() {
	return a.add(fn)
}

var _ Provider = (*SupabaseAuth)(nil)
var _ Provider = (*Static)(nil)
