package supabase

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/julianstephens/habitual/internal/models"
)

// Session is a GoTrue session as returned by the token endpoint.
type Session struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	ExpiresIn    int          `json:"expires_in"`
	ExpiresAt    int64        `json:"expires_at,omitempty"`
	RefreshToken string       `json:"refresh_token"`
	User         *models.User `json:"user,omitempty"`
}

// Expired reports whether the access token is past its expiry at now,
// with a minute of slack.
func (s Session) Expired(now time.Time) bool {
	if s.ExpiresAt == 0 {
		return false
	}
	return now.Add(time.Minute).Unix() >= s.ExpiresAt
}

func (c *Client) token(ctx context.Context, grant string, body map[string]string) (*Session, error) {
	q := url.Values{}
	q.Set("grant_type", grant)
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/token",
		query:  q,
		body:   body,
		token:  c.apiKey,
	})
	if err != nil {
		return nil, err
	}

	var session Session
	if err := resp.decode(&session); err != nil {
		return nil, err
	}
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}
	return &session, nil
}

// SignInWithPassword authenticates a user with email and password.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	return c.token(ctx, "password", map[string]string{"email": email, "password": password})
}

// SignUp registers a new account. The returned session is nil when the
// project requires the email address to be confirmed before signing in.
func (c *Client) SignUp(ctx context.Context, email, password string) (*models.User, *Session, error) {
	resp, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/auth/v1/signup",
		body:   map[string]string{"email": email, "password": password},
		token:  c.apiKey,
	})
	if err != nil {
		return nil, nil, err
	}

	// With confirmation enabled GoTrue answers with the bare user object.
	var body struct {
		Session
		ID    string `json:"id"`
		Email string `json:"email"`
	}
	if err := resp.decode(&body); err != nil {
		return nil, nil, err
	}

	if body.AccessToken == "" {
		return &models.User{ID: body.ID, Email: body.Email}, nil, nil
	}
	session := body.Session
	if session.ExpiresAt == 0 && session.ExpiresIn > 0 {
		session.ExpiresAt = time.Now().Add(time.Duration(session.ExpiresIn) * time.Second).Unix()
	}
	user := session.User
	if user == nil {
		user = &models.User{ID: body.ID, Email: body.Email}
		session.User = user
	}
	return user, &session, nil
}

func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*Session, error) {
	return c.token(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
}

// GetUser resolves the user behind accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*models.User, error) {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: "/auth/v1/user", token: accessToken})
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := resp.decode(&user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	_, err := c.do(ctx, request{method: http.MethodPost, path: "/auth/v1/logout", token: accessToken})
	return err
}
