// Package auth answers "who is signed in on this device".
package auth

import (
	"context"
	"sync"

	"github.com/julianstephens/habitual/internal/models"
)

// LocalUserID owns habits when running against a backend without accounts.
const LocalUserID = "local"

// Provider reports the signed-in user. CurrentUser returns (nil, nil)
// when nobody is signed in.
type Provider interface {
	CurrentUser(ctx context.Context) (*models.User, error)
	// OnAuthStateChange registers fn for sign-in and sign-out; the
	// returned func removes it.
	OnAuthStateChange(fn func(user *models.User)) (unsubscribe func())
}

type listeners struct {
	mu   sync.Mutex
	next int
	fns  map[int]func(*models.User)
}

func (l *listeners) add(fn func(*models.User)) func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.fns == nil {
		l.fns = make(map[int]func(*models.User))
	}
	id := l.next
	l.next++
	l.fns[id] = fn
	return func() {
		l.mu.Lock()
		delete(l.fns, id)
		l.mu.Unlock()
	}
}

func (l *listeners) notify(user *models.User) {
	l.mu.Lock()
	fns := make([]func(*models.User), 0, len(l.fns))
	for _, fn := range l.fns {
		fns = append(fns, fn)
	}
	l.mu.Unlock()
	for _, fn := range fns {
		fn(user)
	}
}

// Static is a fixed identity, used for the local backends and in tests.
type Static struct {
	listeners
	mu   sync.RWMutex
	user *models.User
}

func NewStatic(user *models.User) *Static {
	return &Static{user: user}
}

// NewLocal returns the single-user identity for backends without accounts.
func NewLocal() *Static {
	return NewStatic(&models.User{ID: LocalUserID})
}

func (s *Static) CurrentUser(context.Context) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil, nil
	}
	u := *s.user
	return &u, nil
}

// SetUser switches identity and fires listeners. nil signs out.
func (s *Static) SetUser(user *models.User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
	s.notify(user)
}

func (s *Static) OnAuthStateChange(fn func(*models.User)) func() {
	return s.add(fn)
}
