package session

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/fieldsync/fieldsync/internal/crypto"
)

// Prompter asks the user for the passphrase. It may block on user input
// indefinitely; cancellation arrives through ctx or an error return.
type Prompter interface {
	PromptPassphrase(ctx context.Context) (string, error)
}

// PrompterFunc adapts a function to the Prompter interface.
type PrompterFunc func(ctx context.Context) (string, error)

func (f PrompterFunc) PromptPassphrase(ctx context.Context) (string, error) {
	return f(ctx)
}

// Service owns the in-memory passphrase for one application session.
// The passphrase is never written to the local store and never
// broadcast to other processes.
//
// Concurrent callers that need the passphrase while none is cached
// share a single pending prompt: the user is asked once, and every
// waiter receives that prompt's single outcome.
type Service struct {
	mu         sync.RWMutex
	passphrase string
	cached     bool

	prompter Prompter
	group    singleflight.Group
}

// New constructs the session service. It is intended to be created once
// per application session and passed by reference to consumers.
func New(prompter Prompter) *Service {
	return &Service{prompter: prompter}
}

// Passphrase returns the cached passphrase, prompting through the
// configured Prompter if none has been supplied yet. A cancelled or
// failed prompt rejects every concurrent waiter with ErrUnauthorized.
func (s *Service) Passphrase(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.cached {
		p := s.passphrase
		s.mu.RUnlock()
		return p, nil
	}
	s.mu.RUnlock()

	if s.prompter == nil {
		return "", crypto.ErrUnauthorized
	}

	// singleflight collapses concurrent prompts into one; all callers
	// block on the same in-flight result.
	value, err, _ := s.group.Do("prompt", func() (any, error) {
		// Another caller may have set the passphrase while we waited
		// for the flight slot.
		s.mu.RLock()
		cached := s.cached
		p := s.passphrase
		s.mu.RUnlock()
		if cached {
			return p, nil
		}

		entered, err := s.prompter.PromptPassphrase(ctx)
		if err != nil {
			return "", err
		}

		s.mu.Lock()
		s.passphrase = entered
		s.cached = true
		s.mu.Unlock()

		return entered, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", crypto.ErrUnauthorized, err)
	}

	return value.(string), nil
}

// Set stores the passphrase directly, bypassing the prompt.
func (s *Service) Set(passphrase string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passphrase = passphrase
	s.cached = true
}

// Has reports whether a passphrase is currently cached.
func (s *Service) Has() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cached
}

// Clear forgets the passphrase. The next Passphrase call prompts again.
func (s *Service) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passphrase = ""
	s.cached = false
}
