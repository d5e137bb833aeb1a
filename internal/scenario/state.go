package scenario

import (
	"errors"
	"fmt"
)

var (
	// ErrStateNotSet is returned when a step reads a value no earlier step wrote
	ErrStateNotSet = errors.New("scenario state not set")

	// ErrSetupFailed aborts a run before any iteration starts
	ErrSetupFailed = errors.New("setup failed")
)

// Credentials is the login pair a signup step stores
type Credentials struct {
	Username string
	Password string
}

// Tokens is the token pair a login or refresh step stores
type Tokens struct {
	AccessToken  string
	RefreshToken string
}

// State carries values between the steps of one iteration of one
// virtual user. It is never shared.
type State struct {
	credentials *Credentials
	tokens      *Tokens
}

// SetCredentials stores the signed-up user's credentials
func (s *State) SetCredentials(c Credentials) {
	s.credentials = &c
}

// Credentials returns the stored credentials or ErrStateNotSet
func (s *State) Credentials() (Credentials, error) {
	if s.credentials == nil {
		return Credentials{}, fmt.Errorf("credentials: %w", ErrStateNotSet)
	}
	return *s.credentials, nil
}

// SetTokens overwrites the stored token pair
func (s *State) SetTokens(t Tokens) {
	s.tokens = &t
}

// Tokens returns the stored token pair or ErrStateNotSet
func (s *State) Tokens() (Tokens, error) {
	if s.tokens == nil {
		return Tokens{}, fmt.Errorf("tokens: %w", ErrStateNotSet)
	}
	return *s.tokens, nil
}
