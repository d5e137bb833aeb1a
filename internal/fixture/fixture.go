// Package fixture generates synthetic registration data for scenarios.
//
// Values are sampled from math/rand and are test fixtures only; they
// must never be used where unpredictability matters.
package fixture

import (
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/studiowebux/authload/internal/types"
)

const (
	// Letters is the charset of RandomCharacters
	Letters = "abcdefghijklmnopqrstuvwxyz"
	// Digits is the charset of RandomNumbers; zero is excluded
	Digits = "123456789"
	// EmailDomain is appended to every generated mailbox
	EmailDomain = "@gmail.com"

	nameLength    = 10
	mailboxLength = 10
)

// Source yields uniformly distributed integers in [0, n)
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// Profile describes how a caller shapes its users.
// The e2e and load scenarios register users differently.
type Profile struct {
	Name           string
	UsernameLength int
	Password       string
	PhonePrefix    string
	PhoneDigits    int
	SplitName      bool // also fill firstName/lastName
}

var (
	// E2E is the signup/login/refresh profile
	E2E = Profile{
		Name:           "e2e",
		UsernameLength: 20,
		Password:       "verystrongpassword",
		PhoneDigits:    16,
	}

	// Load is the setup+iteration profile
	Load = Profile{
		Name:           "load",
		UsernameLength: 10,
		Password:       "password",
		PhonePrefix:    "+62",
		PhoneDigits:    10,
		SplitName:      true,
	}
)

// ProfileByName resolves "e2e" or "load"
func ProfileByName(name string) (Profile, bool) {
	switch strings.ToLower(name) {
	case E2E.Name:
		return E2E, true
	case Load.Name:
		return Load, true
	}
	return Profile{}, false
}

// Generator samples fixture values from a Source.
// It is safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	src Source
}

// New creates a Generator over src. A nil src uses the process-wide
// random source.
func New(src Source) *Generator {
	if src == nil {
		src = globalSource{}
	}
	return &Generator{src: src}
}

// NewSeeded creates a Generator with a reproducible sequence
func NewSeeded(seed uint64) *Generator {
	return New(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

var defaultGenerator = New(nil)

// RandomCharacters returns n lowercase letters from the default generator
func RandomCharacters(n int) string {
	return defaultGenerator.RandomCharacters(n)
}

// RandomNumbers returns n digits in 1-9 from the default generator
func RandomNumbers(n int) string {
	return defaultGenerator.RandomNumbers(n)
}

// GenerateNewUser builds a user for profile from the default generator
func GenerateNewUser(profile Profile) types.SyntheticUser {
	return defaultGenerator.GenerateNewUser(profile)
}

// RandomCharacters returns n letters drawn independently from Letters
func (g *Generator) RandomCharacters(n int) string {
	return g.sample(Letters, n)
}

// RandomNumbers returns n digits drawn independently from Digits
func (g *Generator) RandomNumbers(n int) string {
	return g.sample(Digits, n)
}

// Email returns a fresh address on EmailDomain
func (g *Generator) Email() string {
	return g.RandomCharacters(mailboxLength) + EmailDomain
}

// GenerateNewUser composes a complete registration payload
func (g *Generator) GenerateNewUser(profile Profile) types.SyntheticUser {
	user := types.SyntheticUser{
		Name:        g.RandomCharacters(nameLength),
		Email:       g.Email(),
		Username:    g.RandomCharacters(profile.UsernameLength),
		Password:    profile.Password,
		PhoneNumber: profile.PhonePrefix + g.RandomNumbers(profile.PhoneDigits),
	}
	if profile.SplitName {
		user.FirstName = g.RandomCharacters(nameLength)
		user.LastName = g.RandomCharacters(nameLength)
	}
	return user
}

func (g *Generator) sample(charset string, n int) string {
	if n <= 0 {
		return ""
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(charset[g.src.IntN(len(charset))])
	}
	return b.String()
}
