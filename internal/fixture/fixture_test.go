package fixture

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fixedSource always returns the same index
type fixedSource int

func (f fixedSource) IntN(n int) int { return int(f) % n }

func TestRandomCharacters_LengthAndCharset(t *testing.T) {
	for _, n := range []int{0, 1, 5, 20, 257} {
		s := RandomCharacters(n)
		assert.Len(t, s, n)
		for _, c := range s {
			assert.Contains(t, Letters, string(c))
		}
	}
}

func TestRandomNumbers_LengthAndNoZero(t *testing.T) {
	for _, n := range []int{0, 1, 10, 16, 500} {
		s := RandomNumbers(n)
		assert.Len(t, s, n)
		assert.NotContains(t, s, "0")
		for _, c := range s {
			assert.Contains(t, Digits, string(c))
		}
	}
}

func TestRandomCharacters_NegativeLength(t *testing.T) {
	assert.Equal(t, "", RandomCharacters(-3))
	assert.Equal(t, "", RandomNumbers(-1))
}

func TestGenerator_ZeroIndices(t *testing.T) {
	g := New(fixedSource(0))

	assert.Equal(t, "aaaaa", g.RandomCharacters(5))
	assert.Equal(t, "111", g.RandomNumbers(3))
}

func TestGenerator_LastIndex(t *testing.T) {
	g := New(fixedSource(25))
	assert.Equal(t, "zz", g.RandomCharacters(2))
}

func TestGenerateNewUser_E2E(t *testing.T) {
	user := GenerateNewUser(E2E)

	assert.Len(t, user.Name, 10)
	assert.Len(t, user.Username, 20)
	assert.Equal(t, "verystrongpassword", user.Password)
	assert.Len(t, user.PhoneNumber, 16)
	assert.NotContains(t, user.PhoneNumber, "0")

	require.Equal(t, 1, strings.Count(user.Email, "@"))
	assert.True(t, strings.HasSuffix(user.Email, EmailDomain))
	assert.Len(t, user.Email, 10+len(EmailDomain))

	assert.Empty(t, user.FirstName)
	assert.Empty(t, user.LastName)
}

func TestGenerateNewUser_Load(t *testing.T) {
	user := GenerateNewUser(Load)

	assert.Len(t, user.Username, 10)
	assert.Equal(t, "password", user.Password)
	assert.True(t, strings.HasPrefix(user.PhoneNumber, "+62"))
	assert.Len(t, user.PhoneNumber, 13)
	assert.Len(t, user.FirstName, 10)
	assert.Len(t, user.LastName, 10)
}

func TestGenerateNewUser_AllFieldsNonEmpty(t *testing.T) {
	for _, profile := range []Profile{E2E, Load} {
		for i := 0; i < 50; i++ {
			user := GenerateNewUser(profile)
			assert.NotEmpty(t, user.Name, profile.Name)
			assert.NotEmpty(t, user.Email, profile.Name)
			assert.NotEmpty(t, user.Username, profile.Name)
			assert.NotEmpty(t, user.Password, profile.Name)
			assert.NotEmpty(t, user.PhoneNumber, profile.Name)
		}
	}
}

func TestNewSeeded_Reproducible(t *testing.T) {
	a := NewSeeded(42).GenerateNewUser(E2E)
	b := NewSeeded(42).GenerateNewUser(E2E)
	c := NewSeeded(43).GenerateNewUser(E2E)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a.Username, c.Username)
}

func TestProfileByName(t *testing.T) {
	p, ok := ProfileByName("LOAD")
	require.True(t, ok)
	assert.Equal(t, Load, p)

	_, ok = ProfileByName("unknown")
	assert.False(t, ok)
}
