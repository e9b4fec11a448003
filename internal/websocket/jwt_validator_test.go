package websocket

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mockPersonLookup is a test double for PersonLookup.
type mockPersonLookup struct {
	personID string
	err      error
}

func (m *mockPersonLookup) GetPersonByAuth0ID(auth0ID string) (personID string, err error) {
	return m.personID, m.err
}

func TestPersonLookup_Interface(t *testing.T) {
	var _ PersonLookup = (*mockPersonLookup)(nil)
}

func TestAuth0JWTValidator_ValidateToken_PersonNotFound(t *testing.T) {
	t.Run("ErrPersonNotFound is returned correctly", func(t *testing.T) {
		assert.Equal(t, "person not found", ErrPersonNotFound.Error())
	})

	t.Run("ErrInvalidToken is returned correctly", func(t *testing.T) {
		assert.Equal(t, "invalid token", ErrInvalidToken.Error())
	})
}

func TestCustomClaims_Validate(t *testing.T) {
	claims := &CustomClaims{}
	err := claims.Validate(nil)
	assert.NoError(t, err, "CustomClaims.Validate should return nil")
}

func TestNewAuth0JWTValidator_InvalidDomain(t *testing.T) {
	lookup := &mockPersonLookup{personID: "person-1"}

	validator, err := NewAuth0JWTValidator("", "audience", lookup)
	assert.NoError(t, err)
	assert.NotNil(t, validator)
}

func TestNewAuth0JWTValidator_Success(t *testing.T) {
	lookup := &mockPersonLookup{personID: "person-1"}

	validator, err := NewAuth0JWTValidator("test.auth0.com", "https://api.meridianledger.dev", lookup)
	assert.NoError(t, err)
	assert.NotNil(t, validator)
	assert.NotNil(t, validator.validator)
	assert.Equal(t, lookup, validator.personLookup)
}

func TestAuth0JWTValidator_ValidateToken_InvalidJWT(t *testing.T) {
	lookup := &mockPersonLookup{personID: "person-1"}

	validator, err := NewAuth0JWTValidator("test.auth0.com", "https://api.meridianledger.dev", lookup)
	assert.NoError(t, err)

	personID, err := validator.ValidateToken("invalid-token")
	assert.Error(t, err)
	assert.Equal(t, "", personID)
	assert.True(t, errors.Is(err, ErrInvalidToken))
}
