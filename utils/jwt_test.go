package utils

import (
	"testing"

	"github.com/Captain-Subtext/level5-courseware-sub000/models"

	"github.com/stretchr/testify/assert"
)

func TestGenerateAndDecodeJWT(t *testing.T) {
	t.Setenv("JWT_SECRET", "test_secret")

	user := models.User{
		ID:   "2e9b1c1e-5c6f-4a6e-8d35-0f4c1d2f9ab1",
		Role: models.AdminRole,
	}

	token, err := GenerateJWT(user, 24)
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	claims, err := DecodeJWT(token)
	assert.NoError(t, err)
	assert.Equal(t, user.ID, claims["user_id"])
	assert.Equal(t, string(models.AdminRole), claims["role"])
}

func TestDecodeJWT_WrongSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "test_secret")

	token, err := GenerateJWT(models.User{ID: "u1"}, 24)
	assert.NoError(t, err)

	t.Setenv("JWT_SECRET", "another_secret")

	_, err = DecodeJWT(token)
	assert.Error(t, err)
}

func TestDecodeJWT_Garbage(t *testing.T) {
	t.Setenv("JWT_SECRET", "test_secret")

	_, err := DecodeJWT("not.a.token")
	assert.Error(t, err)
}
