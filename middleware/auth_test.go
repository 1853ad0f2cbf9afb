package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Captain-Subtext/level5-courseware-sub000/models"
	"github.com/Captain-Subtext/level5-courseware-sub000/testutils"
	"github.com/Captain-Subtext/level5-courseware-sub000/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func protectedRouter(mw gin.HandlerFunc) *gin.Engine {
	r := testutils.SetupTestRouter()
	r.GET("/protected", mw, func(c *gin.Context) {
		userID, _ := c.Get("user_id")
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return r
}

func requestWithToken(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestJWTAuth_ValidToken(t *testing.T) {
	testutils.InitTestMain()
	t.Setenv("JWT_SECRET", "test_secret")

	token, err := utils.GenerateJWT(models.User{ID: "u1", Role: models.UserRole}, 1)
	assert.NoError(t, err)

	resp := requestWithToken(protectedRouter(JWTAuth()), token)

	assert.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), `"u1"`)
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	testutils.InitTestMain()
	t.Setenv("JWT_SECRET", "test_secret")

	resp := requestWithToken(protectedRouter(JWTAuth()), "")

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestJWTAuth_BadToken(t *testing.T) {
	testutils.InitTestMain()
	t.Setenv("JWT_SECRET", "test_secret")

	resp := requestWithToken(protectedRouter(JWTAuth()), "not.a.token")

	assert.Equal(t, http.StatusUnauthorized, resp.Code)
}

func TestAdminAuth_AdminAllowed(t *testing.T) {
	testutils.InitTestMain()
	t.Setenv("JWT_SECRET", "test_secret")

	token, err := utils.GenerateJWT(models.User{ID: "admin1", Role: models.AdminRole}, 1)
	assert.NoError(t, err)

	resp := requestWithToken(protectedRouter(AdminAuth()), token)

	assert.Equal(t, http.StatusOK, resp.Code)
}

func TestAdminAuth_UserForbidden(t *testing.T) {
	testutils.InitTestMain()
	t.Setenv("JWT_SECRET", "test_secret")

	token, err := utils.GenerateJWT(models.User{ID: "u1", Role: models.UserRole}, 1)
	assert.NoError(t, err)

	resp := requestWithToken(protectedRouter(AdminAuth()), token)

	assert.Equal(t, http.StatusForbidden, resp.Code)
}
