package middleware

import (
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/models"
	"github.com/edustack/lcm-api/internal/service"
)

const testSecret = "middleware-test-secret"

// noopAuthRepo satisfies the auth repository; token validation never
// touches storage.
type noopAuthRepo struct{}

func (noopAuthRepo) FindByEmail(context.Context, string) (*models.User, error) {
	return nil, sql.ErrNoRows
}

func (noopAuthRepo) FindByID(context.Context, string) (*models.User, error) {
	return nil, sql.ErrNoRows
}

func (noopAuthRepo) CreateRefreshToken(context.Context, *models.RefreshToken) error { return nil }

func (noopAuthRepo) FindRefreshToken(context.Context, string) (*models.RefreshToken, error) {
	return nil, sql.ErrNoRows
}

func (noopAuthRepo) RevokeRefreshToken(context.Context, string, time.Time) error { return nil }

func newTestRouter(t *testing.T) (*gin.Engine, *authz.Actor) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	authService := service.NewAuthService(noopAuthRepo{}, nil, nil, service.AuthConfig{
		AccessTokenSecret: testSecret,
		AccessTokenExpiry: 15 * time.Minute,
		Issuer:            "lcm-api-test",
	})
	var seen authz.Actor
	r := gin.New()
	r.GET("/ping", JWT(authService), func(c *gin.Context) {
		actor, ok := Actor(c)
		require.True(t, ok)
		seen = actor
		c.Status(http.StatusOK)
	})
	return r, &seen
}

func signToken(t *testing.T, secret string, expiry time.Duration) string {
	t.Helper()
	centerID := "center-1"
	claims := &models.JWTClaims{
		UserID:   "teacher-1",
		Roles:    []models.Role{models.RoleTeacher},
		CenterID: &centerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "teacher-1",
			Issuer:    "lcm-api-test",
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(expiry)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestJWTSetsActor(t *testing.T) {
	r, seen := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, 15*time.Minute))
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "teacher-1", seen.ID)
	assert.Equal(t, []models.Role{models.RoleTeacher}, seen.Roles)
	require.NotNil(t, seen.CenterID)
	assert.Equal(t, "center-1", *seen.CenterID)
}

func TestJWTRejectsMissingHeader(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsMalformedHeader(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Token "+signToken(t, testSecret, 15*time.Minute))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsBadSignature(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "some-other-secret", 15*time.Minute))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTRejectsExpiredToken(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, -time.Minute))
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	centerID := "center-1"
	teacher := authz.Actor{ID: "teacher-1", Roles: []models.Role{models.RoleTeacher}, CenterID: &centerID}
	admin := authz.Actor{ID: "admin-1", Roles: []models.Role{models.RoleAdmin}}

	serve := func(actor *authz.Actor) int {
		r := gin.New()
		r.Use(func(c *gin.Context) {
			if actor != nil {
				c.Set(ContextActorKey, *actor)
			}
		})
		r.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) {
			c.Status(http.StatusOK)
		})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
		r.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, serve(&admin))
	assert.Equal(t, http.StatusForbidden, serve(&teacher))
	assert.Equal(t, http.StatusUnauthorized, serve(nil))
}
