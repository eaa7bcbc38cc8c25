package middleware

import (
	"errors"
	"net/http"
	"time"

	"go-qris/utils"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	AdminCookie  = "admin_auth"
	adminSubject = "admin"
)

var ErrInvalidToken = errors.New("invalid token")

// AdminAuth guards the admin API with a single shared password. A successful
// login is remembered in a signed cookie.
type AdminAuth struct {
	secret       []byte
	passwordHash []byte
	ttl          time.Duration
	secure       bool // send the cookie over https only
}

func NewAdminAuth(secret, password string, ttl time.Duration, secure bool) (*AdminAuth, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), 10)
	if err != nil {
		return nil, err
	}
	return &AdminAuth{
		secret:       []byte(secret),
		passwordHash: hash,
		ttl:          ttl,
		secure:       secure,
	}, nil
}

func (a *AdminAuth) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)) == nil
}

func (a *AdminAuth) IssueToken() (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   adminSubject,
		ID:        utils.GenerateUUID(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
	})
	return token.SignedString(a.secret)
}

func (a *AdminAuth) Verify(tokenString string) error {
	claims := new(jwt.RegisteredClaims)
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid || claims.Subject != adminSubject {
		return ErrInvalidToken
	}
	return nil
}

func (a *AdminAuth) SetCookie(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(AdminCookie, token, int(a.ttl.Seconds()), "/", "", a.secure, true)
}

func (a *AdminAuth) Authenticated(c *gin.Context) bool {
	token, err := c.Cookie(AdminCookie)
	if err != nil || token == "" {
		return false
	}
	return a.Verify(token) == nil
}

func (a *AdminAuth) RequireAdmin(c *gin.Context) {
	if !a.Authenticated(c) {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Unauthorized",
		})
		return
	}
	c.Next()
}
