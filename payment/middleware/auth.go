package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const SubjectKey = "sub"

var errMissingToken = errors.New("missing bearer token")

// RequireAuth accepts HS256 bearer tokens signed with secret. An empty secret
// disables the check.
func RequireAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		sub, err := ParseToken(c.GetHeader("Authorization"), secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": err.Error(),
				"kind":  "unauthorized",
			})
			return
		}
		c.Set(SubjectKey, sub)
		c.Next()
	}
}

// ParseToken validates an "Authorization: Bearer <jwt>" header value and
// returns the token subject.
func ParseToken(header, secret string) (string, error) {
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return "", errMissingToken
	}

	token, err := jwt.Parse(strings.TrimSpace(raw), func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return "", err
	}
	sub, err := token.Claims.GetSubject()
	if err != nil {
		return "", err
	}
	return sub, nil
}
