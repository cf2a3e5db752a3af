package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userIDKey = "userId"

type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// AuthMiddleware validates HS256 bearer tokens signed with secret and stores
// the caller's identity on the gin context. Tokens are issued elsewhere.
func AuthMiddleware(secret []byte) gin.HandlerFunc {
	if len(secret) == 0 {
		panic("middleware: empty JWT secret")
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			RespondWithError(c, http.StatusUnauthorized, "Authorization header required")
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			RespondWithError(c, http.StatusUnauthorized, "Invalid authorization header format")
			c.Abort()
			return
		}

		claims := &Claims{}
		token, err := parser.ParseWithClaims(parts[1], claims, func(token *jwt.Token) (any, error) {
			return secret, nil
		})
		if err != nil || !token.Valid {
			RespondWithError(c, http.StatusUnauthorized, "Invalid or expired token")
			c.Abort()
			return
		}
		if claims.UserID == "" {
			RespondWithError(c, http.StatusUnauthorized, "Token carries no user")
			c.Abort()
			return
		}

		c.Set(userIDKey, claims.UserID)
		c.Set("email", claims.Email)
		c.Next()
	}
}

// GetUserID returns the authenticated user on the request, if any.
func GetUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(userIDKey)
	if !exists {
		return "", false
	}
	id, ok := userID.(string)
	return id, ok && id != ""
}

// SignToken issues an HS256 token for userID. Used by tests and local tooling.
func SignToken(secret []byte, userID, email string, claims jwt.RegisteredClaims) (string, error) {
	if userID == "" {
		return "", errors.New("empty user id")
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		UserID:           userID,
		Email:            email,
		RegisteredClaims: claims,
	})
	return token.SignedString(secret)
}
