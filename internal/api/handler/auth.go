package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	jwt "github.com/golang-jwt/jwt/v5"
)

const tokenIssuer = "randomchat-admin"

var ErrInvalidToken = errors.New("invalid admin token")

// Auth mints and checks admin bearer tokens.
type Auth struct {
	Secret  []byte
	AdminID int64
}

func NewAuth(secret string, adminID int64) *Auth {
	return &Auth{Secret: []byte(secret), AdminID: adminID}
}

// GenerateJWT issues a token for the administrator valid for ttl.
func (a *Auth) GenerateJWT(ttl time.Duration) (string, error) {
	if len(a.Secret) == 0 {
		return "", errors.New("admin API secret is not configured")
	}
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(a.AdminID, 10),
		Issuer:    tokenIssuer,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.Secret)
}

// ValidateJWT checks signature, issuer, expiry and that the subject is the administrator.
func (a *Auth) ValidateJWT(tokenString string) (int64, error) {
	if len(a.Secret) == 0 {
		return 0, ErrInvalidToken
	}
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (interface{}, error) {
		return a.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, errors.Join(ErrInvalidToken, err)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id != a.AdminID {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// bearerToken reads the Authorization header, or the "token" query parameter
// for WebSocket clients that cannot set headers.
func bearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(authHeader[len("Bearer "):])
	}
	return c.Query("token")
}

// RequireAdmin rejects requests without a valid admin token.
func (h *Handler) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization token missing"})
			return
		}
		adminID, err := h.Auth.ValidateJWT(tokenString)
		if err != nil {
			h.log.Debug("rejected admin token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		c.Set("admin_id", adminID)
		c.Next()
	}
}
