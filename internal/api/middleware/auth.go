package middleware

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"printgate/internal/config"
)

const cookieName = "printgate_auth"

type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
}

// Auth issues and validates JWT tokens against credentials from the
// config file. When auth is disabled every request passes through.
type Auth struct {
	cfg config.AuthConfig
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Success bool   `json:"success"`
	Token   string `json:"token,omitempty"`
	Message string `json:"message,omitempty"`
}

func NewAuth(cfg config.AuthConfig) *Auth {
	return &Auth{cfg: cfg}
}

func (a *Auth) Enabled() bool {
	return a.cfg.Enabled
}

func (a *Auth) generateToken(username string) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.cfg.TokenTTL)),
			Issuer:    "printgate",
		},
		Username: username,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(a.cfg.JWTSecret))
}

func (a *Auth) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

func (a *Auth) tokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(cookieName); err == nil && cookie != "" {
		return cookie
	}

	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return ""
}

// LoginHandler exchanges username and password for a token. The token is
// returned in the body and also set as a cookie for browser clients.
func (a *Auth) LoginHandler(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, LoginResponse{Success: false, Message: "Invalid request"})
		return
	}

	if req.Username != a.cfg.Username ||
		bcrypt.CompareHashAndPassword([]byte(a.cfg.PasswordHash), []byte(req.Password)) != nil {
		c.JSON(http.StatusUnauthorized, LoginResponse{Success: false, Message: "Invalid credentials"})
		return
	}

	token, err := a.generateToken(req.Username)
	if err != nil {
		c.JSON(http.StatusInternalServerError, LoginResponse{Success: false, Message: "Failed to generate token"})
		return
	}

	c.SetCookie(cookieName, token, int(a.cfg.TokenTTL.Seconds()), "/", "", false, true)
	c.JSON(http.StatusOK, LoginResponse{Success: true, Token: token})
}

func (a *Auth) LogoutHandler(c *gin.Context) {
	c.SetCookie(cookieName, "", -1, "/", "", false, true)
	c.JSON(http.StatusOK, LoginResponse{Success: true, Message: "Logged out"})
}

// RequireAuth rejects requests without a valid token. A no-op when auth
// is disabled in the config.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.cfg.Enabled {
			c.Next()
			return
		}

		token := a.tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
			return
		}

		claims, err := a.validateToken(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set("username", claims.Username)
		c.Next()
	}
}
