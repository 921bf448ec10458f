package handlers

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"

	"github.com/scroll-tech/cloak-fast-withdraw/internal/config"
)

// AdminClaims are the JWT claims of an authenticated operator session.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuthHandler exchanges a TOTP code for a short-lived bearer token
// guarding the inspection API.
type AdminAuthHandler struct {
	cfg *config.AdminConfig
	log *logrus.Entry
}

// NewAdminAuthHandler creates the admin auth handler.
func NewAdminAuthHandler(cfg *config.AdminConfig, logger *logrus.Logger) *AdminAuthHandler {
	return &AdminAuthHandler{
		cfg: cfg,
		log: logger.WithField("module", "admin-auth"),
	}
}

type loginRequest struct {
	TOTPCode string `json:"totp_code" binding:"required"`
}

// Login handles POST /api/v1/admin/login.
func (h *AdminAuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp_code is required"})
		return
	}

	if !totp.Validate(req.TOTPCode, h.cfg.TOTPSecret) {
		h.log.Warn("Admin login failed - invalid TOTP code")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid TOTP code"})
		return
	}

	token, err := h.issueToken()
	if err != nil {
		h.log.WithError(err).Error("Failed to issue admin token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "expires_in": int(adminTokenTTL.Seconds())})
}

const adminTokenTTL = 24 * time.Hour

func (h *AdminAuthHandler) issueToken() (string, error) {
	now := time.Now()
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(adminTokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(h.cfg.JWTSecret))
}

// ValidateAdminToken parses and verifies a bearer token issued by Login.
func ValidateAdminToken(tokenString, secret string) (*AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(*AdminClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid admin token")
	}
	return claims, nil
}
