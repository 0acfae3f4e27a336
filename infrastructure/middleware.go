// infrastructure/middleware.go
package infrastructure

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	signatureHeader = "X-Hub-Signature"
	signaturePrefix = "sha1="
	contextUserID   = "user_id"
	contextUsername = "username"
)

// Claims carried by dashboard-issued bearer tokens.
type Claims struct {
	Username string `json:"username"`
	UserID   string `json:"user_id"`
	jwt.RegisteredClaims
}

// RequestLogger logs every request except health and metrics scrapes.
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		path := c.Request.URL.Path
		if path == "/health" || path == "/metrics" {
			c.Next()
			return
		}

		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		if c.Request.URL.RawQuery != "" {
			path += "?" + c.Request.URL.RawQuery
		}
		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("ip", c.ClientIP()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", requestID),
		}

		if len(c.Errors) > 0 {
			for _, ginErr := range c.Errors.ByType(gin.ErrorTypeAny) {
				logger.Error("Request error", append(fields, zap.Error(ginErr.Err))...)
			}
			return
		}
		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			logger.Error("Server error", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("Client error", fields...)
		default:
			logger.Info("Request completed", fields...)
		}
	}
}

// VerifySignature checks the HMAC-SHA1 of the raw body against the
// X-Hub-Signature header and restores the body for the next handler.
func VerifySignature(appSecret string, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader(signatureHeader)
		if !strings.HasPrefix(header, signaturePrefix) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing or malformed signature"})
			return
		}
		signature, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "missing or malformed signature"})
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		if !hmac.Equal(signature, signBody(appSecret, body)) {
			logger.Warn("Webhook signature mismatch", zap.String("ip", c.ClientIP()))
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}

func signBody(secret string, body []byte) []byte {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// AuthMiddleware validates the bearer token and exposes its user id.
func AuthMiddleware(jwtSecret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.GetHeader("Authorization")
		if !strings.HasPrefix(tokenString, "Bearer ") || len(tokenString) <= len("Bearer ") {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return jwtSecret, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil || !token.Valid || claims.UserID == "" {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}

		c.Set(contextUserID, claims.UserID)
		c.Set(contextUsername, claims.Username)
		c.Next()
	}
}
