package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
	"github.com/sirupsen/logrus"
)

// Gin 上下文中保存身份信息的键
const (
	ContextUserIDKey      = "user_id"
	ContextDisplayNameKey = "display_name"
)

// Identity 返回一个 Gin 中间件，验证身份服务签发的 HS256 token。
// token 必须携带字符串类型的 user_id (或 sub) claim，display_name 可选。
func Identity(jwtSecret string) gin.HandlerFunc {
	if jwtSecret == "" {
		panic("JWT secret cannot be empty for Identity middleware")
	}

	return func(c *gin.Context) {
		tokenStr, err := extractToken(c)
		if err != nil {
			if errors.Is(err, ErrMissingAuthHeader) {
				logrus.Warn("Identity middleware: Missing Authorization header")
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			} else {
				logrus.Warnf("Identity middleware: Malformed token format: %v", err)
				c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format"})
			}
			c.Abort()
			return
		}

		claims, err := validateToken(tokenStr, jwtSecret)
		if err != nil {
			logCtx := logrus.WithError(err)
			logCtx.Warn("Identity middleware: Invalid token")
			var validationError *jwt.ValidationError
			if errors.As(err, &validationError) && validationError.Errors&jwt.ValidationErrorExpired != 0 {
				logCtx.Warn("Reason: Token is expired")
			}
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			c.Abort()
			return
		}

		userID := stringClaim(claims, "user_id")
		if userID == "" {
			userID = stringClaim(claims, "sub")
		}
		if userID == "" {
			logrus.Warn("Identity middleware: token carries no user_id or sub claim")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Token does not identify a user"})
			c.Abort()
			return
		}

		c.Set(ContextUserIDKey, userID)
		if name := stringClaim(claims, "display_name"); name != "" {
			c.Set(ContextDisplayNameKey, name)
		}
		logrus.WithField("user_id", userID).Debug("Identity middleware: User authenticated via JWT")

		c.Next()
	}
}

// ErrMissingAuthHeader 表示请求缺少 Authorization 头
var ErrMissingAuthHeader = errors.New("missing Authorization header")

// extractToken 从 Gin 上下文中提取 Bearer Token
func extractToken(c *gin.Context) (string, error) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", ErrMissingAuthHeader
	}
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// validateToken 解析并验证 JWT token 字符串
func validateToken(tokenStr string, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, errors.New("invalid token or claims type")
}

func stringClaim(claims jwt.MapClaims, key string) string {
	v, ok := claims[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// UserID 返回 Identity 中间件写入的用户 ID，未启用身份验证时返回 false
func UserID(c *gin.Context) (string, bool) {
	v := c.GetString(ContextUserIDKey)
	return v, v != ""
}

// DisplayName 返回 token 中的显示名，可能为空
func DisplayName(c *gin.Context) string {
	return c.GetString(ContextDisplayNameKey)
}
