package utils

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tnqbao/gau-vm-session-service/config"
)

const (
	ContextUserID     = "user_id"
	ContextPermission = "permission"

	PermissionAdmin = "admin"
)

func ExtractToken(c *gin.Context) string {
	if token, err := c.Cookie("access_token"); err == nil && token != "" {
		return token
	}
	authHeader := c.GetHeader("Authorization")
	parts := strings.Fields(authHeader)
	if len(parts) == 2 && strings.ToLower(parts[0]) == "bearer" {
		return parts[1]
	}
	return ""
}

func ParseToken(tokenString string, config *config.EnvConfig) (*jwt.Token, error) {
	secret := []byte(config.JWT.SecretKey)
	var opts []jwt.ParserOption
	if config.JWT.Algorithm != "" {
		opts = append(opts, jwt.WithValidMethods([]string{config.JWT.Algorithm}))
	}
	return jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return secret, nil
	}, opts...)
}

func InjectClaimsToContext(c *gin.Context, claims jwt.MapClaims) error {
	userIDStr, ok := claims[ContextUserID].(string)
	if !ok {
		return errors.New("Invalid user_id format")
	}
	if _, err := uuid.Parse(userIDStr); err != nil {
		return errors.New("Invalid user_id format")
	}
	c.Set(ContextUserID, userIDStr)

	if permission, ok := claims[ContextPermission].(string); ok {
		c.Set(ContextPermission, permission)
	} else {
		c.Set(ContextPermission, "")
	}
	return nil
}

// GetUserIDFromContext accepts both string and uuid.UUID values.
func GetUserIDFromContext(c *gin.Context) (uuid.UUID, error) {
	userID, exists := c.Get(ContextUserID)
	if !exists || userID == nil {
		return uuid.Nil, errors.New("user_id is missing from context")
	}

	switch v := userID.(type) {
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return uuid.Nil, errors.New("invalid user_id format: " + err.Error())
		}
		return parsed, nil
	case uuid.UUID:
		return v, nil
	default:
		return uuid.Nil, errors.New("invalid user_id type in context")
	}
}

func IsAdmin(c *gin.Context) bool {
	return c.GetString(ContextPermission) == PermissionAdmin
}
