package auth

import (
	"errors"
	"fmt"
	"strings"

	apperrors "portfolio_translation_go_backend/internal/errors"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

var adminRoles = map[string]bool{
	"admin":        true,
	"service_role": true,
}

// AdminMiddleware accepts HS256 bearer tokens whose role claim is admin or
// service_role. An empty secret rejects every request.
func AdminMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			apperrors.HandleError(c, apperrors.New403Error())
			return
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		bearerToken := strings.Split(authHeader, " ")
		if len(bearerToken) != 2 || !strings.EqualFold(bearerToken[0], "Bearer") {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		claims, err := verifyToken(bearerToken[1], secret)
		if err != nil {
			apperrors.HandleError(c, apperrors.New401Error())
			return
		}

		role, _ := claims["role"].(string)
		if !adminRoles[role] {
			apperrors.HandleError(c, apperrors.New403Error())
			return
		}

		subject, _ := claims["sub"].(string)
		c.Set("admin_subject", subject)
		c.Set("admin_role", role)
		c.Next()
	}
}

func verifyToken(tokenString, secret string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}
