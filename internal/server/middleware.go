package server

import (
	"strings"

	"github.com/gin-gonic/gin"
	userdomain "github.com/leadex/leadex/internal/user/domain"
)

const contextUserKey = "current_user"

func (s *Server) AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		var user userdomain.User
		err := s.db.WithContext(c.Request.Context()).Raw(
			`SELECT id, email, role, api_token, balance, created_at, updated_at
			 FROM users WHERE api_token = ?`,
			token,
		).Scan(&user).Error
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if user.ID == 0 {
			AbortWithError(c, ErrUnauthorized)
			return
		}

		c.Set(contextUserKey, &user)
		c.Next()
	}
}

func (s *Server) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)
		if user == nil || user.Role != userdomain.RoleAdmin {
			AbortWithError(c, ErrForbidden)
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *userdomain.User {
	value, ok := c.Get(contextUserKey)
	if !ok {
		return nil
	}
	user, _ := value.(*userdomain.User)
	return user
}

func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
