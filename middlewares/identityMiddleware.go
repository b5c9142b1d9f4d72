package middlewares

import (
	"github.com/gin-gonic/gin"

	"bitbucket.org/mmdatafocus/slr_backend/utils"
)

// IdentityMiddleware resolves an opaque user identifier for every request.
// A valid JWT in the "token" header wins; otherwise the client IP is used
// so anonymous users still get stable per-user preferences.
func IdentityMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		identifier := ""

		if token := c.Request.Header.Get("token"); token != "" {
			if parsed, err := utils.JwtValidate(token); err == nil && parsed.Valid {
				if claims, ok := parsed.Claims.(*utils.JwtCustomClaim); ok {
					if claims.Identifier != "" {
						identifier = claims.Identifier
					} else {
						identifier = claims.Subject
					}
				}
			}
		}
		if identifier == "" {
			identifier = c.ClientIP()
		}

		ctx := utils.SetUserIdentifierInContext(c.Request.Context(), identifier)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
