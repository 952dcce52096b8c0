package middlewares

import (
	"net/http"
	"strings"

	"bitbucket.org/mmdatafocus/hrm_backend/utils"
	"github.com/gin-gonic/gin"
)

// AuthMiddleware validates the bearer JWT a device gateway presents and
// puts its device id into the request context. Requests without an
// Authorization header pass through; device routes gate on RequireDevice.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.Request.Header.Get("Authorization")
		if auth == "" {
			c.Next()
			return
		}

		const bearer = "Bearer "
		if !strings.HasPrefix(auth, bearer) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		auth = auth[len(bearer):]

		validate, err := utils.JwtValidate(auth)
		if err != nil || !validate.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		claim, ok := validate.Claims.(*utils.JwtCustomClaim)
		if !ok || claim.DeviceId == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}

		ctx := utils.SetDeviceIdInContext(c.Request.Context(), claim.DeviceId)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireDevice gates the event-ingestion routes: only a request carrying
// a valid device JWT may post attendance events.
func RequireDevice() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := utils.GetDeviceIdFromContext(c.Request.Context()); !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "device token required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
