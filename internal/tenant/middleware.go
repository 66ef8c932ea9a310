package tenant

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Middleware resolves the tenant from the X-Tenant-Id header and attaches
// it to the request context so it is visible to the entire call tree,
// including background work spawned on the request's behalf.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := c.GetHeader(Header)
		if tenantID == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   gin.H{"code": "TNT_001", "message": "X-Tenant-Id header is required"},
			})
			return
		}

		ctx := WithTenant(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Set("tenant_id", tenantID)
		c.Next()
	}
}
