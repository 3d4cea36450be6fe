package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/iadvisors/brand-assistant/internal/brand"
	"github.com/iadvisors/brand-assistant/internal/common"
)

// BrandHeader scopes every chat request to one brand.
const BrandHeader = "X-Brand-Id"

// BrandRequired resolves the brand named by the request header and stores
// it in the context. A missing header is the caller's mistake (400); an
// unknown brand is 404. These are distinct failure kinds.
func BrandRequired(brands *brand.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		brandID := strings.TrimSpace(c.GetHeader(BrandHeader))
		if brandID == "" {
			common.Fail(c, http.StatusBadRequest, 10010, "X-Brand-Id header is required")
			c.Abort()
			return
		}
		b, err := brands.Resolve(c.Request.Context(), brandID)
		if err != nil {
			if errors.Is(err, brand.ErrBrandNotFound) {
				common.Fail(c, http.StatusNotFound, 40410, "brand not found")
				c.Abort()
				return
			}
			common.Fail(c, http.StatusInternalServerError, 50010, "failed to resolve brand")
			c.Abort()
			return
		}
		c.Set(BrandKey, b)
		c.Next()
	}
}

// BrandFromContext returns the brand resolved by BrandRequired.
func BrandFromContext(c *gin.Context) (*brand.Brand, bool) {
	v, ok := c.Get(BrandKey)
	if !ok {
		return nil, false
	}
	b, ok := v.(*brand.Brand)
	return b, ok
}
