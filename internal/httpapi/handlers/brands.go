package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/iadvisors/brand-assistant/internal/common"
)

func (h *Handler) ListBrands(c *gin.Context) {
	uid, okk := parseUserID(c.Query("userId"))
	if !okk {
		common.Fail(c, http.StatusBadRequest, 10002, "userId is required")
		return
	}

	brands, err := h.Brands.ListForUser(c.Request.Context(), uid)
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50002, "failed to list brands")
		return
	}

	common.Ok(c, gin.H{"brands": brands})
}
