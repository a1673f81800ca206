package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/edustack/lcm-api/internal/authz"
	"github.com/edustack/lcm-api/internal/middleware"
	"github.com/edustack/lcm-api/internal/models"
)

func actorFromContext(c *gin.Context) (authz.Actor, bool) {
	return middleware.Actor(c)
}

func paginationFrom(filterPage, filterSize, total int) *models.Pagination {
	page := filterPage
	if page < 1 {
		page = 1
	}
	size := filterSize
	if size <= 0 || size > 100 {
		size = 20
	}
	return &models.Pagination{Page: page, PageSize: size, TotalCount: total}
}
