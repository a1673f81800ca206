package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edustack/lcm-api/internal/models"
	"github.com/edustack/lcm-api/internal/service"
	appErrors "github.com/edustack/lcm-api/pkg/errors"
	"github.com/edustack/lcm-api/pkg/response"
)

// CenterHandler exposes center endpoints.
type CenterHandler struct {
	centers *service.CenterService
}

// NewCenterHandler constructs CenterHandler.
func NewCenterHandler(centers *service.CenterService) *CenterHandler {
	return &CenterHandler{centers: centers}
}

// List godoc
// @Summary List centers visible to the caller
// @Tags Centers
// @Produce json
// @Security BearerAuth
// @Param search query string false "Search by name"
// @Param active query bool false "Filter by active state"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /centers [get]
func (h *CenterHandler) List(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var filter models.CenterFilter
	filter.Search = strings.TrimSpace(c.Query("search"))
	if active := c.Query("active"); active != "" {
		v := active == "true"
		filter.IsActive = &v
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	centers, total, err := h.centers.List(c.Request.Context(), actor, filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, centers, paginationFrom(filter.Page, filter.PageSize, total))
}

// Get godoc
// @Summary Get one center
// @Tags Centers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Center ID"
// @Success 200 {object} response.Envelope
// @Router /centers/{id} [get]
func (h *CenterHandler) Get(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	center, err := h.centers.Get(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, center, nil)
}

// Update godoc
// @Summary Update center metadata
// @Tags Centers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Center ID"
// @Param payload body service.UpdateCenterRequest true "Center payload"
// @Success 200 {object} response.Envelope
// @Router /centers/{id} [put]
func (h *CenterHandler) Update(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.UpdateCenterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	center, err := h.centers.Update(c.Request.Context(), actor, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, center, nil)
}

type centerStateRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive godoc
// @Summary Activate or suspend a center
// @Tags Centers
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Center ID"
// @Param payload body centerStateRequest true "State payload"
// @Success 204
// @Router /centers/{id}/state [put]
func (h *CenterHandler) SetActive(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req centerStateRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Active == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}
	if err := h.centers.SetActive(c.Request.Context(), actor, c.Param("id"), *req.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete godoc
// @Summary Delete a center
// @Tags Centers
// @Produce json
// @Security BearerAuth
// @Param id path string true "Center ID"
// @Success 204
// @Router /centers/{id} [delete]
func (h *CenterHandler) Delete(c *gin.Context) {
	actor, ok := actorFromContext(c)
	if !ok {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	if err := h.centers.Delete(c.Request.Context(), actor, c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
