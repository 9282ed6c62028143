package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/commissionhub/commission-api/internal/core/ports"
)

// UserHandler serves profile and price-plan endpoints.
type UserHandler struct {
	service ports.ProfileService
}

func NewUserHandler(service ports.ProfileService) *UserHandler {
	return &UserHandler{service: service}
}

// GetMe handles GET /v1/users/me.
//
// @Summary      Get the caller's profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  profileResponse
// @Failure      401  {object}  errorResponse
// @Router       /v1/users/me [get]
func (h *UserHandler) GetMe(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	u, err := h.service.GetMe(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProfileResponse(&ports.ProfileResult{User: u}))
}

// UpdateMe handles PUT /v1/users/me.
//
// @Summary      Update the caller's profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      updateMeRequest  true  "Fields to change"
// @Success      200   {object}  profileResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /v1/users/me [put]
func (h *UserHandler) UpdateMe(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req updateMeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.service.UpdateMe(c.Request().Context(), toUpdateProfileInput(userID, req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProfileResponse(res))
}

// CreatePlan handles POST /v1/users/me/plans.
//
// @Summary      Add a price plan
// @Tags         plans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body  body      planRequest  true  "Plan"
// @Success      201   {object}  profileResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /v1/users/me/plans [post]
func (h *UserHandler) CreatePlan(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req planRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.service.CreatePlan(c.Request().Context(), userID, toPlanInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toProfileResponse(res))
}

// UpdatePlan handles PUT /v1/users/me/plans/:id.
//
// @Summary      Replace a price plan
// @Tags         plans
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string       true  "Plan ID"
// @Param        body  body      planRequest  true  "Plan"
// @Success      200   {object}  profileResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /v1/users/me/plans/{id} [put]
func (h *UserHandler) UpdatePlan(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req planRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.service.UpdatePlan(c.Request().Context(), userID, c.Param("id"), toPlanInput(req))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProfileResponse(res))
}

// DeletePlan handles DELETE /v1/users/me/plans/:id.
//
// @Summary      Delete a price plan
// @Tags         plans
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Plan ID"
// @Success      200  {object}  profileResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/users/me/plans/{id} [delete]
func (h *UserHandler) DeletePlan(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	res, err := h.service.DeletePlan(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toProfileResponse(res))
}

// GetPublic handles GET /v1/profiles/:handle.
//
// @Summary      Public profile with visible price plans
// @Tags         users
// @Produce      json
// @Param        handle  path      string  true  "Handle (case-insensitive)"
// @Success      200     {object}  userResponse
// @Failure      404     {object}  errorResponse
// @Router       /v1/profiles/{handle} [get]
func (h *UserHandler) GetPublic(c echo.Context) error {
	u, err := h.service.GetPublic(c.Request().Context(), c.Param("handle"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(u))
}

// Stats handles GET /v1/profiles/:handle/stats.
//
// @Summary      Work counts per status for a user
// @Tags         users
// @Produce      json
// @Param        handle  path      string  true  "Handle (case-insensitive)"
// @Success      200     {object}  statsResponse
// @Failure      404     {object}  errorResponse
// @Router       /v1/profiles/{handle}/stats [get]
func (h *UserHandler) Stats(c echo.Context) error {
	stats, err := h.service.Stats(c.Request().Context(), c.Param("handle"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toStatsResponse(stats))
}
