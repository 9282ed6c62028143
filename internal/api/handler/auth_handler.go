package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/commissionhub/commission-api/internal/core/ports"
)

type AuthHandler struct {
	identityService ports.IdentityService
}

func NewAuthHandler(identityService ports.IdentityService) *AuthHandler {
	return &AuthHandler{identityService: identityService}
}

type callbackRequest struct {
	Assertion string `json:"assertion" validate:"required"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  userResponse `json:"user"`
}

// Callback exchanges a gateway-signed identity assertion for a session token.
// The user is created on first login and refreshed on later ones.
//
// @Summary      Login callback
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      callbackRequest  true  "Signed identity assertion"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Router       /auth/callback [post]
func (h *AuthHandler) Callback(c echo.Context) error {
	var req callbackRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	token, user, err := h.identityService.Login(c.Request().Context(), req.Assertion)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, authResponse{Token: token, User: toUserResponse(user)})
}
