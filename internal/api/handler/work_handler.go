package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/commissionhub/commission-api/internal/api/metrics"
	"github.com/commissionhub/commission-api/internal/core/domain"
	"github.com/commissionhub/commission-api/internal/core/ports"
)

// WorkHandler handles HTTP requests for the work lifecycle.
type WorkHandler struct {
	service        ports.WorkService
	maxUploadBytes int64
}

func NewWorkHandler(service ports.WorkService, maxUploadBytes int64) *WorkHandler {
	return &WorkHandler{service: service, maxUploadBytes: maxUploadBytes}
}

// Create handles POST /v1/works.
//
// @Summary      Request a new work from a creator
// @Tags         works
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key  header    string             false  "Client key that makes retries safe"
// @Param        body             body      createWorkRequest  true   "Work request"
// @Success      201              {object}  workResponse
// @Success      200              {object}  workResponse       "Replay of an earlier request with the same key"
// @Failure      400              {object}  errorResponse
// @Failure      401              {object}  errorResponse
// @Failure      404              {object}  errorResponse
// @Failure      409              {object}  errorResponse
// @Router       /v1/works [post]
func (h *WorkHandler) Create(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req createWorkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.service.Create(c.Request().Context(), ports.CreateWorkInput{
		RequesterID:    userID,
		CreatorID:      req.CreatorID,
		PlanID:         req.PlanID,
		Description:    req.Description,
		IdempotencyKey: ctxIdempotencyKey(c),
	})
	if err != nil {
		metrics.WorksCreatedTotal.WithLabelValues("rejected").Inc()
		return err
	}

	if res.AlreadyExisted {
		metrics.WorksCreatedTotal.WithLabelValues("replayed").Inc()
		return c.JSON(http.StatusOK, toWorkResponse(res.Work))
	}
	metrics.WorksCreatedTotal.WithLabelValues("created").Inc()
	c.Response().Header().Set(echo.HeaderLocation, fmt.Sprintf("/v1/works/%s", res.Work.ID))
	return c.JSON(http.StatusCreated, toWorkResponse(res.Work))
}

// ListReceived handles GET /v1/works/received.
//
// @Summary      List works requested from the caller
// @Tags         works
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   workListItemResponse
// @Failure      401  {object}  errorResponse
// @Router       /v1/works/received [get]
func (h *WorkHandler) ListReceived(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListReceived(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toWorkListResponse(items))
}

// ListSent handles GET /v1/works/sent.
//
// @Summary      List works the caller requested
// @Tags         works
// @Produce      json
// @Security     BearerAuth
// @Success      200  {array}   workListItemResponse
// @Failure      401  {object}  errorResponse
// @Router       /v1/works/sent [get]
func (h *WorkHandler) ListSent(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	items, err := h.service.ListSent(c.Request().Context(), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toWorkListResponse(items))
}

// Get handles GET /v1/works/:id.
//
// @Summary      Get a work the caller is party to
// @Tags         works
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Work ID"
// @Success      200  {object}  workResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /v1/works/{id} [get]
func (h *WorkHandler) Get(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	w, err := h.service.Get(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toWorkResponse(w))
}

// Deliver handles POST /v1/works/:id/deliver with a multipart "file" field.
//
// @Summary      Upload the deliverable and mark the work delivered
// @Tags         works
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string  true  "Work ID"
// @Param        file  formData  file    true  "Deliverable"
// @Success      200   {object}  deliveryResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      413   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/works/{id}/deliver [post]
func (h *WorkHandler) Deliver(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	fh, err := c.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return domain.ErrMissingFile
		}
		return echo.NewHTTPError(http.StatusBadRequest, "invalid multipart payload")
	}
	if fh.Size == 0 {
		return domain.ErrMissingFile
	}
	if h.maxUploadBytes > 0 && fh.Size > h.maxUploadBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("file exceeds %d bytes", h.maxUploadBytes))
	}

	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	res, err := h.service.UploadDeliverable(c.Request().Context(), ports.UploadDeliverableInput{
		WorkID:      c.Param("id"),
		ActorID:     userID,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get(echo.HeaderContentType),
		Size:        fh.Size,
		Body:        f,
	})
	observeTransition(domain.WorkDelivered, err)
	if err != nil {
		return err
	}

	metrics.DeliverableUploadBytes.Observe(float64(fh.Size))
	if res.Link.URL != "" {
		metrics.DownloadLinksIssuedTotal.WithLabelValues("delivery").Inc()
	}
	return c.JSON(http.StatusOK, toDeliveryResponse(res))
}

// UploadURL handles POST /v1/works/:id/upload-url.
//
// @Summary      Get a presigned URL to upload the deliverable directly
// @Tags         works
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string            true  "Work ID"
// @Param        body  body      uploadURLRequest  true  "File to upload"
// @Success      200   {object}  uploadTicketResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/works/{id}/upload-url [post]
func (h *WorkHandler) UploadURL(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req uploadURLRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ticket, err := h.service.RequestUploadURL(c.Request().Context(), c.Param("id"), userID, req.FileName)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUploadTicketResponse(ticket))
}

// CompleteUpload handles POST /v1/works/:id/deliver/complete after the file
// was PUT to the presigned URL.
//
// @Summary      Mark the work delivered with a directly uploaded file
// @Tags         works
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id    path      string                 true  "Work ID"
// @Param        body  body      completeUploadRequest  true  "Uploaded object key"
// @Success      200   {object}  deliveryResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      409   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Failure      503   {object}  errorResponse
// @Router       /v1/works/{id}/deliver/complete [post]
func (h *WorkHandler) CompleteUpload(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}

	var req completeUploadRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.service.CompleteUpload(c.Request().Context(), c.Param("id"), userID, req.Key)
	observeTransition(domain.WorkDelivered, err)
	if err != nil {
		return err
	}
	if res.Link.URL != "" {
		metrics.DownloadLinksIssuedTotal.WithLabelValues("delivery").Inc()
	}
	return c.JSON(http.StatusOK, toDeliveryResponse(res))
}

// Reject handles POST /v1/works/:id/reject.
//
// @Summary      Reject a requested work
// @Tags         works
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Work ID"
// @Success      200  {object}  workResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Failure      422  {object}  errorResponse
// @Router       /v1/works/{id}/reject [post]
func (h *WorkHandler) Reject(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	w, err := h.service.Reject(c.Request().Context(), c.Param("id"), userID)
	observeTransition(domain.WorkRejected, err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toWorkResponse(w))
}

// ConfirmPayment handles POST /v1/works/:id/paid.
//
// @Summary      Confirm payment for a delivered work
// @Tags         works
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Work ID"
// @Success      200  {object}  workResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      409  {object}  errorResponse
// @Failure      422  {object}  errorResponse
// @Router       /v1/works/{id}/paid [post]
func (h *WorkHandler) ConfirmPayment(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	w, err := h.service.ConfirmPayment(c.Request().Context(), c.Param("id"), userID)
	observeTransition(domain.WorkPaid, err)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toWorkResponse(w))
}

// Delivery handles GET /v1/works/:id/delivery.
//
// @Summary      Get a short-lived download link for the deliverable
// @Tags         works
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Work ID"
// @Success      200  {object}  downloadLinkResponse
// @Failure      401  {object}  errorResponse
// @Failure      403  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Failure      503  {object}  errorResponse
// @Router       /v1/works/{id}/delivery [get]
func (h *WorkHandler) Delivery(c echo.Context) error {
	userID, err := ctxUserID(c)
	if err != nil {
		return err
	}
	link, err := h.service.GetDeliverable(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return err
	}
	metrics.DownloadLinksIssuedTotal.WithLabelValues("download").Inc()
	return c.JSON(http.StatusOK, downloadLinkResponse{URL: link.URL, ExpiresAt: link.ExpiresAt})
}

func observeTransition(to domain.WorkStatus, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrTransitionConflict):
		result = "conflict"
	case errors.Is(err, domain.ErrInvalidTransition), errors.Is(err, domain.ErrWorkNotFound),
		errors.Is(err, domain.ErrValidation):
		result = "invalid"
	default:
		result = "error"
	}
	metrics.WorkTransitionsTotal.WithLabelValues(string(to), result).Inc()
}
