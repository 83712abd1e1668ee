package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/octobees/lead-capture/internal/dto"
	"github.com/octobees/lead-capture/internal/service"
)

// SubscriberHandler exposes newsletter endpoints.
type SubscriberHandler struct {
	subscribers *service.SubscriberService
	logger      logrus.FieldLogger
}

// NewSubscriberHandler constructs a SubscriberHandler.
func NewSubscriberHandler(subscribers *service.SubscriberService, logger logrus.FieldLogger) *SubscriberHandler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &SubscriberHandler{subscribers: subscribers, logger: logger}
}

// Subscribe handles POST /subscribe requests.
func (h *SubscriberHandler) Subscribe(c echo.Context) error {
	var req dto.SubscribeRequest
	if err := c.Bind(&req); err != nil {
		return Error(c, http.StatusBadRequest, "invalid payload")
	}

	sub, err := h.subscribers.Subscribe(c.Request().Context(), req.Email, req.Name)
	if err != nil {
		return subscriberError(c, err, "unable to subscribe")
	}

	// no mailer is wired; the confirm link is logged for the operator
	h.logger.WithFields(logrus.Fields{
		"subscriber_id": sub.ID,
		"confirm_path":  "/confirm/" + sub.Token,
	}).Info("subscription pending confirmation")

	return Success(c, http.StatusCreated, "subscription received, please confirm your email", map[string]any{
		"email":     sub.Email,
		"confirmed": sub.Confirmed,
	})
}

// Confirm handles GET /confirm/:token requests.
func (h *SubscriberHandler) Confirm(c echo.Context) error {
	sub, err := h.subscribers.Confirm(c.Request().Context(), c.Param("token"))
	if err != nil {
		return subscriberError(c, err, "unable to confirm subscription")
	}
	return Success(c, http.StatusOK, "subscription confirmed", map[string]any{"email": sub.Email})
}

// Unsubscribe handles GET /unsubscribe/:token requests.
func (h *SubscriberHandler) Unsubscribe(c echo.Context) error {
	sub, err := h.subscribers.Unsubscribe(c.Request().Context(), c.Param("token"))
	if err != nil {
		return subscriberError(c, err, "unable to unsubscribe")
	}
	return Success(c, http.StatusOK, "you have been unsubscribed", map[string]any{"email": sub.Email})
}

// Count handles GET /admin/subscribers/count requests.
func (h *SubscriberHandler) Count(c echo.Context) error {
	counts, err := h.subscribers.Counts(c.Request().Context())
	if err != nil {
		return Error(c, http.StatusServiceUnavailable, "failed to count subscribers")
	}
	return Success(c, http.StatusOK, "subscriber counts", counts)
}

func subscriberError(c echo.Context, err error, fallback string) error {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		return Error(c, http.StatusBadRequest, verr.Message)
	case errors.Is(err, service.ErrAlreadySubscribed):
		return Error(c, http.StatusConflict, "email is already subscribed")
	case errors.Is(err, service.ErrInvalidToken):
		return Error(c, http.StatusNotFound, "invalid or expired link")
	default:
		return Error(c, http.StatusServiceUnavailable, fallback)
	}
}
