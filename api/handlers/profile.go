package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/BaSui01/llmcouncil/api"
	"github.com/BaSui01/llmcouncil/internal/webhook"
	"github.com/BaSui01/llmcouncil/types"
	"go.uber.org/zap"
)

// ProfileForwarder 把访客资料投递到外部 webhook
type ProfileForwarder interface {
	Forward(ctx context.Context, profile types.UserProfile) error
}

// ProfileHandler 访客资料登记
type ProfileHandler struct {
	forwarder ProfileForwarder
	logger    *zap.Logger
}

// NewProfileHandler 创建资料处理器
func NewProfileHandler(f ProfileForwarder, logger *zap.Logger) *ProfileHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileHandler{forwarder: f, logger: logger.With(zap.String("handler", "profile"))}
}

// HandleSubmit 校验资料并转发
// @Summary 登记访客资料
// @Tags 用户
// @Accept json
// @Produce json
// @Param request body api.UserProfileRequest true "资料"
// @Success 200 {object} types.UserProfile
// @Failure 400 {object} api.ErrorResponse
// @Failure 502 {object} api.ErrorResponse
// @Router /api/users [post]
func (h *ProfileHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	if !ValidateContentType(w, r, h.logger) {
		return
	}
	var req api.UserProfileRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	profile, err := webhook.NewProfile(req.Name, req.CountryCode, req.PhoneNumber)
	if err != nil {
		WriteRequestError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}

	if err := h.forwarder.Forward(r.Context(), profile); err != nil {
		var se *webhook.StatusError
		if errors.As(err, &se) {
			WriteRequestError(w, r, types.NewError(types.ErrWebhookFailed, se.Error()).WithCause(err), h.logger)
			return
		}
		WriteRequestError(w, r, types.NewError(types.ErrWebhookFailed, "failed to deliver profile").
			WithCause(err).WithRetryable(true), h.logger)
		return
	}
	WriteSuccess(w, profile)
}
