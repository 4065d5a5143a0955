package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"finsync/application/ports"
	"finsync/application/services"
	"finsync/pkg/auth"
	"finsync/pkg/common"
	apperrors "finsync/pkg/errors"
	"finsync/pkg/utils"
)

// SyncUseCases is implemented by services.SyncService
type SyncUseCases interface {
	Pull(ctx context.Context, accountID string) (*services.PullResult, error)
	Push(ctx context.Context, accountID string, state any, clientVersion int64) (*services.PushResult, error)
}

// SyncHandler serves snapshot pull and push
type SyncHandler struct {
	sync         SyncUseCases
	errors       *apperrors.ErrorHandler
	logger       *zap.Logger
	maxBodyBytes int64
}

func NewSyncHandler(sync SyncUseCases, errs *apperrors.ErrorHandler, logger *zap.Logger, maxBodyBytes int64) *SyncHandler {
	return &SyncHandler{sync: sync, errors: errs, logger: logger, maxBodyBytes: maxBodyBytes}
}

// Pull handles GET /sync/pull
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}

	result, err := h.sync.Pull(r.Context(), accountID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, PullResponse{
		State:     stateValue(result.Document),
		Version:   result.Version,
		UpdatedAt: utils.FormatTimestampPtr(result.UpdatedAt),
	})
}

// Push handles POST /sync/push
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	accountID, ok := h.account(w, r)
	if !ok {
		return
	}

	var req PushRequest
	// body limit leaves room for the envelope around state
	if err := common.ParseJSONBody(w, r, &req, h.maxBodyBytes+1024); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.sync.Push(r.Context(), accountID, req.State, req.Version)
	if conflict, ok := ports.AsVersionConflict(err); ok {
		common.RespondJSON(w, http.StatusConflict, ConflictResponse{
			Conflict:      true,
			ServerVersion: conflict.ServerVersion,
		})
		return
	}
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	common.RespondJSON(w, http.StatusOK, PushResponse{
		Version:   result.Version,
		UpdatedAt: utils.FormatTimestamp(result.UpdatedAt),
	})
}

func (h *SyncHandler) account(w http.ResponseWriter, r *http.Request) (string, bool) {
	return accountFromRequest(w, r, h.errors)
}

// accountFromRequest reads the account set by the authentication middleware
func accountFromRequest(w http.ResponseWriter, r *http.Request, errs *apperrors.ErrorHandler) (string, bool) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		errs.Handle(w, r, apperrors.NewUnauthorizedError("authentication required").
			WithCode(apperrors.CodeAuthenticationFailed))
		return "", false
	}
	return user.UserID, true
}
