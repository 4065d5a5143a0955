package handlers

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"finsync/application/services"
	"finsync/domain/core/entities"
	"finsync/pkg/common"
	apperrors "finsync/pkg/errors"
	"finsync/pkg/utils"
)

// AuthUseCases is implemented by services.AuthService
type AuthUseCases interface {
	Register(ctx context.Context, in services.RegisterInput) (*entities.Account, error)
	Login(ctx context.Context, email, password string) (*services.LoginResult, error)
	Me(ctx context.Context, accountID string) (*entities.Account, error)
}

// AuthHandler serves account registration and sessions
type AuthHandler struct {
	auth   AuthUseCases
	errors *apperrors.ErrorHandler
	logger *zap.Logger
}

func NewAuthHandler(auth AuthUseCases, errs *apperrors.ErrorHandler, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, errors: errs, logger: logger}
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := common.ParseJSONBody(w, r, &req, 16<<10); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	account, err := h.auth.Register(r.Context(), services.RegisterInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, UserResponse{User: toUserDTO(account)})
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := common.ParseJSONBody(w, r, &req, 16<<10); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, LoginResponse{
		Token:     result.Token,
		ExpiresAt: utils.FormatTimestamp(result.ExpiresAt),
		User:      toUserDTO(result.Account),
	})
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r, h.errors)
	if !ok {
		return
	}
	account, err := h.auth.Me(r.Context(), accountID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, UserResponse{User: toUserDTO(account)})
}

// Logout handles POST /auth/logout. Tokens are stateless, the client drops its copy.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	common.RespondJSON(w, http.StatusOK, OKResponse{OK: true})
}
