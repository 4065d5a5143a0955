package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finsync/application/services"
	"finsync/domain/core/entities"
	"finsync/pkg/common"
	apperrors "finsync/pkg/errors"
	"finsync/pkg/utils"
)

// CategoryUseCases is implemented by services.CategoryService
type CategoryUseCases interface {
	List(ctx context.Context, accountID string) ([]*entities.Category, error)
	Create(ctx context.Context, accountID, name, kind string) (*entities.Category, error)
	Update(ctx context.Context, accountID string, id int64, patch services.CategoryPatch) (*entities.Category, error)
	Delete(ctx context.Context, accountID string, id int64) (*services.DeleteResult, error)
}

// CategoryHandler handles category-related HTTP requests
type CategoryHandler struct {
	categories CategoryUseCases
	errors     *apperrors.ErrorHandler
	logger     *zap.Logger
}

func NewCategoryHandler(categories CategoryUseCases, errs *apperrors.ErrorHandler, logger *zap.Logger) *CategoryHandler {
	return &CategoryHandler{categories: categories, errors: errs, logger: logger}
}

// List handles GET /categories
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r, h.errors)
	if !ok {
		return
	}

	cats, err := h.categories.List(r.Context(), accountID)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	out := make([]CategoryDTO, 0, len(cats))
	for _, c := range cats {
		out = append(out, toCategoryDTO(c))
	}
	common.RespondJSON(w, http.StatusOK, CategoryListResponse{Categories: out})
}

// Create handles POST /categories
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r, h.errors)
	if !ok {
		return
	}

	var req CreateCategoryRequest
	if err := common.ParseJSONBody(w, r, &req, 64<<10); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	if err := utils.ValidateStruct(req); err != nil {
		h.errors.Handle(w, r, err)
		return
	}

	cat, err := h.categories.Create(r.Context(), accountID, req.Name, req.Kind)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusCreated, CategoryResponse{Category: toCategoryDTO(cat)})
}

// Update handles PATCH /categories/{categoryID}
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r, h.errors)
	if !ok {
		return
	}
	id, ok := h.categoryID(w, r)
	if !ok {
		return
	}

	var req UpdateCategoryRequest
	if err := common.ParseJSONBody(w, r, &req, 64<<10); err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	patch := services.CategoryPatch{Name: req.Name, Kind: req.Kind, SortOrder: req.SortOrder}
	if patch.SortOrder == nil {
		patch.SortOrder = req.LegacySortOrder
	}

	cat, err := h.categories.Update(r.Context(), accountID, id, patch)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, CategoryResponse{Category: toCategoryDTO(cat)})
}

// Delete handles DELETE /categories/{categoryID}
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, ok := accountFromRequest(w, r, h.errors)
	if !ok {
		return
	}
	id, ok := h.categoryID(w, r)
	if !ok {
		return
	}

	result, err := h.categories.Delete(r.Context(), accountID, id)
	if err != nil {
		h.errors.Handle(w, r, err)
		return
	}
	common.RespondJSON(w, http.StatusOK, DeleteCategoryResponse{
		OK:           true,
		ReassignedTo: result.ReassignedTo,
		Reassigned:   result.Reassigned,
	})
}

func (h *CategoryHandler) categoryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "categoryID"), 10, 64)
	if err != nil || id <= 0 {
		h.errors.Handle(w, r, apperrors.NewValidationError("invalid category id").WithDetail("field", "id"))
		return 0, false
	}
	return id, true
}
