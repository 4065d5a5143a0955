package handlers

import (
	"finsync/domain/core/aggregates"
	"finsync/domain/core/entities"
	"finsync/pkg/utils"
)

// PushRequest is the body of POST /sync/push. State is decoded with numbers
// preserved so amounts round-trip unchanged.
type PushRequest struct {
	State   any   `json:"state"`
	Version int64 `json:"version" validate:"gte=0"`
}

// PullResponse is returned by GET /sync/pull
type PullResponse struct {
	State     any     `json:"state"`
	Version   int64   `json:"version"`
	UpdatedAt *string `json:"updatedAt"`
}

// PushResponse is returned for an accepted push
type PushResponse struct {
	Version   int64  `json:"version"`
	UpdatedAt string `json:"updatedAt"`
}

// ConflictResponse is returned with 409 when the client is behind
type ConflictResponse struct {
	Conflict      bool  `json:"conflict"`
	ServerVersion int64 `json:"serverVersion"`
}

type CreateCategoryRequest struct {
	Name string `json:"name" validate:"required"`
	Kind string `json:"kind,omitempty"`
}

// UpdateCategoryRequest accepts sortOrder and the legacy sort_order spelling
type UpdateCategoryRequest struct {
	Name            *string `json:"name,omitempty"`
	Kind            *string `json:"kind,omitempty"`
	SortOrder       *int    `json:"sortOrder,omitempty"`
	LegacySortOrder *int    `json:"sort_order,omitempty"`
}

type CategoryDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	SortOrder int    `json:"sortOrder"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

type CategoryResponse struct {
	Category CategoryDTO `json:"category"`
}

type CategoryListResponse struct {
	Categories []CategoryDTO `json:"categories"`
}

type DeleteCategoryResponse struct {
	OK           bool  `json:"ok"`
	ReassignedTo int64 `json:"reassignedTo"`
	Reassigned   int   `json:"reassigned"`
}

type RegisterRequest struct {
	Email       string `json:"email" validate:"required"`
	Password    string `json:"password" validate:"required"`
	DisplayName string `json:"displayName,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserDTO has a null displayName when none was given
type UserDTO struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	DisplayName *string `json:"displayName"`
}

type UserResponse struct {
	User UserDTO `json:"user"`
}

type LoginResponse struct {
	Token     string  `json:"token"`
	ExpiresAt string  `json:"expiresAt"`
	User      UserDTO `json:"user"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

func toCategoryDTO(c *entities.Category) CategoryDTO {
	return CategoryDTO{
		ID:        c.ID(),
		Name:      c.Name().String(),
		Kind:      string(c.Kind()),
		SortOrder: c.SortOrder(),
		CreatedAt: utils.FormatTimestamp(c.CreatedAt()),
		UpdatedAt: utils.FormatTimestamp(c.UpdatedAt()),
	}
}

func toUserDTO(a *entities.Account) UserDTO {
	dto := UserDTO{ID: a.ID(), Email: a.Email().String()}
	if name := a.DisplayName(); name != "" {
		dto.DisplayName = &name
	}
	return dto
}

// stateValue keeps a nil document as JSON null
func stateValue(doc aggregates.Document) any {
	if doc == nil {
		return nil
	}
	return doc
}
