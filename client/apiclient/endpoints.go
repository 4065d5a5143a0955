package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"finsync/domain/core/aggregates"
)

// Snapshot is the cloud copy returned by Pull. A fresh account has a nil
// State at version 0.
type Snapshot struct {
	State     aggregates.Document
	Version   int64
	UpdatedAt time.Time
}

// PushResult is the new baseline after an accepted push
type PushResult struct {
	Version   int64
	UpdatedAt time.Time
}

type Category struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Kind      string    `json:"kind"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"-"`
	UpdatedAt time.Time `json:"-"`
}

// CategoryPatch holds the optional fields of a category update
type CategoryPatch struct {
	Name      *string `json:"name,omitempty"`
	Kind      *string `json:"kind,omitempty"`
	SortOrder *int    `json:"sortOrder,omitempty"`
}

// DeleteResult reports where the deleted category's transactions went
type DeleteResult struct {
	ReassignedTo int64 `json:"reassignedTo"`
	Reassigned   int   `json:"reassigned"`
}

type User struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	DisplayName *string `json:"displayName"`
}

// Session is the result of a successful login
type Session struct {
	Token     string
	ExpiresAt time.Time
	User      User
}

type categoryWire struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	SortOrder int    `json:"sortOrder"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func (w categoryWire) toCategory() Category {
	return Category{
		ID:        w.ID,
		Name:      w.Name,
		Kind:      w.Kind,
		SortOrder: w.SortOrder,
		CreatedAt: parseTime(w.CreatedAt),
		UpdatedAt: parseTime(w.UpdatedAt),
	}
}

// Pull fetches the account snapshot
func (c *Client) Pull(ctx context.Context) (*Snapshot, error) {
	var resp struct {
		State     json.RawMessage `json:"state"`
		Version   int64           `json:"version"`
		UpdatedAt *string         `json:"updatedAt"`
	}
	if err := c.do(ctx, http.MethodGet, "/sync/pull", nil, &resp, true); err != nil {
		return nil, err
	}

	doc, err := documentFromRaw(resp.State)
	if err != nil {
		return nil, fmt.Errorf("pull: %w", err)
	}
	snap := &Snapshot{State: doc, Version: resp.Version}
	if resp.UpdatedAt != nil {
		snap.UpdatedAt = parseTime(*resp.UpdatedAt)
	}
	return snap, nil
}

// Push sends doc with the client's baseline version. A document that cannot
// be encoded fails with aggregates.ErrUnencodableDocument before any request
// is made.
func (c *Client) Push(ctx context.Context, doc aggregates.Document, version int64) (*PushResult, error) {
	raw, err := doc.Encode()
	if err != nil {
		return nil, err
	}
	body := struct {
		State   json.RawMessage `json:"state"`
		Version int64           `json:"version"`
	}{State: raw, Version: version}

	var resp struct {
		Version   int64  `json:"version"`
		UpdatedAt string `json:"updatedAt"`
	}
	if err := c.do(ctx, http.MethodPost, "/sync/push", body, &resp, true); err != nil {
		return nil, err
	}
	return &PushResult{Version: resp.Version, UpdatedAt: parseTime(resp.UpdatedAt)}, nil
}

func (c *Client) ListCategories(ctx context.Context) ([]Category, error) {
	var resp struct {
		Categories []categoryWire `json:"categories"`
	}
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &resp, true); err != nil {
		return nil, err
	}
	out := make([]Category, 0, len(resp.Categories))
	for _, w := range resp.Categories {
		out = append(out, w.toCategory())
	}
	return out, nil
}

func (c *Client) CreateCategory(ctx context.Context, name, kind string) (*Category, error) {
	body := map[string]string{"name": name}
	if kind != "" {
		body["kind"] = kind
	}
	var resp struct {
		Category categoryWire `json:"category"`
	}
	if err := c.do(ctx, http.MethodPost, "/categories", body, &resp, true); err != nil {
		return nil, err
	}
	cat := resp.Category.toCategory()
	return &cat, nil
}

func (c *Client) UpdateCategory(ctx context.Context, id int64, patch CategoryPatch) (*Category, error) {
	var resp struct {
		Category categoryWire `json:"category"`
	}
	if err := c.do(ctx, http.MethodPatch, fmt.Sprintf("/categories/%d", id), patch, &resp, true); err != nil {
		return nil, err
	}
	cat := resp.Category.toCategory()
	return &cat, nil
}

func (c *Client) DeleteCategory(ctx context.Context, id int64) (*DeleteResult, error) {
	var resp DeleteResult
	if err := c.do(ctx, http.MethodDelete, fmt.Sprintf("/categories/%d", id), nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, email, password, displayName string) (*User, error) {
	body := map[string]string{"email": email, "password": password}
	if displayName != "" {
		body["displayName"] = displayName
	}
	var resp struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodPost, "/auth/register", body, &resp, false); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Login exchanges credentials for a bearer token. The token is not installed
// on the client; callers decide via SetToken.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var resp struct {
		Token     string `json:"token"`
		ExpiresAt string `json:"expiresAt"`
		User      User   `json:"user"`
	}
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, &resp, false); err != nil {
		return nil, err
	}
	return &Session{Token: resp.Token, ExpiresAt: parseTime(resp.ExpiresAt), User: resp.User}, nil
}

func (c *Client) Me(ctx context.Context) (*User, error) {
	var resp struct {
		User User `json:"user"`
	}
	if err := c.do(ctx, http.MethodGet, "/auth/me", nil, &resp, true); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil, true)
}
