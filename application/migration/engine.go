package migration

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"finsync/application/ports"
	"finsync/domain/core/aggregates"
	"finsync/domain/core/entities"
	"finsync/domain/core/valueobjects"
	"finsync/pkg/observability"
)

// StepFunc rewrites the document in place and reports whether it changed it
type StepFunc func(ctx context.Context, mc *Context) (changed bool, err error)

// Step is one named, idempotent migration
type Step struct {
	Name        string
	Description string
	Apply       StepFunc
}

// Context is shared by the steps of one run
type Context struct {
	AccountID  string
	Document   aggregates.Document
	Categories ports.CategoryDirectory

	// lookup maps lower-cased category names to ids
	lookup     map[string]int64
	fallbackID int64
	created    []*entities.Category
}

// FallbackID is the id of "Other" once the ensure step has run
func (c *Context) FallbackID() int64 {
	return c.fallbackID
}

// Created lists categories the run had to create
func (c *Context) Created() []*entities.Category {
	return c.created
}

// LoadLookup rebuilds the name index from the directory
func (c *Context) LoadLookup(ctx context.Context) error {
	cats, err := c.Categories.List(ctx, c.AccountID)
	if err != nil {
		return fmt.Errorf("list categories: %w", err)
	}
	c.lookup = make(map[string]int64, len(cats))
	for _, cat := range cats {
		c.lookup[cat.Name().Key()] = cat.ID()
		if cat.IsFallback() {
			c.fallbackID = cat.ID()
		}
	}
	return nil
}

// EnsureCategory finds or creates a category by name. A concurrent insert of
// the same name is resolved by reading back the existing row.
func (c *Context) EnsureCategory(ctx context.Context, name valueobjects.CategoryName) (int64, error) {
	if c.lookup == nil {
		if err := c.LoadLookup(ctx); err != nil {
			return 0, err
		}
	}
	if id, ok := c.lookup[name.Key()]; ok {
		return id, nil
	}

	var cat *entities.Category
	var err error
	if name.IsFallback() {
		cat, err = entities.NewFallbackCategory(c.AccountID)
	} else {
		cat, err = entities.NewCategory(c.AccountID, name, valueobjects.CategoryKindExpense, entities.DefaultSortOrder)
	}
	if err != nil {
		return 0, err
	}

	err = c.Categories.Create(ctx, cat)
	switch {
	case err == nil:
		c.created = append(c.created, cat)
	case errors.Is(err, ports.ErrDuplicateCategoryName):
		existing, findErr := c.Categories.FindByName(ctx, c.AccountID, name.String())
		if findErr != nil {
			return 0, fmt.Errorf("re-read category %q after duplicate: %w", name.String(), findErr)
		}
		cat = existing
	default:
		return 0, fmt.Errorf("create category %q: %w", name.String(), err)
	}

	c.lookup[name.Key()] = cat.ID()
	if cat.IsFallback() {
		c.fallbackID = cat.ID()
	}
	return cat.ID(), nil
}

// Result describes one engine run
type Result struct {
	Document aggregates.Document
	Changed  bool
	// Applied lists the steps that changed the document, in order
	Applied []string
	Created []*entities.Category
}

// Engine runs an ordered registry of steps over a document
type Engine struct {
	steps   []Step
	logger  *zap.Logger
	metrics *observability.Collector
}

// NewEngine creates an engine with no steps registered
func NewEngine(logger *zap.Logger, metrics *observability.Collector) *Engine {
	return &Engine{
		steps:   []Step{},
		logger:  logger,
		metrics: metrics,
	}
}

// NewDefaultEngine creates an engine with the category reference migration
func NewDefaultEngine(logger *zap.Logger, metrics *observability.Collector) *Engine {
	e := NewEngine(logger, metrics)
	for _, step := range DefaultSteps() {
		// names in DefaultSteps are unique
		_ = e.Register(step)
	}
	return e
}

// Register appends a step. Names must be unique.
func (e *Engine) Register(step Step) error {
	if step.Name == "" || step.Apply == nil {
		return fmt.Errorf("invalid migration step: name and apply func are required")
	}
	for _, existing := range e.steps {
		if existing.Name == step.Name {
			return fmt.Errorf("migration step %q already registered", step.Name)
		}
	}
	e.steps = append(e.steps, step)
	return nil
}

// Steps returns registered step names in execution order
func (e *Engine) Steps() []string {
	names := make([]string, len(e.steps))
	for i, s := range e.steps {
		names[i] = s.Name
	}
	return names
}

// Run applies every step to doc. The caller owns doc; it is modified in place.
func (e *Engine) Run(ctx context.Context, accountID string, doc aggregates.Document, categories ports.CategoryDirectory) (*Result, error) {
	mc := &Context{
		AccountID:  accountID,
		Document:   doc,
		Categories: categories,
	}
	result := &Result{Document: doc}

	for _, step := range e.steps {
		changed, err := step.Apply(ctx, mc)
		if err != nil {
			return nil, fmt.Errorf("migration step %s failed: %w", step.Name, err)
		}
		if changed {
			result.Changed = true
			result.Applied = append(result.Applied, step.Name)
			e.metrics.IncMigrationStep(step.Name)
		}
	}
	result.Created = mc.Created()

	if result.Changed {
		e.logger.Info("document migrated",
			zap.String("account_id", accountID),
			zap.Strings("steps", result.Applied),
			zap.Int("categories_created", len(result.Created)),
		)
	}
	return result, nil
}
