package council

import (
	"context"
	"fmt"
	"strings"

	"github.com/Qnatz/Qrews-sub000/internal/project"
)

// =============================================================================
// VALIDATOR CAPABILITY REGISTRY
// =============================================================================
// Each validator declares the stack categories it is qualified to validate.
// A validator is polled when any of its categories is required for the
// project's platforms.

// Capability tags a stack category a validator is qualified to judge.
type Capability = project.Category

// Validator votes on an approved stack.
type Validator interface {
	Name() string
	Capabilities() []Capability
	Validate(ctx context.Context, stack map[project.Category]string, platforms project.PlatformRequirements) project.Vote
}

// Registry holds validators in registration order.
type Registry struct {
	validators []Validator
}

// NewRegistry creates a registry with the given validators.
func NewRegistry(vs ...Validator) *Registry {
	return &Registry{validators: vs}
}

// DefaultRegistry holds the architecture and mobile validators.
func DefaultRegistry() *Registry {
	return NewRegistry(ArchitectureValidator{}, MobileValidator{})
}

// RequiredCategories returns the categories that must be validated for the
// given platforms. Core categories are always required; mobile categories
// when iOS or Android is.
func RequiredCategories(p project.PlatformRequirements) []project.Category {
	cats := []project.Category{project.CategoryDatabase, project.CategoryWebBackend, project.CategoryFrontend}
	if p.Mobile() {
		cats = append(cats, project.CategoryMobileDatabase, project.CategoryMobileFramework)
	}
	return cats
}

// Select returns the validators whose capabilities intersect the required
// categories, in registration order.
func (r *Registry) Select(p project.PlatformRequirements) []Validator {
	required := make(map[project.Category]bool)
	for _, c := range RequiredCategories(p) {
		required[c] = true
	}
	var out []Validator
	for _, v := range r.validators {
		for _, c := range v.Capabilities() {
			if required[c] {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// ArchitectureValidator checks the core server-side stack.
type ArchitectureValidator struct{}

func (ArchitectureValidator) Name() string { return "architect" }

func (ArchitectureValidator) Capabilities() []Capability {
	return []Capability{project.CategoryDatabase, project.CategoryWebBackend, project.CategoryFrontend}
}

func (v ArchitectureValidator) Validate(ctx context.Context, stack map[project.Category]string, p project.PlatformRequirements) project.Vote {
	vote := project.Vote{Validator: v.Name(), Approve: true}
	if err := ctx.Err(); err != nil {
		return deny(vote, fmt.Sprintf("validation cancelled: %v", err))
	}
	if p.Web && stack[project.CategoryWebBackend] == "" {
		vote = deny(vote, "web platform required but no web_backend technology was approved")
	}
	return vote
}

// serverDatabases are unsuitable as a standalone on-device store.
var serverDatabases = []string{"postgres", "mysql", "mariadb", "mongodb", "sql server", "mssql", "oracle", "cockroach"}

// offlinePatterns mark a stack entry as paired with an offline/sync layer.
var offlinePatterns = []string{"sync", "offline", "+", "cache", "hybrid", "replica"}

// MobileValidator checks on-device persistence.
type MobileValidator struct{}

func (MobileValidator) Name() string { return "mobile" }

func (MobileValidator) Capabilities() []Capability {
	return []Capability{project.CategoryMobileDatabase, project.CategoryMobileFramework}
}

func (v MobileValidator) Validate(ctx context.Context, stack map[project.Category]string, p project.PlatformRequirements) project.Vote {
	vote := project.Vote{Validator: v.Name(), Approve: true}
	if err := ctx.Err(); err != nil {
		return deny(vote, fmt.Sprintf("validation cancelled: %v", err))
	}
	if !p.Mobile() {
		return vote
	}

	db := stack[project.CategoryMobileDatabase]
	if db == "" {
		return deny(vote, "mobile platform required but no mobile_database technology was approved")
	}
	ldb := strings.ToLower(db)
	if containsAny(ldb, serverDatabases) && !containsAny(ldb, offlinePatterns) {
		vote = deny(vote, fmt.Sprintf("%s is a server database and unsuitable standalone on device; pair it with an offline/sync layer", db))
	}
	return vote
}

func deny(v project.Vote, concern string) project.Vote {
	v.Approve = false
	v.Concerns = append(v.Concerns, concern)
	return v
}
