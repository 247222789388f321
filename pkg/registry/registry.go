// Package registry stores and retrieves versioned work definitions.
package registry

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/dukex/parley/pkg/models"
	"github.com/dukex/parley/pkg/persistence"
	"github.com/go-playground/validator/v10"
)

// ErrInvalidDefinition is returned when a definition fails structural validation.
var ErrInvalidDefinition = errors.New("invalid work definition")

// Registry is the definition registry. Definitions are immutable: a change is a new version.
type Registry struct {
	repo     persistence.DefinitionRepository
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a registry over a definition repository.
func New(repo persistence.DefinitionRepository, logger *slog.Logger) *Registry {
	return &Registry{
		repo:     repo,
		validate: NewValidator(),
		logger:   logger.With("module", "registry"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// NewValidator returns a validator that also understands the "semver" tag.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	_ = v.RegisterValidation("semver", func(fl validator.FieldLevel) bool {
		_, err := semver.StrictNewVersion(fl.Field().String())

		return err == nil
	})

	return v
}

// Register validates def and stores it as a new immutable version of accountID.
func (r *Registry) Register(ctx context.Context, accountID string, def *models.WorkDefinition) (*models.WorkDefinition, error) {
	if accountID == "" {
		return nil, fmt.Errorf("%w: account id is required", ErrInvalidDefinition)
	}

	stored := *def
	stored.ID = ""
	stored.AccountID = accountID
	stored.CreatedAt = r.now()

	if err := r.Validate(&stored); err != nil {
		return nil, err
	}

	if err := r.repo.Insert(ctx, &stored); err != nil {
		return nil, fmt.Errorf("failed to register %s: %w", stored.Key(), err)
	}

	r.logger.InfoContext(ctx, "work definition registered",
		"account_id", accountID,
		"definition", stored.Key(),
		"definition_id", stored.ID,
	)

	return &stored, nil
}

// Validate checks the structure of a definition: tags, FSM references, slot uniqueness
// and the binding attribute.
func (r *Registry) Validate(def *models.WorkDefinition) error {
	if err := r.validate.Struct(def); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, err.Error())
	}

	var problems []string

	states := make(map[string]bool, len(def.FSM.States))
	for _, s := range def.FSM.States {
		if s == models.WildcardState {
			problems = append(problems, "state name * is reserved")
		}

		states[s] = true
	}

	if !states[def.InitialState()] {
		problems = append(problems, fmt.Sprintf("initial state %q is not a declared state", def.InitialState()))
	}

	for _, t := range def.FSM.Transitions {
		if t.From != models.WildcardState && !states[t.From] {
			problems = append(problems, fmt.Sprintf("transition source %q is not a declared state", t.From))
		}

		if !states[t.To] && !models.IsTerminal(t.To) {
			problems = append(problems, fmt.Sprintf("transition target %q is not a declared state", t.To))
		}
	}

	paths := make(map[string]bool, len(def.Slots))
	for _, s := range def.Slots {
		if paths[s.Path] {
			problems = append(problems, fmt.Sprintf("slot %q declared twice", s.Path))
		}

		paths[s.Path] = true
	}

	if def.BindingAttribute != "" && !paths[def.BindingAttribute] {
		problems = append(problems, fmt.Sprintf("binding attribute %q is not a declared slot", def.BindingAttribute))
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidDefinition, strings.Join(problems, "; "))
	}

	return nil
}

// Get returns the exact version, or nil when absent.
func (r *Registry) Get(ctx context.Context, accountID, typeID, version string) (*models.WorkDefinition, error) {
	def, err := r.repo.Get(ctx, accountID, typeID, version)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s@%s: %w", typeID, version, err)
	}

	return def, nil
}

// GetByID resolves an internal definition id, or nil when absent.
func (r *Registry) GetByID(ctx context.Context, id string) (*models.WorkDefinition, error) {
	def, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get definition %s: %w", id, err)
	}

	return def, nil
}

// GetLatest returns the highest semantic version of typeID, or nil when none exists.
func (r *Registry) GetLatest(ctx context.Context, accountID, typeID string) (*models.WorkDefinition, error) {
	versions, err := r.repo.ListVersions(ctx, accountID, typeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions of %s: %w", typeID, err)
	}

	return Latest(versions), nil
}

// ListLatest returns the highest version of every type of an account, ordered by type id.
func (r *Registry) ListLatest(ctx context.Context, accountID string) ([]*models.WorkDefinition, error) {
	all, err := r.repo.ListAll(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("failed to list definitions: %w", err)
	}

	byType := make(map[string][]*models.WorkDefinition)
	for _, def := range all {
		byType[def.TypeID] = append(byType[def.TypeID], def)
	}

	latest := make([]*models.WorkDefinition, 0, len(byType))
	for _, defs := range byType {
		latest = append(latest, Latest(defs))
	}

	slices.SortFunc(latest, func(a, b *models.WorkDefinition) int {
		return cmp.Compare(a.TypeID, b.TypeID)
	})

	return latest, nil
}

// Lookup maps a logical type id to the internal id of its latest version.
func (r *Registry) Lookup(ctx context.Context, accountID, typeID string) (string, error) {
	def, err := r.GetLatest(ctx, accountID, typeID)
	if err != nil {
		return "", err
	}

	if def == nil {
		return "", &persistence.DefinitionError{Op: "Lookup", AccountID: accountID, TypeID: typeID, Version: "latest", Err: persistence.ErrDefinitionNotFound}
	}

	return def.ID, nil
}

// Latest picks the highest version by semantic-version comparison, so 10.0.0 beats 9.0.0.
// Versions that do not parse rank below every valid one.
func Latest(defs []*models.WorkDefinition) *models.WorkDefinition {
	var (
		best    *models.WorkDefinition
		bestVer *semver.Version
	)

	for _, def := range defs {
		v, err := semver.NewVersion(def.Version)
		if err != nil {
			if best == nil {
				best = def
			}

			continue
		}

		if bestVer == nil || v.GreaterThan(bestVer) {
			best, bestVer = def, v
		}
	}

	return best
}
