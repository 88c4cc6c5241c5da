package autocontext

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/david-ria/pmscanv2-sub007/internal/storage"
)

const customRulesKey = "autocontext/custom-rules"

// ErrRuleNotFound is returned by update/delete for an unknown custom rule id.
var ErrRuleNotFound = errors.New("autocontext: rule not found")

// ErrBuiltinImmutable is returned when a mutation targets a built-in rule id.
var ErrBuiltinImmutable = errors.New("autocontext: built-in rules cannot be modified")

// ErrTemplateNotFound is returned for an unknown template id.
var ErrTemplateNotFound = errors.New("autocontext: template not found")

// ValidationError carries the issue list of a rejected rule. Validate itself
// never fails; this error only appears when a mutation refuses to persist an
// invalid rule.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "autocontext: invalid rule: " + strings.Join(e.Issues, "; ")
}

// ParseError reports malformed input to ImportRules. The store is left
// untouched when it occurs.
type ParseError struct {
	cause error
}

func (e *ParseError) Error() string { return "autocontext: parse rules: " + e.cause.Error() }
func (e *ParseError) Unwrap() error { return e.cause }

// RulePatch is a partial rule update; nil fields are left unchanged.
type RulePatch struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Priority    *int        `json:"priority,omitempty"`
	Conditions  *Conditions `json:"conditions,omitempty"`
	Result      *string     `json:"result,omitempty"`
}

// Repository manages user-defined rules layered over the immutable built-in
// set. Custom rules are persisted as one JSON blob in the key-value store;
// every mutation writes the full list and then swaps the in-memory slice, so
// concurrent Evaluate callers always see a consistent list without locks of
// their own.
type Repository struct {
	store    storage.Store
	logger   *slog.Logger
	builtins []Rule

	mu     sync.RWMutex
	custom []Rule
}

// NewRepository loads the persisted custom rules (an absent key means none).
func NewRepository(ctx context.Context, store storage.Store, logger *slog.Logger) (*Repository, error) {
	r := &Repository{
		store:    store,
		logger:   logger,
		builtins: BuiltinRules(),
	}

	blob, err := store.Get(ctx, customRulesKey)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		// First run.
	case err != nil:
		return nil, fmt.Errorf("load custom rules: %w", err)
	default:
		var custom []Rule
		if err := json.Unmarshal(blob, &custom); err != nil {
			return nil, fmt.Errorf("decode custom rules: %w", err)
		}
		r.custom = custom
	}

	logger.Info("rule repository loaded",
		"builtin_rules", len(r.builtins),
		"custom_rules", len(r.custom),
	)
	return r, nil
}

// GetAllRules returns built-ins followed by custom rules in creation order.
// The returned slice is a fresh copy; mutating it does not affect the repository.
func (r *Repository) GetAllRules() []Rule {
	r.mu.RLock()
	custom := r.custom
	r.mu.RUnlock()

	out := make([]Rule, 0, len(r.builtins)+len(custom))
	out = append(out, r.builtins...)
	out = append(out, custom...)
	return out
}

// AddRule validates and persists a new custom rule, returning the new custom
// list. Rules whose id collides with a built-in or an existing custom rule
// are rejected.
func (r *Repository) AddRule(ctx context.Context, rule Rule) ([]Rule, error) {
	if issues := Validate(rule); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	if r.isBuiltinID(rule.ID) {
		return nil, ErrBuiltinImmutable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.custom {
		if existing.ID == rule.ID {
			return nil, fmt.Errorf("autocontext: duplicate rule id %q", rule.ID)
		}
	}

	next := append(copyRules(r.custom), rule)
	if err := r.persistLocked(ctx, next); err != nil {
		return nil, err
	}
	return copyRules(next), nil
}

// UpdateRule applies a patch to one custom rule and persists the result.
func (r *Repository) UpdateRule(ctx context.Context, id string, patch RulePatch) ([]Rule, error) {
	if r.isBuiltinID(id) {
		return nil, ErrBuiltinImmutable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := copyRules(r.custom)
	idx := -1
	for i := range next {
		if next[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrRuleNotFound
	}

	patched := applyPatch(next[idx], patch)
	if issues := Validate(patched); len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}
	next[idx] = patched

	if err := r.persistLocked(ctx, next); err != nil {
		return nil, err
	}
	return copyRules(next), nil
}

// DeleteRule removes one custom rule and persists the result.
func (r *Repository) DeleteRule(ctx context.Context, id string) ([]Rule, error) {
	if r.isBuiltinID(id) {
		return nil, ErrBuiltinImmutable
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := make([]Rule, 0, len(r.custom))
	found := false
	for _, rule := range r.custom {
		if rule.ID == id {
			found = true
			continue
		}
		next = append(next, rule)
	}
	if !found {
		return nil, ErrRuleNotFound
	}

	if err := r.persistLocked(ctx, next); err != nil {
		return nil, err
	}
	return copyRules(next), nil
}

// CreateRuleFromTemplate instantiates a template into a new rule with a fresh
// unique id and the patch merged over the template defaults. The rule is not
// persisted; pass it to AddRule once the caller is done editing.
func (r *Repository) CreateRuleFromTemplate(templateID string, overrides RulePatch) (Rule, error) {
	tpl, ok := templateByID(templateID)
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrTemplateNotFound, templateID)
	}
	rule := applyPatch(tpl.Defaults, overrides)
	rule.ID = "custom-" + uuid.NewString()
	return rule, nil
}

// ExportRules serializes the full effective rule set (built-ins + custom).
func (r *Repository) ExportRules() ([]byte, error) {
	return json.MarshalIndent(r.GetAllRules(), "", "  ")
}

// ImportRules replaces the custom store with the given serialized rule list.
// Entries whose id collides with a built-in are discarded so built-ins can
// never be shadowed. Malformed input fails with a ParseError and leaves the
// store unmodified.
func (r *Repository) ImportRules(ctx context.Context, data []byte) ([]Rule, error) {
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, &ParseError{cause: err}
	}

	next := make([]Rule, 0, len(rules))
	for _, rule := range rules {
		if r.isBuiltinID(rule.ID) {
			r.logger.Warn("import: dropping rule shadowing a built-in", "rule_id", rule.ID)
			continue
		}
		next = append(next, rule)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.persistLocked(ctx, next); err != nil {
		return nil, err
	}
	return copyRules(next), nil
}

// Validate checks a rule for structural problems and returns one message per
// issue. An empty result means the rule is acceptable.
func Validate(rule Rule) []string {
	var issues []string
	if strings.TrimSpace(rule.ID) == "" {
		issues = append(issues, "id must not be empty")
	}
	if strings.TrimSpace(rule.Name) == "" {
		issues = append(issues, "name must not be empty")
	}
	if strings.TrimSpace(rule.Result) == "" {
		issues = append(issues, "result must not be empty")
	}
	if rule.Priority < 0 || rule.Priority > 100 {
		issues = append(issues, fmt.Sprintf("priority %d out of range [0,100]", rule.Priority))
	}

	c := rule.Conditions
	if c.SpeedMinKmh != nil && *c.SpeedMinKmh < 0 {
		issues = append(issues, "speed min must not be negative")
	}
	if c.SpeedMaxKmh != nil && *c.SpeedMaxKmh < 0 {
		issues = append(issues, "speed max must not be negative")
	}
	if c.SpeedMinKmh != nil && c.SpeedMaxKmh != nil && *c.SpeedMinKmh > *c.SpeedMaxKmh {
		issues = append(issues, fmt.Sprintf("speed range min %.1f > max %.1f", *c.SpeedMinKmh, *c.SpeedMaxKmh))
	}
	if (c.HourStart == nil) != (c.HourEnd == nil) {
		issues = append(issues, "hour range requires both start and end")
	}
	if c.HourStart != nil && (*c.HourStart < 0 || *c.HourStart > 23) {
		issues = append(issues, fmt.Sprintf("hour start %d out of range [0,23]", *c.HourStart))
	}
	if c.HourEnd != nil && (*c.HourEnd < 0 || *c.HourEnd > 23) {
		issues = append(issues, fmt.Sprintf("hour end %d out of range [0,23]", *c.HourEnd))
	}
	if c.GPSQuality != nil && !validGPSQuality(*c.GPSQuality) {
		issues = append(issues, fmt.Sprintf("unknown gps quality %q", *c.GPSQuality))
	}
	return issues
}

// persistLocked writes the full custom list, then swaps it in. Callers hold r.mu.
func (r *Repository) persistLocked(ctx context.Context, custom []Rule) error {
	blob, err := json.Marshal(custom)
	if err != nil {
		return fmt.Errorf("encode custom rules: %w", err)
	}
	if err := r.store.Set(ctx, customRulesKey, blob); err != nil {
		return fmt.Errorf("persist custom rules: %w", err)
	}
	r.custom = custom
	return nil
}

func (r *Repository) isBuiltinID(id string) bool {
	for _, b := range r.builtins {
		if b.ID == id {
			return true
		}
	}
	return false
}

func copyRules(rules []Rule) []Rule {
	out := make([]Rule, len(rules))
	copy(out, rules)
	return out
}

func applyPatch(rule Rule, patch RulePatch) Rule {
	if patch.Name != nil {
		rule.Name = *patch.Name
	}
	if patch.Description != nil {
		rule.Description = *patch.Description
	}
	if patch.Priority != nil {
		rule.Priority = *patch.Priority
	}
	if patch.Conditions != nil {
		rule.Conditions = *patch.Conditions
	}
	if patch.Result != nil {
		rule.Result = *patch.Result
	}
	return rule
}
