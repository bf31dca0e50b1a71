package config

import (
	"errors"
	"fmt"
	"os"
)

// ValidationError reports a single invalid config field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// validModels lists the Claude model names accepted for the planner.
var validPlannerModels = map[string]bool{
	"opus":   true,
	"sonnet": true,
	"haiku":  true,
}

// Validate checks the config for internal consistency. It collects all
// problems rather than stopping at the first.
func (c *FactoryConfig) Validate() error {
	var errs []error

	if c.RepoRoot == "" {
		errs = append(errs, &ValidationError{Field: "repo_root", Message: "must be set"})
	}
	if c.TrunkBranch == "" {
		errs = append(errs, &ValidationError{Field: "trunk_branch", Message: "must not be empty"})
	}
	if c.MaxWorkers < 1 {
		errs = append(errs, &ValidationError{Field: "max_workers", Message: "must be at least 1"})
	}
	if c.RetryLimit < 0 {
		errs = append(errs, &ValidationError{Field: "retry_limit", Message: "must not be negative"})
	}
	if c.PlannerInterval < 0 {
		errs = append(errs, &ValidationError{Field: "planner_interval", Message: "must not be negative"})
	}
	if !validPlannerModels[c.PlannerModel] {
		errs = append(errs, &ValidationError{
			Field:   "planner_model",
			Message: fmt.Sprintf("unknown model %q (expected opus, sonnet, or haiku)", c.PlannerModel),
		})
	}

	total := 0
	for _, cap := range c.SlotCapacities() {
		if cap < 0 {
			errs = append(errs, &ValidationError{Field: "slots", Message: "capacities must not be negative"})
			break
		}
		total += cap
	}
	if total == 0 {
		errs = append(errs, &ValidationError{Field: "slots", Message: "at least one slot must have capacity"})
	}

	for _, path := range c.PrdFiles {
		if _, err := os.Stat(path); err != nil {
			errs = append(errs, &ValidationError{
				Field:   "prd_files",
				Message: fmt.Sprintf("%s: %v", path, err),
			})
		}
	}

	return errors.Join(errs...)
}
