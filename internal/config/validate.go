package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/schema"

	schemasassets "github.com/3leaps/rqlens/internal/assets/schemas"
)

// ErrInvalidConfig is matched by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

var (
	validatorOnce sync.Once
	validator     *schema.Validator
	validatorErr  error
)

// ValidationError is one schema violation.
type ValidationError struct {
	// Path is the JSON pointer of the offending value, e.g. "/jobs/page_size".
	Path    string
	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors collects every violation found in one pass.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 1 {
		return e[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "configuration has %d errors:", len(e))
	for _, err := range e {
		b.WriteString("\n  - ")
		b.WriteString(err.Error())
	}
	return b.String()
}

func (e ValidationErrors) Unwrap() error {
	return ErrInvalidConfig
}

// Validate checks cfg against the embedded configuration schema.
func Validate(cfg *Config) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("serialize config for validation: %w", err)
	}

	v, err := getValidator()
	if err != nil {
		return err
	}
	diags, err := v.ValidateJSON(data)
	if err != nil {
		return fmt.Errorf("schema validation error: %w", err)
	}

	if errs := collectErrors(diags); len(errs) > 0 {
		return errs
	}
	return nil
}

// collectErrors keeps error diagnostics. A diagnostic without a pointer only
// summarizes the others and is kept when nothing more specific exists.
func collectErrors(diags []schema.Diagnostic) ValidationErrors {
	var errs, rootErrs ValidationErrors
	for _, d := range diags {
		if d.Severity != schema.SeverityError {
			continue
		}
		e := ValidationError{Path: d.Pointer, Message: d.Message}
		if e.Path == "" {
			rootErrs = append(rootErrs, e)
			continue
		}
		errs = append(errs, e)
	}
	if len(errs) == 0 {
		return rootErrs
	}
	return errs
}

func getValidator() (*schema.Validator, error) {
	validatorOnce.Do(func() {
		if len(schemasassets.ConfigSchema) == 0 {
			validatorErr = fmt.Errorf("%w: embedded config schema is empty", ErrInvalidConfig)
			return
		}
		validator, validatorErr = schema.NewValidator(schemasassets.ConfigSchema)
		if validatorErr != nil {
			validatorErr = fmt.Errorf("compile config schema: %w", validatorErr)
		}
	})
	return validator, validatorErr
}
