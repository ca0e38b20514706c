package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-version"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = v.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
			d, err := time.ParseDuration(fl.Field().String())
			return err == nil && d > 0
		})
		_ = v.RegisterValidation("version", func(fl validator.FieldLevel) bool {
			_, err := version.NewVersion(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate
}

// Validate checks struct constraints, the schema version, name uniqueness and
// that every dependency names an enabled component.
func (f *ApplicationFile) Validate() error {
	if f.SchemaVersion != SchemaVersion {
		return NewConfigError(fmt.Sprintf(
			"unsupported schema_version: %q (expected %q)",
			f.SchemaVersion, SchemaVersion,
		))
	}

	if err := structValidator().Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return NewConfigError(describeFieldError(verrs[0]))
		}
		return NewConfigError(err.Error())
	}

	byName := make(map[string]ComponentConfig, len(f.Components))
	for i, c := range f.Components {
		if _, dup := byName[c.Name]; dup {
			return NewConfigError(fmt.Sprintf("components[%d]: duplicate component name %q", i, c.Name))
		}
		byName[c.Name] = c
	}

	for i, c := range f.Components {
		if !c.Enabled {
			continue
		}
		for _, dep := range c.DependsOn {
			target, ok := byName[dep]
			switch {
			case dep == c.Name:
				return NewConfigError(fmt.Sprintf("components[%d] (%s): cannot depend on itself", i, c.Name))
			case !ok:
				return NewConfigError(fmt.Sprintf("components[%d] (%s): depends on unknown component %q", i, c.Name, dep))
			case !target.Enabled:
				return NewConfigError(fmt.Sprintf("components[%d] (%s): depends on disabled component %q", i, c.Name, dep))
			}
		}
	}

	return nil
}

func describeFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "ApplicationFile.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s: is required", field)
	case "duration":
		return fmt.Sprintf("%s: %q is not a positive duration", field, fe.Value())
	case "version":
		return fmt.Sprintf("%s: %q is not a valid version", field, fe.Value())
	default:
		return fmt.Sprintf("%s: failed %q validation", field, fe.Tag())
	}
}
