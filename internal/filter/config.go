package filter

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-rollup/internal/coerce"
	"github.com/odyssey-erp/odyssey-rollup/internal/dates"
	"github.com/odyssey-erp/odyssey-rollup/internal/dedup"
	"github.com/odyssey-erp/odyssey-rollup/internal/shared"
)

// Config is a set of optional constraints. Every populated field adds one
// predicate and predicates are ANDed. Blank values and the "all" sentinels
// leave a field unconstrained.
type Config struct {
	Year          string   `json:"year,omitempty" yaml:"year" validate:"omitempty,erp_year"`
	Month         string   `json:"month,omitempty" yaml:"month" validate:"omitempty,erp_month"`
	DateFrom      string   `json:"date_from,omitempty" yaml:"date_from" validate:"omitempty,erp_date"`
	DateTo        string   `json:"date_to,omitempty" yaml:"date_to" validate:"omitempty,erp_date"`
	Store         string   `json:"store,omitempty" yaml:"store" validate:"omitempty,erp_id"`
	Client        string   `json:"client,omitempty" yaml:"client" validate:"omitempty,erp_id"`
	Vendor        string   `json:"vendor,omitempty" yaml:"vendor" validate:"omitempty,erp_id"`
	PaymentMethod string   `json:"payment_method,omitempty" yaml:"payment_method" validate:"omitempty,erp_id"`
	MinAmount     *float64 `json:"min_amount,omitempty" yaml:"min_amount" validate:"omitempty,gte=0"`
	Text          string   `json:"text,omitempty" yaml:"text" validate:"omitempty,max=200"`

	// Consolidation, when set, makes the vendor predicate match every id
	// that shares the requested vendor's representative.
	Consolidation *dedup.ConsolidationMap `json:"-" yaml:"-"`
}

var sentinels = map[string]struct{}{
	"":      {},
	"all":   {},
	"todos": {},
	"todas": {},
	"*":     {},
}

// IsAll reports whether v leaves a constraint unset.
func IsAll(v string) bool {
	_, ok := sentinels[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("erp_year", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if IsAll(s) {
			return true
		}
		y, ok := coerce.Int(s)
		return ok && y >= dates.MinYear && y <= dates.MaxYear
	})
	_ = v.RegisterValidation("erp_month", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if IsAll(s) {
			return true
		}
		m, ok := coerce.Int(s)
		return ok && m >= 1 && m <= 12
	})
	_ = v.RegisterValidation("erp_id", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		if IsAll(s) {
			return true
		}
		id, ok := coerce.Int64(s)
		return ok && id >= 0
	})
	_ = v.RegisterValidation("erp_date", func(fl validator.FieldLevel) bool {
		s := fl.Field().String()
		return IsAll(s) || dates.Parse(s).Valid
	})
	return v
}

// Validate checks field formats and that the date range is ordered.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("%w: %s fails %q", shared.ErrValidation, fe.Field(), fe.Tag())
		}
		return fmt.Errorf("%w: %v", shared.ErrValidation, err)
	}
	if !IsAll(c.DateFrom) && !IsAll(c.DateTo) {
		from, to := dates.Parse(c.DateFrom), dates.Parse(c.DateTo)
		if from.Day().After(to.Day()) {
			return fmt.Errorf("%w: date_from %s is after date_to %s", shared.ErrValidation, c.DateFrom, c.DateTo)
		}
	}
	return nil
}
