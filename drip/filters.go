package drip

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"rankitpro/models"
)

var validate = validator.New()

// ConfigError lists every problem found in a drip config
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", ErrInvalidConfig, strings.Join(e.Problems, "; "))
}

func (e *ConfigError) Unwrap() error { return ErrInvalidConfig }

// ValidateConfig checks field ranges and the rules that span several fields.
// A config that skips the initial request but enables follow-ups is valid.
func ValidateConfig(cfg *models.ReviewDripConfig) error {
	var problems []string

	if err := validate.Struct(cfg); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %s", fieldPath(fe), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	followUps := []struct {
		name  string
		stage models.FollowUpStage
	}{
		{"first_follow_up", cfg.FirstFollowUp},
		{"second_follow_up", cfg.SecondFollowUp},
		{"final_follow_up", cfg.FinalFollowUp},
	}
	for _, f := range followUps {
		if f.stage.DelayDays < 0 {
			problems = append(problems, f.name+" delay must not be negative")
		}
		if f.stage.Enabled && (f.stage.Message == nil || strings.TrimSpace(*f.stage.Message) == "") {
			problems = append(problems, f.name+" is enabled but has no message")
		}
	}

	if cfg.EnableInitialRequest && strings.TrimSpace(cfg.InitialMessage) == "" {
		problems = append(problems, "initial request is enabled but has no message")
	}
	if cfg.IsActive && !cfg.EnableEmailRequests && !cfg.EnableSmsRequests {
		problems = append(problems, "an active config needs at least one channel")
	}
	for i, t := range cfg.EligibleServiceTypes {
		if strings.TrimSpace(t) == "" {
			problems = append(problems, fmt.Sprintf("eligible_service_types[%d] is empty", i))
		}
	}

	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		ns = ns[i+1:]
	}
	return ns
}

// CheckEligibility applies the company's targeting filters to a review request
func CheckEligibility(cfg *models.ReviewDripConfig, req *models.ReviewRequest) error {
	if req.InvoiceAmount < cfg.MinInvoiceAmount {
		return fmt.Errorf("%w: invoice amount %.2f is below the minimum %.2f",
			ErrNotEligible, req.InvoiceAmount, cfg.MinInvoiceAmount)
	}

	if len(cfg.EligibleServiceTypes) > 0 {
		matched := false
		for _, t := range cfg.EligibleServiceTypes {
			if strings.EqualFold(strings.TrimSpace(t), strings.TrimSpace(req.ServiceType)) {
				matched = true
				break
			}
		}
		if !matched {
			return fmt.Errorf("%w: service type %q is not targeted", ErrNotEligible, req.ServiceType)
		}
	}

	if cfg.PositiveExperiencesOnly && req.Sentiment != models.SentimentPositive {
		return fmt.Errorf("%w: only positive experiences are targeted, got %q", ErrNotEligible, req.Sentiment)
	}
	return nil
}
