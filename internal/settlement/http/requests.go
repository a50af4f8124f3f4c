package settlementhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/settlement/internal/platform/httpx"
)

type queryRequest struct {
	Period string `json:"period" validate:"omitempty,oneof=all daily weekly monthly yearly"`
	From   string `json:"from" validate:"required_with=To,omitempty,datetime=2006-01-02"`
	To     string `json:"to" validate:"required_with=From,omitempty,datetime=2006-01-02"`
	Page   int    `json:"page" validate:"min=0"`
	Size   int    `json:"size" validate:"min=0,max=500"`
	Status string `json:"status" validate:"omitempty,max=32"`
}

type periodRequest struct {
	Period string `json:"period" validate:"required,oneof=all daily weekly monthly yearly"`
}

type rangeRequest struct {
	From string `json:"from" validate:"required,datetime=2006-01-02"`
	To   string `json:"to" validate:"required,datetime=2006-01-02"`
}

type statusRequest struct {
	Status string `json:"status" validate:"omitempty,max=32"`
}

type pageRequest struct {
	PageIndex *int `json:"pageIndex" validate:"required,min=0"`
}

type pageSizeRequest struct {
	PageSize int `json:"pageSize" validate:"required,min=1,max=500"`
}

// drillRequest accepts the token either as a string ("2025-03" or an encoded
// week object) or as the week object itself.
type drillRequest struct {
	Token json.RawMessage `json:"token" validate:"required"`
}

func (d drillRequest) token() string {
	raw := strings.TrimSpace(string(d.Token))
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s
	}
	return raw
}

// validationFailure turns validator output into an httpx.ErrValidation error.
func validationFailure(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %v", httpx.ErrValidation, err)
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, describeField(fe))
	}
	return fmt.Errorf("%w: %s", httpx.ErrValidation, strings.Join(parts, "; "))
}

func describeField(fe validator.FieldError) string {
	field := fe.Field()
	switch fe.Tag() {
	case "required", "required_with":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "datetime":
		return field + " must be a YYYY-MM-DD date"
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	}
	return field + " is invalid"
}
