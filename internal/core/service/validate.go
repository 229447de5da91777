package service

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/fleetops/fleetbot/internal/core/domain"
)

var validate = validator.New()

// Field rules for free-text dialog input.
const (
	ruleGroupID       = "required,max=255,printascii,excludesall=:/"
	ruleProviderToken = "required,max=255,alphanum"
	ruleLabel         = "max=255"
	rulePrincipalID   = "required,number,max=32"
	ruleServerID      = "required,number,max=32"
	ruleServerName    = "max=255"
)

// checkField trims the input and validates it against rule.
func checkField(value, rule, field string) (string, error) {
	value = strings.TrimSpace(value)
	if err := validate.Var(value, rule); err != nil {
		return "", fmt.Errorf("%w: %s", domain.ErrInvalidInput, field)
	}
	return value, nil
}
