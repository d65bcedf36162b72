package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/AlibekovAA/worktime/backend/internal/common/constants"
)

var validate = validator.New()

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if err := validate.Var(email, fmt.Sprintf("required,email,max=%d", constants.EmailMaxLength)); err != nil {
		return validationError(fmt.Errorf("email: %w", err))
	}
	return nil
}

func validatePassword(password string) error {
	if len(password) < constants.PasswordMinLength {
		return validationError(fmt.Errorf("password must be at least %d characters", constants.PasswordMinLength))
	}
	// bcrypt ignores everything past 72 bytes.
	if len(password) > constants.PasswordMaxLength {
		return validationError(fmt.Errorf("password must be at most %d bytes", constants.PasswordMaxLength))
	}
	return nil
}

func validateCompanyName(name string) error {
	n := utf8.RuneCountInString(name)
	if n < constants.CompanyNameMinLength || n > constants.CompanyNameMaxLength {
		return validationError(fmt.Errorf("company name must be %d to %d characters",
			constants.CompanyNameMinLength, constants.CompanyNameMaxLength))
	}
	return nil
}

func validateRegistration(input RegisterInput) error {
	if err := validateEmail(input.Email); err != nil {
		return err
	}
	if err := validatePassword(input.Password); err != nil {
		return err
	}
	return validateCompanyName(input.CompanyName)
}
