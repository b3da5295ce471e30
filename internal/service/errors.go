package service

import (
	"fmt"
	"net/http"
)

// AuthError is the tagged error returned by every command handler. Handlers
// never panic or throw; the HTTP layer translates Code/Status into the wire
// response and nothing richer ever leaves the service.
type AuthError struct {
	Code        string
	Description string
	Status      int
	// Details carries machine-readable context for conflict errors
	// (violation list, slug suggestions). Unauthorized errors never
	// populate it.
	Details map[string]any
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

func newAuthError(code, desc string, status int) *AuthError {
	return &AuthError{Code: code, Description: desc, Status: status}
}

// errInvalidCredentials is the single generic answer for every pre-issuance
// login failure. Which check failed goes to the audit trail only.
func errInvalidCredentials() *AuthError {
	return newAuthError("invalid_credentials", "Invalid credentials.", http.StatusUnauthorized)
}

func errAccountInactive() *AuthError {
	return newAuthError("account_inactive", "Account is not active.", http.StatusUnauthorized)
}

func errOrgInactive() *AuthError {
	return newAuthError("organization_inactive", "Organization is not active.", http.StatusUnauthorized)
}

// errUnauthorized is the uniform refresh/logout failure; the categorized
// reason is audited, never surfaced.
func errUnauthorized() *AuthError {
	return newAuthError("unauthorized", "Unauthorized.", http.StatusUnauthorized)
}

func errValidation(violations []string) *AuthError {
	e := newAuthError("validation_failed", "Request validation failed.", http.StatusBadRequest)
	e.Details = map[string]any{"errors": violations}
	return e
}

func errConflict(desc string, details map[string]any) *AuthError {
	e := newAuthError("conflict", desc, http.StatusConflict)
	e.Details = details
	return e
}

func errSignupFailed() *AuthError {
	return newAuthError("signup_failed", "Signup failed.", http.StatusInternalServerError)
}

func errAuthFailed() *AuthError {
	return newAuthError("auth_failed", "Authentication failed.", http.StatusInternalServerError)
}
