package cli

import "fmt"

// Process exit codes shared by every subcommand.
const (
	exitSuccess      = 0
	exitValidation   = 1 // validation issues or error diagnostics
	exitFileNotFound = 2 // workspace or input document missing
	exitNoSchemaRef  = 3 // document declares no $schema reference
	exitFetch        = 4 // schema could not be fetched
	exitRuntime      = 5 // everything else
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
