package monitor

import "errors"

// Failure classes shared by every task. Callers wrap one of these with
// fmt.Errorf("...: %w", ...) so the process exit status can report the class.
var (
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrCommandFailure      = errors.New("command failed")
	ErrFilesystem          = errors.New("filesystem error")
	ErrNotificationFailure = errors.New("notification failed")
)

// Exit statuses returned by ExitCode.
const (
	ExitOK           = 0
	ExitUnknown      = 1
	ExitInvalidArg   = 2
	ExitCommand      = 3
	ExitFilesystem   = 4
	ExitNotification = 5
)

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, ErrInvalidArgument):
		return ExitInvalidArg
	case errors.Is(err, ErrCommandFailure):
		return ExitCommand
	case errors.Is(err, ErrFilesystem):
		return ExitFilesystem
	case errors.Is(err, ErrNotificationFailure):
		return ExitNotification
	default:
		return ExitUnknown
	}
}
