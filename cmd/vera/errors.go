package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ternarybob/vera/internal/interfaces"
)

// Exit codes
const (
	exitOK        = 0
	exitUsage     = 1
	exitData      = 2
	exitAmbiguous = 3
)

// usageError marks bad flags, arguments or configuration
type usageError struct {
	err error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

// asUsageError marks cobra's command lookup failures as usage errors.
// Flag errors are already wrapped by the flag error func.
func asUsageError(err error) error {
	if err == nil || errors.As(err, new(usageError)) {
		return err
	}
	if strings.HasPrefix(err.Error(), "unknown command ") {
		return usageError{err}
	}
	return err
}

// exitCode maps an error to the process exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, interfaces.ErrAmbiguousSymbol):
		return exitAmbiguous
	case errors.As(err, new(usageError)):
		return exitUsage
	default:
		return exitData
	}
}

// exactArgs is cobra.ExactArgs reporting a usage error
func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageError{fmt.Errorf("%s accepts %d arg(s), received %d", cmd.CommandPath(), n, len(args))}
		}
		return nil
	}
}

// minArgs is cobra.MinimumNArgs reporting a usage error
func minArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return usageError{fmt.Errorf("%s requires at least %d arg(s), received %d", cmd.CommandPath(), n, len(args))}
		}
		return nil
	}
}
