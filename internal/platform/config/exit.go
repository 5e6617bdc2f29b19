package config

import (
	"fmt"
	"os"
	"strings"
)

// Exitf reports a fatal configuration or startup error on stderr and
// terminates with exit code 1. The server and seed mains call it when
// argument parsing fails before logging is set up.
func Exitf(format string, args ...any) {
	if !strings.HasSuffix(format, "\n") {
		format += "\n"
	}
	fmt.Fprintf(os.Stderr, format, args...)
	os.Exit(1)
}
