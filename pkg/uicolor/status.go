// Package uicolor renders pass/fail status lines for the CLI,
// colorizing when standard output is a terminal.
package uicolor

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

var (
	ok   = color.New(color.FgGreen, color.Bold)
	fail = color.New(color.FgRed, color.Bold)
	info = color.New(color.FgCyan)
)

// OK prints a green checkmark line to w.
func OK(w io.Writer, format string, args ...interface{}) {
	ok.Fprint(w, "✓ ")
	fmt.Fprintf(w, format+"\n", args...)
}

// Fail prints a red cross line to w.
func Fail(w io.Writer, format string, args ...interface{}) {
	fail.Fprint(w, "✗ ")
	fmt.Fprintf(w, format+"\n", args...)
}

// Info prints a cyan informational line to w.
func Info(w io.Writer, format string, args ...interface{}) {
	info.Fprint(w, "• ")
	fmt.Fprintf(w, format+"\n", args...)
}

func init() {
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd()) && !isatty.IsCygwinTerminal(os.Stdout.Fd())
}
