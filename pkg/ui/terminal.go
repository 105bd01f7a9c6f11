package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// ASCIILogo is printed at the top of interactive runs
const ASCIILogo = `
    ╔════════════════════════════════════════════════════════╗
    ║   ___   _   _    _    ___ _____   __  _______ ___ ___  ║
    ║  / __| /_\ | |  | |  | __| _ \ \ / / |_  /_ _| _ \     ║
    ║ | (_ |/ _ \| |__| |__| _||   /\ V /   / / | ||  _/     ║
    ║  \___/_/ \_\____|____|___|_|_\ |_|   /___|___|_|       ║
    ║          scroll, collect, archive                      ║
    ╚════════════════════════════════════════════════════════╝
`

var (
	mu     sync.RWMutex
	out    io.Writer = os.Stdout
	colors           = detectColors()
	quiet  bool
)

func detectColors() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// SetOutput redirects all terminal output. Colors are turned off unless the
// writer is a terminal.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	f, ok := w.(*os.File)
	colors = ok && f == os.Stdout && detectColors()
}

// SetColors forces colors on or off
func SetColors(on bool) {
	mu.Lock()
	defer mu.Unlock()
	colors = on
}

// SetQuiet suppresses everything but errors
func SetQuiet(q bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = q
}

// IsQuietMode reports whether output is suppressed
func IsQuietMode() bool {
	mu.RLock()
	defer mu.RUnlock()
	return quiet
}

// IsInteractive reports whether stdout is a terminal
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func writer() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return out
}

// Color functions for terminal output
var (
	Cyan    = colorize("\033[36m%s\033[0m")
	Yellow  = colorize("\033[33m%s\033[0m")
	Red     = colorize("\033[31m%s\033[0m")
	Green   = colorize("\033[32m%s\033[0m")
	Magenta = colorize("\033[35m%s\033[0m")
	Dim     = colorize("\033[2m%s\033[0m")
)

// colorize returns a function that wraps text with ANSI color codes
func colorize(colorString string) func(string) string {
	return func(text string) string {
		mu.RLock()
		on := colors
		mu.RUnlock()
		if !on {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// PrintLogo prints the ASCII logo with color
func PrintLogo() {
	if IsQuietMode() {
		return
	}
	fmt.Fprint(writer(), Cyan(ASCIILogo))
}

// PrintError prints an error message in red. Errors are printed in quiet mode too.
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(writer(), Red(msg))
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(writer(), Green(msg))
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintf(writer(), "%s: %s\n", Cyan(label), Yellow(value))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if IsQuietMode() {
		return
	}
	if len(args) > 0 {
		msg = msg + ": " + fmt.Sprintf("%v", args[0])
	}
	fmt.Fprintln(writer(), Yellow(msg))
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	if IsQuietMode() {
		return
	}
	fmt.Fprintln(writer(), Magenta(msg))
}
