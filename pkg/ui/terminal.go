package ui

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/term"
)

// Logo printed by interactive commands
const Logo = `
  ╔═══════════════════════════════════════════╗
  ║  likesync · liked media, synced to disk   ║
  ╚═══════════════════════════════════════════╝
`

var (
	mu      sync.Mutex
	out     io.Writer = os.Stdout
	noColor           = !term.IsTerminal(int(os.Stdout.Fd()))
	quiet   bool
)

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
		mu.Lock()
		plain := noColor
		mu.Unlock()
		if plain {
			return text
		}
		return fmt.Sprintf(colorString, text)
	}
}

// SetOutput redirects all printing to w
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

// SetNoColor disables ANSI colors
func SetNoColor(v bool) {
	mu.Lock()
	defer mu.Unlock()
	noColor = v
}

// SetQuietMode suppresses everything but errors
func SetQuietMode(v bool) {
	mu.Lock()
	defer mu.Unlock()
	quiet = v
}

func emit(errorLine bool, s string) {
	mu.Lock()
	w, q := out, quiet
	mu.Unlock()
	if q && !errorLine {
		return
	}
	fmt.Fprint(w, s)
}

// PrintLogo prints the logo with color
func PrintLogo() {
	emit(false, Cyan(Logo))
}

// PrintError prints an error message in red
func PrintError(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	emit(true, Red(msg)+"\n")
}

// PrintSuccess prints a success message in green
func PrintSuccess(msg string) {
	emit(false, Green(msg)+"\n")
}

// PrintInfo prints a label and value
func PrintInfo(label string, value string) {
	emit(false, fmt.Sprintf("%s: %s\n", Cyan(label), Yellow(value)))
}

// PrintWarning prints a warning message in yellow
func PrintWarning(msg string, args ...interface{}) {
	if len(args) > 0 && fmt.Sprint(args[0]) != "" {
		msg = msg + ": " + fmt.Sprint(args[0])
	}
	emit(false, Yellow(msg)+"\n")
}

// PrintHighlight prints a highlighted message in magenta
func PrintHighlight(msg string) {
	emit(false, Magenta(msg)+"\n")
}
