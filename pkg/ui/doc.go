// Package ui prints colored status lines for the interactive commands.
// Colors are off when stdout is not a terminal.
package ui
