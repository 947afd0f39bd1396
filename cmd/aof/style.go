package main

import (
	"os"

	"github.com/fatih/color"
	"golang.org/x/term"
)

var (
	green = color.New(color.FgGreen).SprintFunc()
	red   = color.New(color.FgRed).SprintFunc()
	gray  = color.New(color.FgHiBlack).SprintFunc()
)

// isTTY reports whether stdout is an interactive terminal, gating color
// output so piped/CI invocations get plain text.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func ok(msg string) string {
	if !isTTY() {
		return "OK: " + msg
	}
	return green("✅ " + msg)
}

func fail(msg string) string {
	if !isTTY() {
		return "ERROR: " + msg
	}
	return red("❌ " + msg)
}
