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
	bold  = color.New(color.Bold).SprintFunc()
)

// isTTY reports whether stdout is an interactive terminal.
func isTTY() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func failure(msg string) string {
	return red("✗ " + msg)
}

func success(msg string) string {
	return green("✓ " + msg)
}
