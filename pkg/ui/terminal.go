// Package ui renders catlux's terminal output: styled messages, the quota
// bar, catalog and plan listings, per-item progress and the batch report.
package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes styled output to a terminal
type Printer struct {
	out io.Writer
}

// NewPrinter creates a printer writing to w
func NewPrinter(w io.Writer) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{out: w}
}

var std = NewPrinter(os.Stdout)

// Title prints a heading
func (p *Printer) Title(msg string) {
	fmt.Fprintln(p.out, titleStyle.Render(msg))
}

// Error prints an error message, optionally followed by its cause
func (p *Printer) Error(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf("%s: %v", msg, args[0])
	}
	fmt.Fprintln(p.out, errorStyle.Render("✗ "+msg))
}

// Success prints a success message
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.out, successStyle.Render("✓ "+msg))
}

// Info prints a label and its value
func (p *Printer) Info(label, value string) {
	fmt.Fprintf(p.out, "%s: %s\n", labelStyle.Render(label), valueStyle.Render(value))
}

// Warning prints a warning message, optionally followed by its cause
func (p *Printer) Warning(msg string, args ...interface{}) {
	if len(args) > 0 {
		msg = fmt.Sprintf("%s: %v", msg, args[0])
	}
	fmt.Fprintln(p.out, warningStyle.Render("⚠ "+msg))
}

// Highlight prints an emphasized message
func (p *Printer) Highlight(msg string) {
	fmt.Fprintln(p.out, highlightStyle.Render(msg))
}

// Dim prints secondary text
func (p *Printer) Dim(msg string) {
	fmt.Fprintln(p.out, dimStyle.Render(msg))
}

func PrintError(msg string, args ...interface{})   { std.Error(msg, args...) }
func PrintSuccess(msg string)                      { std.Success(msg) }
func PrintInfo(label, value string)                { std.Info(label, value) }
func PrintWarning(msg string, args ...interface{}) { std.Warning(msg, args...) }
