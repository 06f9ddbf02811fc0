// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux provides terminal output styling for the confidence CLI.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders
	ColorDarkest     = lipgloss.Color("#0F1923") // Darkest - badge text

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Success  lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style

	Badge lipgloss.Style
}{
	Title:    lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle: lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Bold:     lipgloss.NewStyle().Bold(true),
	Muted:    lipgloss.NewStyle().Foreground(ColorSlate),
	Success:  lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:  lipgloss.NewStyle().Foreground(ColorWarning),
	Error:    lipgloss.NewStyle().Foreground(ColorError),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),

	Badge: lipgloss.NewStyle().Bold(true).Foreground(ColorDarkest).Padding(0, 1),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with appropriate styling
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Output Modes
// =============================================================================

// Mode controls how much styling the Printer applies.
type Mode string

const (
	// ModeRich uses colours, icons and boxes.
	ModeRich Mode = "rich"

	// ModePlain prints undecorated, line-oriented text for pipes and CI.
	ModePlain Mode = "plain"

	// ModeJSON prints one JSON document per result and nothing else.
	ModeJSON Mode = "json"
)

// ParseMode converts a string to a Mode. Unknown values return ModeRich.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePlain:
		return ModePlain
	case ModeJSON:
		return ModeJSON
	default:
		return ModeRich
	}
}

// DetectMode returns ModeRich when f is a terminal and NO_COLOR is unset,
// ModePlain otherwise.
func DetectMode(f *os.File) Mode {
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	if f != nil && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return ModeRich
	}
	return ModePlain
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled output to one destination.
//
// # Thread Safety
//
// Not safe for concurrent use.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter returns a Printer writing to w in the given mode.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	if w == nil {
		w = os.Stdout
	}
	return &Printer{w: w, mode: mode}
}

// Mode returns the printer's mode.
func (p *Printer) Mode() Mode { return p.mode }

// Writer returns the destination.
func (p *Printer) Writer() io.Writer { return p.w }

func (p *Printer) println(s string) {
	fmt.Fprintln(p.w, s)
}

// Title prints a styled title. Silent in JSON mode.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeJSON:
	case ModePlain:
		p.println(text)
	default:
		p.println(Styles.Title.Render(text))
	}
}

// Success prints a success message with checkmark
func (p *Printer) Success(text string) { p.status(IconSuccess, "OK", Styles.Success, text) }

// Warning prints a warning message
func (p *Printer) Warning(text string) { p.status(IconWarning, "WARN", Styles.Warning, text) }

// Error prints an error message
func (p *Printer) Error(text string) { p.status(IconError, "ERROR", Styles.Error, text) }

func (p *Printer) status(icon Icon, tag string, style lipgloss.Style, text string) {
	switch p.mode {
	case ModeJSON:
	case ModePlain:
		fmt.Fprintf(p.w, "%s: %s\n", tag, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", icon.Render(), style.Render(text))
	}
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	switch p.mode {
	case ModeJSON:
	case ModePlain:
		p.println(text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
	}
}

// Field prints an aligned "label: value" line.
func (p *Printer) Field(label, value string) {
	switch p.mode {
	case ModeJSON:
	case ModePlain:
		fmt.Fprintf(p.w, "%s\t%s\n", label, value)
	default:
		fmt.Fprintf(p.w, "  %s %s\n", Styles.Muted.Render(fmt.Sprintf("%-22s", label)), value)
	}
}

// Box prints text in a rounded box
func (p *Printer) Box(title, content string) {
	p.box(Styles.Box, Styles.Title, title, content)
}

// WarningBox prints text in a warning-styled box
func (p *Printer) WarningBox(title, content string) {
	p.box(Styles.WarningBox, Styles.Warning.Bold(true), title, content)
}

// ErrorBox prints text in an error-styled box
func (p *Printer) ErrorBox(title, content string) {
	p.box(Styles.ErrorBox, Styles.Error.Bold(true), title, content)
}

func (p *Printer) box(frame, head lipgloss.Style, title, content string) {
	switch p.mode {
	case ModeJSON:
	case ModePlain:
		fmt.Fprintf(p.w, "%s: %s\n", title, content)
	default:
		p.println(frame.Width(60).Render(head.Render(title) + "\n" + content))
	}
}

// JSON writes v as indented JSON. In other modes it is a no-op so callers
// can emit both views unconditionally.
func (p *Printer) JSON(v any) error {
	if p.mode != ModeJSON {
		return nil
	}
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// Confidence rendering
// =============================================================================

// Badge renders label on a background of the given hex colour, e.g. the
// gutter colour of a confidence score. Plain mode returns label unchanged.
func (p *Printer) Badge(label, hex string) string {
	if p.mode != ModeRich {
		return label
	}
	return Styles.Badge.Background(lipgloss.Color(hex)).Render(label)
}

// Bar renders v in [0,1] as a fixed-width bar tinted with hex.
func (p *Printer) Bar(v float64, width int, hex string) string {
	if v < 0 || v != v {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	filled := int(v*float64(width) + 0.5)
	if p.mode != ModeRich {
		return fmt.Sprintf("%.3f", v)
	}
	bar := lipgloss.NewStyle().Foreground(lipgloss.Color(hex)).Render(strings.Repeat("█", filled)) +
		Styles.Muted.Render(strings.Repeat("░", width-filled))
	return fmt.Sprintf("%s %.3f", bar, v)
}
