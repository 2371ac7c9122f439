// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	ColorPrimary = lipgloss.Color("#20B9B4")
	ColorAccent  = lipgloss.Color("#2CD7C7")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorSlate   = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#6C8791")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Step      lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorAccent),
	Step:      lipgloss.NewStyle().Foreground(ColorPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorMuted),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorAccent).Bold(true),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconSkipped Icon = "–"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// Render returns the icon with its color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending, IconSkipped:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// machineTag is the word printed for an icon at PersonalityMachine.
func (i Icon) machineTag() string {
	switch i {
	case IconSuccess:
		return "OK"
	case IconWarning:
		return "WARN"
	case IconError:
		return "FAIL"
	case IconSkipped:
		return "SKIP"
	case IconPending:
		return "PENDING"
	default:
		return "INFO"
	}
}

const boxWidth = 72

// =============================================================================
// Console
// =============================================================================

// Console prints operator-facing output at a fixed personality level.
//
// # Description
//
// Regular output goes to Out. At PersonalityMachine, warnings and errors go
// to Err so scripts can separate them; the richer levels keep everything
// on Out in reading order.
//
// # Thread Safety
//
// Console is not synchronized. canvasdev prints from a single goroutine.
type Console struct {
	Out   io.Writer
	Err   io.Writer
	Level PersonalityLevel
}

// NewConsole creates a Console. Nil writers default to stdout and stderr.
func NewConsole(out, errOut io.Writer, level PersonalityLevel) *Console {
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}
	if level == "" {
		level = PersonalityStandard
	}
	return &Console{Out: out, Err: errOut, Level: level}
}

func (c *Console) machine() bool { return c.Level == PersonalityMachine }
func (c *Console) plain() bool   { return c.Level == PersonalityMinimal }

// Title prints a heading. Only PersonalityFull and PersonalityStandard show it.
func (c *Console) Title(text string) {
	if c.machine() || c.plain() {
		return
	}
	fmt.Fprintln(c.Out, Styles.Title.Render(text))
}

// Step announces the start of a named step.
func (c *Console) Step(name, description string) {
	switch c.Level {
	case PersonalityMachine:
		fmt.Fprintf(c.Out, "STEP %s: %s\n", name, description)
	case PersonalityMinimal:
		fmt.Fprintf(c.Out, "%s %s\n", IconArrow, description)
	case PersonalityFull:
		fmt.Fprintf(c.Out, "\n%s %s %s\n", Styles.Step.Render(string(IconArrow)),
			Styles.Bold.Render(description), Styles.Muted.Render("["+name+"]"))
	default:
		fmt.Fprintf(c.Out, "%s %s\n", Styles.Step.Render(string(IconArrow)), Styles.Bold.Render(description))
	}
}

// Success prints a line with a check mark.
func (c *Console) Success(text string) {
	switch c.Level {
	case PersonalityMachine:
		fmt.Fprintf(c.Out, "OK: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(c.Out, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(c.Out, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning line.
func (c *Console) Warning(text string) {
	switch c.Level {
	case PersonalityMachine:
		fmt.Fprintf(c.Err, "WARN: %s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(c.Out, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(c.Out, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Info prints an informational line.
func (c *Console) Info(text string) {
	if c.machine() || c.plain() {
		fmt.Fprintln(c.Out, text)
		return
	}
	fmt.Fprintf(c.Out, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints secondary text. Hidden at PersonalityMachine.
func (c *Console) Muted(text string) {
	if c.machine() {
		return
	}
	fmt.Fprintln(c.Out, Styles.Muted.Render(text))
}

// Row prints one report row: an icon, a name and a detail.
func (c *Console) Row(icon Icon, name, detail string) {
	switch c.Level {
	case PersonalityMachine:
		fmt.Fprintf(c.Out, "%s\t%s\t%s\n", icon.machineTag(), name, detail)
	case PersonalityMinimal:
		fmt.Fprintf(c.Out, "%s %-22s %s\n", icon, name, detail)
	default:
		fmt.Fprintf(c.Out, "%s %-22s %s\n", icon.Render(), name, Styles.Muted.Render(detail))
	}
}

// Box prints content in a rounded box.
func (c *Console) Box(title, content string) {
	c.box(Styles.Box, Styles.Title, c.Out, "", title, content)
}

// WarningBox prints content in a warning box.
func (c *Console) WarningBox(title, content string) {
	c.box(Styles.WarningBox, Styles.Warning.Bold(true), c.Err, "WARN ", title, content)
}

// ErrorBox prints content in an error box.
func (c *Console) ErrorBox(title, content string) {
	c.box(Styles.ErrorBox, Styles.Error.Bold(true), c.Err, "ERROR ", title, content)
}

func (c *Console) box(style, titleStyle lipgloss.Style, machineOut io.Writer, machinePrefix, title, content string) {
	switch c.Level {
	case PersonalityMachine:
		fmt.Fprintf(machineOut, "%s%s: %s\n", machinePrefix, title, strings.ReplaceAll(content, "\n", "; "))
	case PersonalityMinimal:
		fmt.Fprintf(c.Out, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(c.Out, style.Width(boxWidth).Render(titleStyle.Render(title)+"\n"+content))
	}
}

// Println writes a raw line to Out regardless of level.
func (c *Console) Println(text string) {
	fmt.Fprintln(c.Out, text)
}
