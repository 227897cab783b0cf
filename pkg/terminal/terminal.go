/*
Copyright 2025 Hare Krishna Rai

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/


// Package terminal detects what the output stream can render.
package terminal

import (
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// ColorLevel represents the terminal's color capability
type ColorLevel int

const (
	// ColorLevelNone represents no color support
	ColorLevelNone ColorLevel = iota
	// ColorLevelBasic represents 16-color support
	ColorLevelBasic
	// ColorLevel256 represents 256-color support
	ColorLevel256
	// ColorLevelTrueColor represents 24-bit true color support
	ColorLevelTrueColor
)

const (
	defaultWidth  = 80
	defaultHeight = 24
)

// Terminal describes the capabilities of one output stream
type Terminal struct {
	out        io.Writer
	width      int
	height     int
	colorLevel ColorLevel
	isTTY      bool
	mu         sync.Mutex
}

var (
	defaultTerminal     *Terminal
	defaultTerminalOnce sync.Once
)

// New inspects out and returns its capabilities
func New(out io.Writer) *Terminal {
	t := &Terminal{out: out}
	t.detect()
	return t
}

// Default returns the terminal for stdout
func Default() *Terminal {
	defaultTerminalOnce.Do(func() {
		defaultTerminal = New(os.Stdout)
	})
	return defaultTerminal
}

// detect determines terminal capabilities
func (t *Terminal) detect() {
	if f, ok := t.out.(*os.File); ok {
		t.isTTY = term.IsTerminal(int(f.Fd()))
		if t.isTTY {
			if width, height, err := term.GetSize(int(f.Fd())); err == nil {
				t.width = width
				t.height = height
			}
		}
	}

	t.colorLevel = detectColorLevel()
}

// detectColorLevel determines the color capability from the environment
func detectColorLevel() ColorLevel {
	if os.Getenv("NO_COLOR") != "" {
		return ColorLevelNone
	}

	termEnv := os.Getenv("TERM")
	colorTerm := os.Getenv("COLORTERM")

	if colorTerm == "truecolor" || colorTerm == "24bit" {
		return ColorLevelTrueColor
	}

	if strings.Contains(termEnv, "256") {
		return ColorLevel256
	}

	if strings.HasPrefix(termEnv, "xterm") ||
		strings.HasPrefix(termEnv, "screen") ||
		strings.HasPrefix(termEnv, "tmux") ||
		termEnv == "alacritty" ||
		termEnv == "kitty" {
		return ColorLevel256
	}

	if termEnv != "" && termEnv != "dumb" {
		return ColorLevelBasic
	}

	return ColorLevelNone
}

// Width returns the terminal width
func (t *Terminal) Width() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.width == 0 {
		return defaultWidth
	}
	return t.width
}

// Height returns the terminal height
func (t *Terminal) Height() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.height == 0 {
		return defaultHeight
	}
	return t.height
}

// ColorLevel returns the detected color support level
func (t *Terminal) ColorLevel() ColorLevel {
	return t.colorLevel
}

// IsTTY reports whether the output is an interactive terminal
func (t *Terminal) IsTTY() bool {
	return t.isTTY
}

// ColorEnabled reports whether ANSI colors should be written
func (t *Terminal) ColorEnabled() bool {
	return t.isTTY && t.colorLevel > ColorLevelNone
}

// Truncate shortens text to maxWidth, or to the terminal width when maxWidth is not positive
func (t *Terminal) Truncate(text string, maxWidth int) string {
	if maxWidth <= 0 {
		maxWidth = t.Width()
	}
	runes := []rune(text)
	if len(runes) <= maxWidth {
		return text
	}
	if maxWidth < 4 {
		return string(runes[:maxWidth])
	}
	return string(runes[:maxWidth-3]) + "..."
}

// Wrap splits text into lines of at most width columns
func (t *Terminal) Wrap(text string, width int) []string {
	if width <= 0 {
		width = t.Width()
	}

	var lines []string
	current := ""
	for _, word := range strings.Fields(text) {
		switch {
		case current == "":
			current = word
		case len(current)+1+len(word) <= width:
			current += " " + word
		default:
			lines = append(lines, current)
			current = word
		}
	}
	if current != "" {
		lines = append(lines, current)
	}
	return lines
}
