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
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

const spinnerInterval = 80 * time.Millisecond

// Spinner animates a single status line while a wait is in progress.
//
// # Description
//
// Only PersonalityFull and PersonalityStandard animate. At the other
// levels Start and Stop do nothing and progress is left to the report, so
// logs and pipes never receive carriage returns.
//
// # Thread Safety
//
// Progress may be called from any goroutine while the spinner runs.
type Spinner struct {
	out     io.Writer
	message string
	animate bool

	mu      sync.Mutex
	running bool
	detail  string
	stop    chan struct{}
	done    chan struct{}
}

// Spinner creates a spinner bound to the console's output and level.
func (c *Console) Spinner(message string) *Spinner {
	return &Spinner{
		out:     c.Out,
		message: message,
		animate: c.Level == PersonalityFull || c.Level == PersonalityStandard,
	}
}

// Start begins the animation. Starting twice is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || !s.animate {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.loop(s.stop, s.done)
}

func (s *Spinner) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(spinnerInterval)
	defer ticker.Stop()

	for frame := 0; ; frame = (frame + 1) % len(spinnerFrames) {
		select {
		case <-stop:
			fmt.Fprint(s.out, "\r\033[K")
			return
		case <-ticker.C:
			fmt.Fprintf(s.out, "\r\033[K%s %s", Styles.Highlight.Render(spinnerFrames[frame]), s.line())
		}
	}
}

// Progress replaces the detail shown after the message.
func (s *Spinner) Progress(detail string) {
	s.mu.Lock()
	s.detail = detail
	s.mu.Unlock()
}

// Attempt shows "attempt n/total" as the detail.
func (s *Spinner) Attempt(n, total int) {
	s.Progress(fmt.Sprintf("attempt %d/%d", n, total))
}

func (s *Spinner) line() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.detail == "" {
		return s.message
	}
	return s.message + " " + Styles.Muted.Render("["+s.detail+"]")
}

// Stop halts the animation and clears the line. Stopping a spinner that
// is not running is a no-op.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}
