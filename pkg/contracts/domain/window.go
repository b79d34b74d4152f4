package domain

import (
	"fmt"
	"time"
)

// Window is the session date range; a zero bound is open
type Window struct {
	From time.Time `json:"from_date" yaml:"from_date"`
	To   time.Time `json:"to_date" yaml:"to_date"`
}

// NewWindow parses a window from date strings, empty strings leave the bound open
func NewWindow(from, to string) (Window, error) {
	var w Window
	var err error
	if from != "" {
		if w.From, err = ParseDate(from); err != nil {
			return Window{}, fmt.Errorf("parse from date: %w", err)
		}
	}
	if to != "" {
		if w.To, err = ParseDate(to); err != nil {
			return Window{}, fmt.Errorf("parse to date: %w", err)
		}
	}
	if w.Bounded() && w.To.Before(w.From) {
		return Window{}, fmt.Errorf("window ends %s before it starts %s", w.To.Format(DateLayout), w.From.Format(DateLayout))
	}
	return w, nil
}

// Bounded reports whether both ends are set
func (w Window) Bounded() bool {
	return !w.From.IsZero() && !w.To.IsZero()
}

// Clamp intersects [from, to] with the window
func (w Window) Clamp(from, to time.Time) (time.Time, time.Time) {
	from, to = Day(from), Day(to)
	if !w.From.IsZero() && w.From.After(from) {
		from = w.From
	}
	if !w.To.IsZero() && w.To.Before(to) {
		to = w.To
	}
	return from, to
}

// String renders the window for logs
func (w Window) String() string {
	f, t := "-", "-"
	if !w.From.IsZero() {
		f = w.From.Format(DateLayout)
	}
	if !w.To.IsZero() {
		t = w.To.Format(DateLayout)
	}
	return f + ".." + t
}
