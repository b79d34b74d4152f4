package websocket

import (
	"context"
	"time"
)

// StageEvent reports one computed pipeline stage
type StageEvent struct {
	Stage      string `json:"stage"`
	Frequency  string `json:"frequency,omitempty"`
	Rows       int    `json:"rows"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

// QualityEvent reports a data-quality count raised during a stage
type QualityEvent struct {
	Event string `json:"event"`
	Count int    `json:"count"`
}

// Progress publishes pipeline stage and data-quality measurements to the
// hub's clients
type Progress struct {
	hub *Hub
}

// NewProgress creates a publisher over hub
func NewProgress(hub *Hub) *Progress {
	return &Progress{hub: hub}
}

// RecordStage publishes a stage event
func (p *Progress) RecordStage(ctx context.Context, stage, frequency string, d time.Duration, rows int, err error) {
	ev := StageEvent{
		Stage:      stage,
		Frequency:  frequency,
		Rows:       rows,
		DurationMS: d.Milliseconds(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	p.hub.Publish(ctx, TypeStage, ev)
}

// RecordQuality publishes a data-quality event
func (p *Progress) RecordQuality(ctx context.Context, event string, count int) {
	p.hub.Publish(ctx, TypeQuality, QualityEvent{Event: event, Count: count})
}
