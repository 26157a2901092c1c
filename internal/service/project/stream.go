package project

import (
	"context"

	"spmagent/internal/apperr"
)

// Stream event types.
const (
	EventStatus = "status"
	EventChunk  = "chunk"
	EventError  = "error"
	EventDone   = "done"
)

// StreamEvent is one frame of the creation stream. A done event carries the project id;
// an error event carries the same sentence the non-streaming endpoint returns as detail.
type StreamEvent struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

type chanProgress struct {
	out    chan<- StreamEvent
	closed <-chan struct{}
}

func (p chanProgress) send(ev StreamEvent) {
	select {
	case p.out <- ev:
	case <-p.closed:
	}
}

func (p chanProgress) Status(msg string) { p.send(StreamEvent{Type: EventStatus, Data: msg}) }
func (p chanProgress) Chunk(text string) { p.send(StreamEvent{Type: EventChunk, Data: text}) }

// Stream runs Create in the background and returns its events in order. The channel is
// closed after a done or error event.
//
// Creation runs on a context detached from ctx: if the listener goes away, events are
// dropped but the roadmap is still generated and saved.
func (s *Service) Stream(ctx context.Context, userID string, in CreateInput) <-chan StreamEvent {
	out := make(chan StreamEvent, 16)
	progress := chanProgress{out: out, closed: ctx.Done()}
	work := context.WithoutCancel(ctx)

	go func() {
		defer close(out)
		p, err := s.Create(work, userID, in, progress)
		if err != nil {
			_, detail := apperr.Status(err)
			progress.send(StreamEvent{Type: EventError, Data: detail})
			return
		}
		progress.send(StreamEvent{Type: EventDone, Data: p.ID})
	}()
	return out
}
