// Package speech models continuous recognition as a finite stream of events.
// A Recognizer starts a session and hands back a Subscription; the session
// ends when the Subscription's event channel is closed.
package speech

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// EventKind 识别事件类型
type EventKind int

const (
	EventRecognized EventKind = iota + 1
	EventNoMatch
	EventCanceled
	EventSessionStopped
)

func (k EventKind) String() string {
	switch k {
	case EventRecognized:
		return "recognized"
	case EventNoMatch:
		return "no_match"
	case EventCanceled:
		return "canceled"
	case EventSessionStopped:
		return "session_stopped"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one notification from a recognition session.
type Event struct {
	Kind     EventKind
	Text     string
	Offset   time.Duration
	Duration time.Duration

	// Speaker is the service-assigned speaker id (e.g. "Guest-1") when the
	// session differentiates speakers; empty otherwise.
	Speaker string

	// Set on EventCanceled when the session ended because of a failure
	// rather than the end of the audio.
	Err error
}

// Source 识别的音频来源
type Source struct {
	WavFile string
	Locale  string

	// DifferentiateSpeakers 使用会话转录，为每句话标注说话人
	DifferentiateSpeakers bool
}

// Recognizer starts continuous recognition sessions.
type Recognizer interface {
	Start(ctx context.Context, src Source) (*Subscription, error)
}

// Subscription delivers the events of one session. The events channel is
// closed exactly once, whichever of Close, a session-stopped or a canceled
// notification comes first.
type Subscription struct {
	events chan Event
	done   chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
	stop   func() error
	err    error
}

// NewSubscription creates a subscription; stop is called once on Close to
// release the underlying session.
func NewSubscription(buffer int, stop func() error) *Subscription {
	return &Subscription{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
		stop:   stop,
	}
}

// Events returns the channel the session's events arrive on.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Done is closed when the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Publish delivers ev and reports whether it was accepted. It blocks while
// the buffer is full and returns false once the subscription is closed.
func (s *Subscription) Publish(ev Event) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false
	}

	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// Finish publishes a final event and closes the subscription.
func (s *Subscription) Finish(ev Event) {
	s.Publish(ev)
	s.Close()
}

// Close ends the session. Safe to call more than once and from callbacks.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.closed = true
		close(s.events)
		s.mu.Unlock()

		if s.stop != nil {
			s.err = s.stop()
		}
	})
	return s.err
}

// Collect drains sub until the session ends and returns every event in
// order. A canceled event carrying an error ends collection with that error;
// cancelling ctx closes the subscription and returns ctx.Err().
func Collect(ctx context.Context, sub *Subscription) ([]Event, error) {
	var events []Event
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return events, nil
			}
			events = append(events, ev)
			if ev.Kind == EventCanceled && ev.Err != nil {
				sub.Close()
				return events, ev.Err
			}
		case <-ctx.Done():
			sub.Close()
			return events, ctx.Err()
		}
	}
}

// Transcript joins the recognized text of events with spaces.
func Transcript(events []Event) string {
	parts := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.Kind == EventRecognized && ev.Text != "" {
			parts = append(parts, ev.Text)
		}
	}
	return strings.Join(parts, " ")
}

// RecognizeFile runs a session over a WAV file and returns its transcript.
func RecognizeFile(ctx context.Context, r Recognizer, src Source) (string, []Event, error) {
	if src.WavFile == "" {
		return "", nil, errors.New("wav file is required")
	}

	sub, err := r.Start(ctx, src)
	if err != nil {
		return "", nil, fmt.Errorf("start recognition: %w", err)
	}
	defer sub.Close()

	events, err := Collect(ctx, sub)
	if err != nil {
		return Transcript(events), events, err
	}
	return Transcript(events), events, nil
}
