// Package events is the engine's outbox: every domain transition is
// described by an Event handed to a Sink. Sinks are fire-and-forget; the
// engine never blocks on a subscriber.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TournamentCreated   Type = "tournament.created"
	TournamentStarted   Type = "tournament.started"
	TournamentCompleted Type = "tournament.completed"
	TournamentCanceled  Type = "tournament.cancelled"
	RegistrationOpened  Type = "registration.opened"
	RegistrationClosed  Type = "registration.closed"
	ParticipantJoined   Type = "participant.registered"
	MatchScheduled      Type = "match.scheduled"
	MatchStarted        Type = "match.started"
	MatchCompleted      Type = "match.completed"
	RoundCompleted      Type = "round.completed"
	PrizeDistributed    Type = "prize.distributed"
)

type Event struct {
	ID           string      `json:"id"`
	Type         Type        `json:"type"`
	TournamentID int         `json:"tournament_id"`
	Payload      interface{} `json:"payload,omitempty"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

// New stamps an event with an id and timestamp.
func New(eventType Type, tournamentID int, payload interface{}) Event {
	return Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		TournamentID: tournamentID,
		Payload:      payload,
		OccurredAt:   time.Now().UTC(),
	}
}

// Sink receives domain events. Implementations must not block the caller
// and must swallow their own delivery failures.
type Sink interface {
	Publish(ctx context.Context, event Event)
}

// LogSink writes every event to the structured log.
type LogSink struct {
	Logger *slog.Logger
}

func (s LogSink) Publish(ctx context.Context, event Event) {
	s.Logger.InfoContext(ctx, "domain event",
		slog.String("event_id", event.ID),
		slog.String("type", string(event.Type)),
		slog.Int("tournament_id", event.TournamentID),
	)
}

// Fanout delivers one event to several sinks in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, event Event) {
	for _, sink := range f {
		sink.Publish(ctx, event)
	}
}

// Discard drops everything; handy in tests.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}
