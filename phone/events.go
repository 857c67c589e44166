package phone

import (
	"context"

	"sipphone/pjsua"
)

// Event is a domain event published to subscribers.
type Event interface {
	phoneEvent()
}

type (
	// IncomingCall is published after the call was registered and answered
	// with 180.
	IncomingCall struct {
		Call Summary
	}

	CallStateChanged struct {
		CallID     int
		State      pjsua.InviteState
		LastStatus int
	}

	SoundLevel      struct{ Level int }
	MicrophoneLevel struct{ Level int }

	// AccountStateChanged carries the registration status and the epoch a
	// following Reinit must present.
	AccountStateChanged struct {
		State int
		Epoch int
	}

	SoundDevicesUpdated struct{}
)

func (IncomingCall) phoneEvent()        {}
func (CallStateChanged) phoneEvent()    {}
func (SoundLevel) phoneEvent()          {}
func (MicrophoneLevel) phoneEvent()     {}
func (AccountStateChanged) phoneEvent() {}
func (SoundDevicesUpdated) phoneEvent() {}

const subscriberBuffer = 64

type subscriber struct {
	ch   chan Event
	done chan struct{}
}

func (s *subscriber) send(ctx context.Context, e Event) {
	select {
	case s.ch <- e:
	case <-s.done:
	case <-ctx.Done():
	}
}
