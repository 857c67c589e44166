package sip

import "sipphone/pjsua"

// Event is a notification produced by the adapter. Events are delivered in
// the order they were produced.
type Event interface {
	sipEvent()
}

// Handler consumes adapter events. HandleSipEvent may run on an engine
// thread and must not call back into the adapter synchronously.
type Handler interface {
	HandleSipEvent(Event)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Event)

func (f HandlerFunc) HandleSipEvent(e Event) { f(e) }

type (
	// IncomingCall reports a new inbound call. Headers holds only the
	// custom X- headers of the INVITE.
	IncomingCall struct {
		CallID     int
		RemoteURI  string
		RemoteName string
		Headers    pjsua.Headers
	}

	// CallState reports an invite state change.
	CallState struct {
		CallID     int
		State      pjsua.InviteState
		LastStatus int
	}

	// CallDump carries the diagnostic dump captured before a disconnected
	// call is released.
	CallDump struct {
		CallID int
		Dump   string
	}

	MediaState struct {
		CallID int
		Status pjsua.MediaStatus
	}

	SoundLevel struct{ Level int }
	MicroLevel struct{ Level int }

	// AccountState reports the registration status code.
	AccountState struct{ Status int }

	SoundDevicesUpdated struct{}
	SoundDeviceChanged  struct{}
	RingSound           struct{}
	StopSound           struct{}
)

func (IncomingCall) sipEvent()        {}
func (CallState) sipEvent()           {}
func (CallDump) sipEvent()            {}
func (MediaState) sipEvent()          {}
func (SoundLevel) sipEvent()          {}
func (MicroLevel) sipEvent()          {}
func (AccountState) sipEvent()        {}
func (SoundDevicesUpdated) sipEvent() {}
func (SoundDeviceChanged) sipEvent()  {}
func (RingSound) sipEvent()           {}
func (StopSound) sipEvent()           {}
