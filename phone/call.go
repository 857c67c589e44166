package phone

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/sirupsen/logrus"

	"sipphone/pjsua"
)

// Direction of a call.
type Direction int

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Incoming {
		return "incoming"
	}
	return "outgoing"
}

// Status is the call lifecycle status. It only moves forward.
type Status int

const (
	StatusNew Status = iota
	StatusRinging
	StatusAccepted
	StatusClosed
)

var statusNames = [...]string{"new", "ringing", "accepted", "closed"}

func (s Status) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "unknown"
	}
	return statusNames[s]
}

func parseStatus(name string) Status {
	for i, n := range statusNames {
		if n == name {
			return Status(i)
		}
	}
	return StatusNew
}

const (
	eventRing   = "ring"
	eventAccept = "accept"
	eventClose  = "close"
)

func newStatusFSM() *fsm.FSM {
	return fsm.NewFSM(
		StatusNew.String(),
		fsm.Events{
			{Name: eventRing, Src: []string{StatusNew.String(), StatusRinging.String()}, Dst: StatusRinging.String()},
			{Name: eventAccept, Src: []string{StatusNew.String(), StatusRinging.String(), StatusAccepted.String()}, Dst: StatusAccepted.String()},
			{Name: eventClose, Src: []string{StatusNew.String(), StatusRinging.String(), StatusAccepted.String()}, Dst: StatusClosed.String()},
		},
		fsm.Callbacks{},
	)
}

// Summary is a read-only snapshot of a call.
type Summary struct {
	Key        uuid.UUID
	ID         int
	Direction  Direction
	Status     Status
	Active     bool
	RemoteURI  string
	Name       string
	Headers    pjsua.Headers
	StartTime  time.Time
	AcceptTime time.Time
	CloseTime  time.Time
	Duration   int
	UserData   string
	State      pjsua.InviteState
}

// Call is one telephony session. It is owned by Phone and only mutated under
// the Phone lock.
type Call struct {
	api API
	log *logrus.Entry
	now func() time.Time

	key    uuid.UUID
	id     int
	dir    Direction
	status *fsm.FSM
	active bool

	url      string
	name     string
	headers  pjsua.Headers
	userData string
	dump     string

	state      pjsua.InviteState
	mediaState pjsua.MediaStatus

	start    time.Time
	accept   time.Time
	close    time.Time
	duration int
}

func newCall(api API, log *logrus.Entry, now func() time.Time, dir Direction) *Call {
	c := &Call{
		api:    api,
		now:    now,
		key:    uuid.New(),
		id:     -1,
		dir:    dir,
		status: newStatusFSM(),
		active: true,
		start:  now(),
	}
	c.log = log.WithField("call_key", c.key.String())
	return c
}

func (c *Call) ID() int { return c.id }
func (c *Call) Key() uuid.UUID { return c.key }
func (c *Call) Direction() Direction { return c.dir }
func (c *Call) Status() Status { return parseStatus(c.status.Current()) }
func (c *Call) Active() bool { return c.active }
func (c *Call) RemoteURI() string { return c.url }
func (c *Call) Name() string { return c.name }
func (c *Call) Headers() pjsua.Headers { return c.headers }
func (c *Call) StartTime() time.Time { return c.start }
func (c *Call) AcceptTime() time.Time { return c.accept }
func (c *Call) CloseTime() time.Time { return c.close }
func (c *Call) Duration() int { return c.duration }
func (c *Call) UserData() string { return c.userData }
func (c *Call) SetUserData(data string) { c.userData = data }
func (c *Call) State() pjsua.InviteState { return c.state }
func (c *Call) MediaState() pjsua.MediaStatus { return c.mediaState }

// setName keeps the quoted part of a display name, if there is one.
func (c *Call) setName(name string) {
	if parts := strings.Split(name, `"`); len(parts) >= 2 {
		c.name = parts[1]
		return
	}
	c.name = name
}

// Summary returns a snapshot of the call.
func (c *Call) Summary() Summary {
	return Summary{
		Key:        c.key,
		ID:         c.id,
		Direction:  c.dir,
		Status:     c.Status(),
		Active:     c.active,
		RemoteURI:  c.url,
		Name:       c.name,
		Headers:    append(pjsua.Headers(nil), c.headers...),
		StartTime:  c.start,
		AcceptTime: c.accept,
		CloseTime:  c.close,
		Duration:   c.duration,
		UserData:   c.userData,
		State:      c.state,
	}
}

// setState applies an engine invite state. Unmapped states are only
// recorded.
func (c *Call) setState(state pjsua.InviteState) {
	c.state = state
	switch state {
	case pjsua.StateIncoming, pjsua.StateEarly:
		c.fire(eventRing)
	case pjsua.StateConfirmed:
		if c.fire(eventAccept) {
			c.accept = c.now()
		}
	case pjsua.StateDisconnected:
		c.setInactive()
		c.fire(eventClose)
	}
}

// fire runs a status event and reports whether the status changed.
func (c *Call) fire(event string) bool {
	err := c.status.Event(context.Background(), event)
	if err == nil {
		return true
	}
	switch err.(type) {
	case fsm.NoTransitionError, fsm.InvalidEventError:
	default:
		c.log.WithError(err).Warnf("Call %d status event %s failed", c.id, event)
	}
	return false
}

// setInactive marks the call ended. Only the first call has an effect.
func (c *Call) setInactive() {
	if !c.active {
		return
	}
	c.active = false
	c.close = c.now()
	c.duration = int(c.close.Sub(c.start) / time.Second)
}

func (c *Call) live() bool {
	return c.id != -1
}

func (c *Call) answer(code int) error {
	if !c.live() {
		c.log.Errorf("Call %d can't be answered", c.id)
		return ErrNotLive
	}
	return c.api.Answer(c.id, code)
}

// hangUp always leaves the call inactive, even if the engine call fails.
func (c *Call) hangUp() {
	if c.live() {
		if err := c.api.Hangup(c.id); err != nil {
			c.log.WithError(err).Warnf("Hangup of call %d failed", c.id)
		}
	}
	c.setInactive()
}

func (c *Call) addToConference(dst *Call) bool {
	return c.api.AddToConference(c.id, dst.id)
}

func (c *Call) removeFromConference(dst *Call) bool {
	return c.api.RemoveFromConference(c.id, dst.id)
}

func (c *Call) redirect(uri string) int {
	if !c.live() {
		return -1
	}
	return c.api.Redirect(c.id, uri)
}

func (c *Call) setSoundSignal(level float32) {
	c.api.SetSoundSignal(level, c.id)
}

func (c *Call) setMicroSignal(level float32) {
	c.api.SetMicroSignal(level, c.id)
}

func (c *Call) signalLevels() (int, int) {
	return c.api.SignalLevels(c.id)
}

// getDump refreshes the cached dump while the engine still knows the call.
func (c *Call) getDump() string {
	if c.Status() != StatusClosed {
		if dump := c.api.CallDump(c.id); dump != "" {
			c.dump = dump
		}
	}
	return c.dump
}

func (c *Call) setDump(dump string) {
	c.dump = dump
}

func (c *Call) sendDTMF(digits string) bool {
	return c.api.SendDTMF(c.id, digits)
}
