package phone

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"sipphone/pjsua"
	"sipphone/sip"
)

var (
	ErrUnknownCall   = errors.New("call doesn't exist")
	ErrNotLive       = errors.New("call has no engine session")
	ErrCallCollision = errors.New("call id is used by an active call")
	ErrStaleEpoch    = errors.New("reinit epoch is stale")
)

// API is the engine adapter surface used by Phone. *sip.Sip implements it.
type API interface {
	SetHandler(h sip.Handler)
	Init(settings sip.Settings) error
	Deinit() error
	Transport() sip.Transport

	Register(user, password, host string) (int, error)
	Unregister()
	CheckAccountStatus() bool
	AccountInfo() (sip.AccountInfo, bool)

	MakeCall(uri string, headers pjsua.Headers) (int, error)
	Answer(callID, code int) error
	Hangup(callID int) error
	HangupAll()
	AddToConference(src, dst int) bool
	RemoveFromConference(src, dst int) bool
	Redirect(callID int, uri string) int
	CallDump(callID int) string
	SendDTMF(callID int, digits string) bool

	SetSoundSignal(level float32, callID int)
	SetMicroSignal(level float32, callID int)
	SignalLevels(callID int) (sound, micro int)
	SetCodecPriority(codec string, priority int)
	CodecPriorities() map[string]int

	UpdateSoundDevices()
	SoundDevices() []pjsua.AudioDevice
	SetSoundDevice(input, output int) bool
	DefaultOutput() int
	SetSoundDeviceStrings(input, output, ring string) (int, bool)
	SelectSoundDevices() (int, bool)
}

// Ringer plays the ring and dial tones. *sound.Player implements it.
type Ringer interface {
	StartRing() error
	StartDial() error
	Stop()
	SetDevice(device int)
}

type nopRinger struct{}

func (nopRinger) StartRing() error { return nil }
func (nopRinger) StartDial() error { return nil }
func (nopRinger) Stop()            {}
func (nopRinger) SetDevice(int)    {}

// Account holds registration credentials.
type Account struct {
	Username string
	Password string
	Host     string
}

type Option func(*Phone)

func WithLogger(log *logrus.Entry) Option {
	return func(p *Phone) { p.log = log }
}

func WithRinger(r Ringer) Option {
	return func(p *Phone) { p.ringer = r }
}

func WithClock(now func() time.Time) Option {
	return func(p *Phone) { p.now = now }
}

func WithMetrics(m *Metrics) Option {
	return func(p *Phone) { p.metrics = m }
}

// WithRecordFile sets the file that receives the records of calls still
// active at Close.
func WithRecordFile(path string) Option {
	return func(p *Phone) { p.recordFile = path }
}

// WithErrorHook sets the source of ErrorMessage. The hook must be attached to
// the loggers whose errors should be reported.
func WithErrorHook(h *ErrorHook) Option {
	return func(p *Phone) { p.errHook = h }
}

// Phone is the call registry. It owns every Call, applies adapter events to
// them and republishes those events to subscribers.
type Phone struct {
	api        API
	log        *logrus.Entry
	ringer     Ringer
	now        func() time.Time
	metrics    *Metrics
	errHook    *ErrorHook
	recordFile string

	mu    sync.Mutex
	calls []*Call
	epoch int

	qmu    sync.Mutex
	queue  []sip.Event
	notify chan struct{}

	smu  sync.Mutex
	subs map[*subscriber]struct{}
}

// New creates a Phone and installs it as the adapter's event handler.
func New(api API, opts ...Option) *Phone {
	p := &Phone{
		api:    api,
		log:    logrus.WithField("name", "phone"),
		ringer: nopRinger{},
		now:    time.Now,
		notify: make(chan struct{}, 1),
		subs:   make(map[*subscriber]struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	api.SetHandler(p)
	return p
}

// Init starts the engine and selects the configured sound devices.
func (p *Phone) Init(settings sip.Settings) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.init(settings)
}

func (p *Phone) init(settings sip.Settings) error {
	if err := p.api.Init(settings); err != nil {
		return fmt.Errorf("init: %w", err)
	}
	p.api.UpdateSoundDevices()
	ring, _ := p.api.SelectSoundDevices()
	p.ringer.SetDevice(ring)
	return nil
}

// Reinit restarts the engine with new settings. It only proceeds when epoch
// matches the current epoch, which it then increments.
func (p *Phone) Reinit(settings sip.Settings, epoch int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if epoch != p.epoch {
		p.metrics.reinitDone("stale")
		p.log.Warnf("Ignoring reinit for epoch %d, current epoch is %d", epoch, p.epoch)
		return ErrStaleEpoch
	}
	p.epoch++

	if err := p.api.Deinit(); err != nil {
		p.log.WithError(err).Warn("Deinit failed")
	}
	if err := p.init(settings); err != nil {
		p.metrics.reinitDone("failed")
		return err
	}
	p.metrics.reinitDone("ok")
	return nil
}

// Epoch returns the current reinit epoch.
func (p *Phone) Epoch() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.epoch
}

func (p *Phone) Transport() sip.Transport {
	return p.api.Transport()
}

// ErrorMessage returns the last error logged by the engine adapter.
func (p *Phone) ErrorMessage() string {
	return p.errHook.Last()
}

func (p *Phone) CheckAccountStatus() bool {
	return p.api.CheckAccountStatus()
}

// Register registers acc with its host and returns the account id.
func (p *Phone) Register(acc Account) (int, error) {
	return p.api.Register(acc.Username, acc.Password, acc.Host)
}

func (p *Phone) Unregister() {
	p.api.Unregister()
}

func (p *Phone) AccountInfo() (sip.AccountInfo, bool) {
	return p.api.AccountInfo()
}

// addToCallList inserts c. A registered call with the same id is replaced
// when inactive. An active one makes the insertion fail.
func (p *Phone) addToCallList(c *Call) bool {
	for i, old := range p.calls {
		if old == c {
			return true
		}
		if old.id == c.id {
			if old.active {
				p.log.WithField("call_key", old.key.String()).
					Errorf("Call %d is still active, rejecting new call", c.id)
				p.metrics.callRejected("collision")
				return false
			}
			p.calls[i] = c
			p.metrics.callAdded(c.dir)
			return true
		}
	}
	p.calls = append(p.calls, c)
	p.metrics.callAdded(c.dir)
	return true
}

func (p *Phone) call(id int) *Call {
	for _, c := range p.calls {
		if c.id == id {
			return c
		}
	}
	return nil
}

// setInactive ends c and records it in the metrics.
func (p *Phone) setInactive(c *Call) {
	if !c.active {
		return
	}
	c.setInactive()
	p.metrics.callEnded(c.duration)
}

// MakeCall dials uri and registers the new call.
func (p *Phone) MakeCall(uri string, headers pjsua.Headers) (Summary, error) {
	p.mu.Lock()
	c := newCall(p.api, p.log, p.now, Outgoing)
	id, err := p.api.MakeCall(uri, headers)
	if err != nil {
		p.mu.Unlock()
		p.metrics.callRejected("dial")
		return Summary{}, err
	}
	c.id = id
	c.url = uri
	c.headers = headers
	if !p.addToCallList(c) {
		p.mu.Unlock()
		return Summary{}, ErrCallCollision
	}
	// Under p.mu, so a StopSound for this call can't be applied first.
	if err := p.ringer.StartDial(); err != nil {
		p.log.WithError(err).Warn("Couldn't start dial tone")
	}
	s := c.Summary()
	p.mu.Unlock()
	return s, nil
}

// HangUpAll hangs up every engine call and marks every call inactive.
func (p *Phone) HangUpAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hangUpAll()
}

func (p *Phone) hangUpAll() {
	p.api.HangupAll()
	for _, c := range p.calls {
		p.setInactive(c)
	}
}

// Call returns the summary of the registered call with id.
func (p *Phone) Call(id int) (Summary, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c := p.call(id)
	if c == nil {
		return Summary{}, false
	}
	return c.Summary(), true
}

// CallList returns every call that isn't closed.
func (p *Phone) CallList() []Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Summary
	for _, c := range p.calls {
		if c.Status() != StatusClosed {
			out = append(out, c.Summary())
		}
	}
	return out
}

// ActiveCallList returns every active call.
func (p *Phone) ActiveCallList() []Summary {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []Summary
	for _, c := range p.calls {
		if c.active {
			out = append(out, c.Summary())
		}
	}
	return out
}

// SetSoundSignal sets the sound device output level, in [0, 1].
func (p *Phone) SetSoundSignal(level float32) {
	p.api.SetSoundSignal(level, -1)
}

// SetMicroSignal sets the sound device input level, in [0, 1].
func (p *Phone) SetMicroSignal(level float32) {
	p.api.SetMicroSignal(level, -1)
}

func (p *Phone) SignalLevels() (sound, micro int) {
	return p.api.SignalLevels(-1)
}

func (p *Phone) SetCodecPriority(codec string, priority int) {
	p.api.SetCodecPriority(codec, priority)
}

func (p *Phone) CodecPriorities() map[string]int {
	return p.api.CodecPriorities()
}

// SetSoundDevice selects the capture and playback devices and plays tones on
// the playback device.
func (p *Phone) SetSoundDevice(input, output int) bool {
	return p.SetSoundDeviceWithRing(input, output, output)
}

// SetSoundDeviceWithRing selects the capture and playback devices and the
// device used for tones. -1 selects the default device.
func (p *Phone) SetSoundDeviceWithRing(input, output, ring int) bool {
	ok := p.api.SetSoundDevice(input, output)
	if ring == -1 {
		ring = p.api.DefaultOutput()
	}
	p.ringer.SetDevice(ring)
	return ok
}

// SetSoundDeviceStrings selects devices by name.
func (p *Phone) SetSoundDeviceStrings(input, output, ring string) bool {
	dev, ok := p.api.SetSoundDeviceStrings(input, output, ring)
	p.ringer.SetDevice(dev)
	return ok
}

func (p *Phone) SoundDevices() []pjsua.AudioDevice {
	return p.api.SoundDevices()
}

func (p *Phone) UpdateSoundDevices() {
	p.api.UpdateSoundDevices()
}

// Subscribe returns a channel of domain events and a function that cancels
// the subscription. The channel is never closed.
func (p *Phone) Subscribe() (<-chan Event, func()) {
	s := &subscriber{
		ch:   make(chan Event, subscriberBuffer),
		done: make(chan struct{}),
	}
	p.smu.Lock()
	p.subs[s] = struct{}{}
	p.smu.Unlock()

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			p.smu.Lock()
			delete(p.subs, s)
			p.smu.Unlock()
			close(s.done)
		})
	}
}

func (p *Phone) publish(ctx context.Context, events []Event) {
	if len(events) == 0 {
		return
	}
	p.smu.Lock()
	subs := make([]*subscriber, 0, len(p.subs))
	for s := range p.subs {
		subs = append(subs, s)
	}
	p.smu.Unlock()

	for _, e := range events {
		for _, s := range subs {
			s.send(ctx, e)
		}
	}
}

// HandleSipEvent queues an adapter event. It never blocks, so it is safe on
// engine threads.
func (p *Phone) HandleSipEvent(e sip.Event) {
	p.qmu.Lock()
	p.queue = append(p.queue, e)
	p.qmu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Run applies queued adapter events and publishes the resulting domain
// events until ctx is done.
func (p *Phone) Run(ctx context.Context) error {
	for {
		p.drain(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.notify:
		}
	}
}

func (p *Phone) drain(ctx context.Context) {
	for {
		p.qmu.Lock()
		queue := p.queue
		p.queue = nil
		p.qmu.Unlock()
		if len(queue) == 0 {
			return
		}
		for _, e := range queue {
			p.mu.Lock()
			events := p.apply(e)
			p.mu.Unlock()
			p.publish(ctx, events)
		}
	}
}

// apply runs under p.mu.
func (p *Phone) apply(e sip.Event) []Event {
	switch e := e.(type) {
	case sip.IncomingCall:
		return p.incomingCall(e)
	case sip.CallState:
		if c := p.call(e.CallID); c != nil {
			wasActive := c.active
			c.setState(e.State)
			if wasActive && !c.active {
				p.metrics.callEnded(c.duration)
			}
		}
		return []Event{CallStateChanged{CallID: e.CallID, State: e.State, LastStatus: e.LastStatus}}
	case sip.CallDump:
		if c := p.call(e.CallID); c != nil {
			c.setDump(e.Dump)
		}
	case sip.MediaState:
		if c := p.call(e.CallID); c != nil {
			c.mediaState = e.Status
		}
	case sip.SoundLevel:
		return []Event{SoundLevel{Level: e.Level}}
	case sip.MicroLevel:
		return []Event{MicrophoneLevel{Level: e.Level}}
	case sip.AccountState:
		p.epoch++
		return []Event{AccountStateChanged{State: e.Status, Epoch: p.epoch}}
	case sip.SoundDevicesUpdated:
		return []Event{SoundDevicesUpdated{}}
	case sip.RingSound:
		if err := p.ringer.StartRing(); err != nil {
			p.log.WithError(err).Warn("Couldn't start ring tone")
		}
	case sip.StopSound:
		p.ringer.Stop()
	}
	return nil
}

func (p *Phone) incomingCall(e sip.IncomingCall) []Event {
	c := newCall(p.api, p.log, p.now, Incoming)
	c.id = e.CallID
	c.url = e.RemoteURI
	c.setName(e.RemoteName)
	c.headers = e.Headers

	if !p.addToCallList(c) {
		return nil
	}
	if err := c.answer(180); err != nil {
		c.log.WithError(err).Warnf("Couldn't send ringing for call %d", c.id)
	}
	return []Event{IncomingCall{Call: c.Summary()}}
}

// Close records every active call to the record file and hangs them up.
func (p *Phone) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var records []Record
	for _, c := range p.calls {
		if c.active {
			records = append(records, recordOf(c))
		}
	}

	var err error
	if len(records) > 0 && p.recordFile != "" {
		if err = AppendRecordFile(p.recordFile, records...); err != nil {
			p.log.WithError(err).Error("Couldn't write call records")
		}
	}

	p.hangUpAll()
	p.calls = nil
	p.ringer.Stop()
	return err
}
