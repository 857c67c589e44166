// Package pjsuatest provides a scriptable in-memory pjsua.Engine.
package pjsuatest

import (
	"slices"
	"strings"
	"sync"

	"sipphone/pjsua"
)

// Op is one recorded engine command.
type Op struct {
	Name string
	Args []any
}

// Engine records every command it receives and lets tests fire callbacks as
// the native engine would. Callbacks run synchronously on the caller's
// goroutine, outside the engine lock.
type Engine struct {
	mu sync.Mutex

	cb       pjsua.Callbacks
	ops      []Op
	fail     map[string]error
	failOnce map[string]error

	accounts map[int]*pjsua.AccountInfo
	nextAcc  int

	calls    map[int]*pjsua.CallInfo
	dumps    map[int]string
	nextCall int

	devices []pjsua.AudioDevice
	codecs  []pjsua.CodecInfo
	levels  map[int][2]int
}

// New returns an engine with a default device and codec table.
func New() *Engine {
	return &Engine{
		fail:     make(map[string]error),
		failOnce: make(map[string]error),
		accounts: make(map[int]*pjsua.AccountInfo),
		calls:    make(map[int]*pjsua.CallInfo),
		dumps:    make(map[int]string),
		levels:   make(map[int][2]int),
		devices: []pjsua.AudioDevice{
			{Index: 0, Name: "Built-in Microphone", InputCount: 1},
			{Index: 1, Name: "Built-in Output", OutputCount: 2},
			{Index: 2, Name: "USB Headset", InputCount: 1, OutputCount: 2},
		},
		codecs: []pjsua.CodecInfo{
			{ID: "PCMU/8000/1", Priority: 128},
			{ID: "PCMA/8000/1", Priority: 128},
			{ID: "opus/48000/2", Priority: 120},
		},
	}
}

var _ pjsua.Engine = (*Engine)(nil)

// Fail makes every later call of op return err. A nil err clears it.
func (e *Engine) Fail(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.fail, op)
		return
	}
	e.fail[op] = err
}

// FailOnce makes the next call of op return err.
func (e *Engine) FailOnce(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failOnce[op] = err
}

// Ops returns the recorded commands, optionally filtered by name.
func (e *Engine) Ops(names ...string) []Op {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []Op
	for _, op := range e.ops {
		if len(names) == 0 || slices.Contains(names, op.Name) {
			out = append(out, op)
		}
	}
	return out
}

// Count returns how many times op was called.
func (e *Engine) Count(op string) int {
	return len(e.Ops(op))
}

// Reset drops the recorded commands.
func (e *Engine) Reset() {
	e.mu.Lock()
	e.ops = nil
	e.mu.Unlock()
}

// SetDevices replaces the enumerated device list.
func (e *Engine) SetDevices(devices []pjsua.AudioDevice) {
	e.mu.Lock()
	e.devices = devices
	e.mu.Unlock()
}

// SetSignalLevel sets the values reported by SignalLevel for slot.
func (e *Engine) SetSignalLevel(slot, tx, rx int) {
	e.mu.Lock()
	e.levels[slot] = [2]int{tx, rx}
	e.mu.Unlock()
}

// SetDump sets the diagnostic dump returned for callID.
func (e *Engine) SetDump(callID int, dump string) {
	e.mu.Lock()
	e.dumps[callID] = dump
	e.mu.Unlock()
}

// NextCallID sets the id handed out by the next MakeCall.
func (e *Engine) NextCallID(id int) {
	e.mu.Lock()
	e.nextCall = id
	e.mu.Unlock()
}

// Call returns a copy of the engine-side call info.
func (e *Engine) Call(callID int) (pjsua.CallInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ci, ok := e.calls[callID]
	if !ok {
		return pjsua.CallInfo{}, false
	}
	return *ci, true
}

// Incoming registers an incoming call from the given contact and
// From-header value and fires OnIncomingCall.
func (e *Engine) Incoming(accID, callID int, contact, info string, headers pjsua.Headers) {
	e.mu.Lock()
	e.calls[callID] = &pjsua.CallInfo{
		ID:            callID,
		State:         pjsua.StateIncoming,
		StateText:     "INCOMING",
		RemoteContact: contact,
		RemoteInfo:    info,
		ConfSlot:      callID + 1,
	}
	cb := e.cb
	e.mu.Unlock()
	if cb != nil {
		cb.OnIncomingCall(accID, callID, headers)
	}
}

// SetCallState updates the call state and fires OnCallState.
func (e *Engine) SetCallState(callID int, state pjsua.InviteState, lastStatus int) {
	e.mu.Lock()
	ci, ok := e.calls[callID]
	if !ok {
		ci = &pjsua.CallInfo{ID: callID, ConfSlot: callID + 1}
		e.calls[callID] = ci
	}
	ci.State = state
	ci.LastStatus = lastStatus
	cb := e.cb
	e.mu.Unlock()
	if cb != nil {
		cb.OnCallState(callID)
	}
}

// SetMediaActive marks the call media active and fires OnCallMediaState.
func (e *Engine) SetMediaActive(callID int) {
	e.mu.Lock()
	if ci, ok := e.calls[callID]; ok {
		ci.MediaStatus = pjsua.MediaActive
	}
	cb := e.cb
	e.mu.Unlock()
	if cb != nil {
		cb.OnCallMediaState(callID)
	}
}

// SetRegStatus updates the account registration status and fires OnRegState.
func (e *Engine) SetRegStatus(accID, status int, text string) {
	e.mu.Lock()
	if ai, ok := e.accounts[accID]; ok {
		ai.Status = status
		ai.StatusText = text
	}
	cb := e.cb
	e.mu.Unlock()
	if cb != nil {
		cb.OnRegState(accID)
	}
}

// record appends op and returns the configured failure, if any. Callers hold mu.
func (e *Engine) record(name string, args ...any) error {
	e.ops = append(e.ops, Op{Name: name, Args: args})
	if err, ok := e.failOnce[name]; ok {
		delete(e.failOnce, name)
		return err
	}
	return e.fail[name]
}

func (e *Engine) do(name string, args ...any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.record(name, args...)
}

func (e *Engine) Create() error { return e.do("Create") }

func (e *Engine) Init(cfg pjsua.Config, cb pjsua.Callbacks) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Init", cfg); err != nil {
		return err
	}
	e.cb = cb
	return nil
}

func (e *Engine) CreateTransport(t pjsua.TransportType, port int) error {
	return e.do("CreateTransport", t, port)
}

func (e *Engine) Start() error { return e.do("Start") }

func (e *Engine) Destroy() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	err := e.record("Destroy")
	e.cb = nil
	e.accounts = make(map[int]*pjsua.AccountInfo)
	e.calls = make(map[int]*pjsua.CallInfo)
	return err
}

func (e *Engine) SetLogFile(path string, appendMode bool) error {
	return e.do("SetLogFile", path, appendMode)
}

func (e *Engine) AddAccount(cfg pjsua.AccountConfig) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("AddAccount", cfg); err != nil {
		return -1, err
	}
	id := e.nextAcc
	e.nextAcc++
	e.accounts[id] = &pjsua.AccountInfo{ID: id, URI: cfg.ID, Status: 100, StatusText: "In Progress", OnlineStatusText: "Online"}
	return id, nil
}

func (e *Engine) DelAccount(accID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("DelAccount", accID); err != nil {
		return err
	}
	delete(e.accounts, accID)
	return nil
}

func (e *Engine) AccountValid(accID int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.accounts[accID]
	return ok
}

func (e *Engine) AccountInfo(accID int) (pjsua.AccountInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("AccountInfo", accID); err != nil {
		return pjsua.AccountInfo{}, err
	}
	ai, ok := e.accounts[accID]
	if !ok {
		return pjsua.AccountInfo{}, pjsua.StatusNotFound
	}
	return *ai, nil
}

func (e *Engine) MakeCall(accID int, uri string, headers pjsua.Headers) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("MakeCall", accID, uri, headers); err != nil {
		return -1, err
	}
	id := e.nextCall
	e.nextCall++
	e.calls[id] = &pjsua.CallInfo{ID: id, State: pjsua.StateCalling, StateText: "CALLING", RemoteInfo: uri, ConfSlot: id + 1}
	return id, nil
}

func (e *Engine) Answer(callID, code int) error { return e.do("Answer", callID, code) }

func (e *Engine) Hangup(callID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Hangup", callID); err != nil {
		return err
	}
	if ci, ok := e.calls[callID]; ok {
		ci.State = pjsua.StateDisconnected
	}
	return nil
}

func (e *Engine) HangupAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	_ = e.record("HangupAll")
	for _, ci := range e.calls {
		ci.State = pjsua.StateDisconnected
	}
}

func (e *Engine) Transfer(callID int, uri string) error { return e.do("Transfer", callID, uri) }

func (e *Engine) CallInfo(callID int) (pjsua.CallInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("CallInfo", callID); err != nil {
		return pjsua.CallInfo{ID: callID, ConfSlot: -1}, err
	}
	ci, ok := e.calls[callID]
	if !ok {
		return pjsua.CallInfo{ID: callID, ConfSlot: -1}, pjsua.StatusNotFound
	}
	return *ci, nil
}

func (e *Engine) CallDump(callID int) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("CallDump", callID); err != nil {
		return "", err
	}
	if _, ok := e.calls[callID]; !ok {
		return "", pjsua.StatusNotFound
	}
	return e.dumps[callID], nil
}

func (e *Engine) DialDTMF(callID int, digits string) error {
	return e.do("DialDTMF", callID, digits)
}

func (e *Engine) SendRequest(callID int, method, contentType, body string) error {
	return e.do("SendRequest", callID, method, contentType, body)
}

func (e *Engine) ConfConnect(src, dst int) error    { return e.do("ConfConnect", src, dst) }
func (e *Engine) ConfDisconnect(src, dst int) error { return e.do("ConfDisconnect", src, dst) }

func (e *Engine) AdjustRxLevel(slot int, level float32) error {
	return e.do("AdjustRxLevel", slot, level)
}

func (e *Engine) AdjustTxLevel(slot int, level float32) error {
	return e.do("AdjustTxLevel", slot, level)
}

func (e *Engine) SignalLevel(slot int) (int, int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("SignalLevel", slot); err != nil {
		return 0, 0, err
	}
	l := e.levels[slot]
	return l[0], l[1], nil
}

func (e *Engine) SetCodecPriority(codec string, priority int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("SetCodecPriority", codec, priority); err != nil {
		return err
	}
	for i := range e.codecs {
		if strings.HasPrefix(strings.ToLower(e.codecs[i].ID), strings.ToLower(codec)) {
			e.codecs[i].Priority = priority
			return nil
		}
	}
	return pjsua.StatusNotFound
}

func (e *Engine) Codecs() ([]pjsua.CodecInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("Codecs"); err != nil {
		return nil, err
	}
	return append([]pjsua.CodecInfo(nil), e.codecs...), nil
}

func (e *Engine) AudioDevices() ([]pjsua.AudioDevice, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("AudioDevices"); err != nil {
		return nil, err
	}
	return append([]pjsua.AudioDevice(nil), e.devices...), nil
}

func (e *Engine) SetSoundDevice(input, output int) error {
	return e.do("SetSoundDevice", input, output)
}

func (e *Engine) ReinitSoundDevices() error { return e.do("ReinitSoundDevices") }

func (e *Engine) CreatePlayer(file string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record("CreatePlayer", file); err != nil {
		return -1, err
	}
	return 0, nil
}

func (e *Engine) DestroyPlayer(port int) error         { return e.do("DestroyPlayer", port) }
func (e *Engine) ConnectPlayer(port, device int) error { return e.do("ConnectPlayer", port, device) }
func (e *Engine) DisconnectPlayer() error              { return e.do("DisconnectPlayer") }
