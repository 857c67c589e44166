// Package pjsua is the boundary to the native SIP/media engine. Everything
// above it talks to an Engine; the cgo binding is only compiled with the
// pjsua build tag, default builds get a stub that refuses to start.
package pjsua

import (
	"errors"
	"fmt"
	"strings"
)

// Status is an engine-native status code. Zero means success.
type Status int

const (
	Success            Status = 0
	StatusNotSupported Status = 70012
	StatusNotFound     Status = 70006
	StatusInvalid      Status = 70004
)

func (s Status) Error() string {
	return fmt.Sprintf("pjsua status %d", int(s))
}

// Code extracts the engine status code from err. It returns Success for nil
// and -1 when err carries no Status.
func Code(err error) int {
	if err == nil {
		return int(Success)
	}
	var s Status
	if errors.As(err, &s) {
		return int(s)
	}
	return -1
}

// CodecPrioHighest is the highest codec priority accepted by the engine.
const CodecPrioHighest = 255

// TransportType selects the signaling transport.
type TransportType int

const (
	TransportUDP TransportType = iota + 1
	TransportTCP
)

func (t TransportType) String() string {
	switch t {
	case TransportUDP:
		return "udp"
	case TransportTCP:
		return "tcp"
	}
	return "unknown"
}

// InviteState is the invite session state reported for a call.
type InviteState int

const (
	StateNull InviteState = iota
	StateCalling
	StateIncoming
	StateEarly
	StateConnecting
	StateConfirmed
	StateDisconnected
)

// MediaStatus is the media state of a call.
type MediaStatus int

const (
	MediaNone MediaStatus = iota
	MediaActive
	MediaLocalHold
	MediaRemoteHold
	MediaError
)

// Header is a single SIP header name/value pair.
type Header struct {
	Name  string
	Value string
}

// Headers is an ordered header list. Order is preserved on the wire.
type Headers []Header

// Get returns the first value for name, compared case-insensitively.
func (h Headers) Get(name string) (string, bool) {
	for _, hdr := range h {
		if strings.EqualFold(hdr.Name, name) {
			return hdr.Value, true
		}
	}
	return "", false
}

// Filter returns headers whose name is longer than prefix and starts with it,
// ignoring case.
func (h Headers) Filter(prefix string) Headers {
	var out Headers
	for _, hdr := range h {
		if len(hdr.Name) > len(prefix) && strings.EqualFold(hdr.Name[:len(prefix)], prefix) {
			out = append(out, hdr)
		}
	}
	return out
}

// Config is passed to Init.
type Config struct {
	StunServers     []string
	EnableICE       bool
	EchoCanceller   bool
	UnsolicitedMWI  bool
	ConsoleLogLevel int
}

// AccountConfig describes an account to register.
type AccountConfig struct {
	ID                  string
	RegURI              string
	Realm               string
	Scheme              string
	Username            string
	Password            string
	AllowContactRewrite bool
}

// AccountInfo is the engine view of a registered account.
type AccountInfo struct {
	ID               int
	URI              string
	Status           int
	StatusText       string
	OnlineStatusText string
}

// CallInfo is the engine view of a call.
type CallInfo struct {
	ID              int
	State           InviteState
	StateText       string
	LastStatus      int
	LastStatusText  string
	RemoteContact   string
	RemoteInfo      string
	MediaStatus     MediaStatus
	ConfSlot        int
	ConnectDuration int
}

// CodecInfo is a codec identifier with its priority.
type CodecInfo struct {
	ID       string
	Priority int
}

// AudioDevice is one enumerated audio device.
type AudioDevice struct {
	Index       int
	Name        string
	InputCount  int
	OutputCount int
	Caps        int
}

// Callbacks receives engine notifications. Implementations must expect calls
// from engine threads.
type Callbacks interface {
	OnIncomingCall(accID, callID int, headers Headers)
	OnCallState(callID int)
	OnCallMediaState(callID int)
	OnRegState(accID int)
}

// Engine is the command surface of the native engine.
type Engine interface {
	Create() error
	Init(cfg Config, cb Callbacks) error
	CreateTransport(t TransportType, port int) error
	Start() error
	Destroy() error
	SetLogFile(path string, appendMode bool) error

	AddAccount(cfg AccountConfig) (int, error)
	DelAccount(accID int) error
	AccountValid(accID int) bool
	AccountInfo(accID int) (AccountInfo, error)

	MakeCall(accID int, uri string, headers Headers) (int, error)
	Answer(callID, code int) error
	Hangup(callID int) error
	HangupAll()
	Transfer(callID int, uri string) error
	CallInfo(callID int) (CallInfo, error)
	CallDump(callID int) (string, error)
	DialDTMF(callID int, digits string) error
	SendRequest(callID int, method, contentType, body string) error

	ConfConnect(src, dst int) error
	ConfDisconnect(src, dst int) error
	AdjustRxLevel(slot int, level float32) error
	AdjustTxLevel(slot int, level float32) error
	SignalLevel(slot int) (tx, rx int, err error)

	SetCodecPriority(codec string, priority int) error
	Codecs() ([]CodecInfo, error)

	AudioDevices() ([]AudioDevice, error)
	SetSoundDevice(input, output int) error
	ReinitSoundDevices() error

	// CreatePlayer opens a WAV file player and returns its port.
	CreatePlayer(file string) (int, error)
	DestroyPlayer(port int) error
	// ConnectPlayer plays port on the given output device.
	ConnectPlayer(port, device int) error
	DisconnectPlayer() error
}

// New creates the engine for this build.
func New() Engine {
	return newEngine()
}
