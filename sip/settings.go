package sip

import "strings"

// Transport is the signaling transport preference.
type Transport int

const (
	TransportAuto Transport = iota
	TransportUDP
	TransportTCP
)

func (t Transport) String() string {
	switch t {
	case TransportUDP:
		return "udp"
	case TransportTCP:
		return "tcp"
	default:
		return "auto"
	}
}

// ParseTransport maps "udp" and "tcp" to their transports. Anything else is
// TransportAuto.
func ParseTransport(s string) Transport {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "udp":
		return TransportUDP
	case "tcp":
		return TransportTCP
	default:
		return TransportAuto
	}
}

// Settings are the engine initialization parameters. Init copies them.
type Settings struct {
	Transport  Transport
	Port       int
	StunServer string
	UseICE     bool
	SoundLevel float32
	MicroLevel float32
}

// DefaultSettings returns automatic transport selection at full gain.
func DefaultSettings() Settings {
	return Settings{Transport: TransportAuto, SoundLevel: 1, MicroLevel: 1}
}
