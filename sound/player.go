// Package sound plays the ring and dial tones on a dedicated output device.
package sound

import (
	"errors"
	"sync"

	"github.com/sirupsen/logrus"

	"sipphone/pjsua"
)

// ErrNoFile is returned when no tone file is configured.
var ErrNoFile = errors.New("no tone file set")

// Output is the part of the engine the player needs.
type Output interface {
	CreatePlayer(file string) (int, error)
	DestroyPlayer(port int) error
	ConnectPlayer(port, device int) error
	DisconnectPlayer() error
}

// Player is the process-wide tone player. Starting a tone supersedes the one
// currently playing.
type Player struct {
	out Output
	log *logrus.Entry

	mu       sync.Mutex
	ringFile string
	dialFile string
	device   int
	port     int
}

// NewPlayer creates a player. Empty file names disable the matching tone.
func NewPlayer(out Output, log *logrus.Entry, ringFile, dialFile string) *Player {
	return &Player{
		out:      out,
		log:      log,
		ringFile: ringFile,
		dialFile: dialFile,
		device:   -1,
		port:     -1,
	}
}

// StartRing plays the incoming-call ring tone.
func (p *Player) StartRing() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ringFile == "" {
		p.log.WithField("domain", "pjsip").Error("No ringtone set")
		return ErrNoFile
	}
	return p.start(p.ringFile)
}

// StartDial plays the outgoing-call tone. Without a dial file it does nothing.
func (p *Player) StartDial() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dialFile == "" {
		return nil
	}
	return p.start(p.dialFile)
}

// Stop ends the current tone, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
}

// SetDevice routes later tones to device; -1 selects the default output.
func (p *Player) SetDevice(device int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if device == p.device {
		return
	}
	p.device = device
	if p.port >= 0 {
		if err := p.out.DisconnectPlayer(); err != nil {
			p.log.WithFields(logrus.Fields{"domain": "pjsip", "code": pjsua.Code(err)}).
				Warn("Failed to release sound port")
		}
	}
}

// Device returns the configured output device.
func (p *Player) Device() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.device
}

func (p *Player) start(file string) error {
	p.stop()

	port, err := p.out.CreatePlayer(file)
	if err != nil {
		p.log.WithFields(logrus.Fields{"domain": "pjsip", "code": pjsua.Code(err), "file": file}).
			Error("Error in wav player creation")
		return err
	}
	p.port = port

	if err := p.out.ConnectPlayer(port, p.device); err != nil {
		p.log.WithFields(logrus.Fields{"domain": "pjsip", "code": pjsua.Code(err)}).Error("Failed to play")
		return err
	}
	return nil
}

func (p *Player) stop() {
	if p.port < 0 {
		return
	}
	if err := p.out.DestroyPlayer(p.port); err != nil {
		p.log.WithFields(logrus.Fields{"domain": "pjsip", "code": pjsua.Code(err)}).Warn("Failed to stop tone")
	}
	p.port = -1
}
