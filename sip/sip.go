// Package sip adapts the native engine to the phone: it translates engine
// callbacks into Events and phone commands into engine calls.
package sip

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"sipphone/pjsua"
)

// Sip is the only holder of the engine handle.
type Sip struct {
	engine pjsua.Engine
	log    *logrus.Entry

	mu        sync.RWMutex
	handler   Handler
	started   bool
	transport Transport
	accID     int
	logPath   string
	logSetup  bool

	defaultInput  int
	defaultOutput int
	inputName     string
	outputName    string
	ringName      string
}

// New creates an adapter over engine. log should be the pjsip logger.
func New(engine pjsua.Engine, log *logrus.Entry) *Sip {
	return &Sip{
		engine:        engine,
		log:           log,
		accID:         -1,
		defaultInput:  -1,
		defaultOutput: -1,
	}
}

// SetHandler installs the event consumer. Only one handler is supported.
func (s *Sip) SetHandler(h Handler) {
	s.mu.Lock()
	s.handler = h
	s.mu.Unlock()
}

func (s *Sip) emit(e Event) {
	s.mu.RLock()
	h := s.handler
	s.mu.RUnlock()
	if h != nil {
		h.HandleSipEvent(e)
	}
}

func (s *Sip) entry(err error) *logrus.Entry {
	return s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": pjsua.Code(err)})
}

func (s *Sip) fatal(err error, msg string) {
	s.entry(err).WithField("fatal", true).Error(msg)
}

// Init creates, configures and starts the engine. Calling it on a started
// adapter is a no-op.
func (s *Sip) Init(settings Settings) error {
	if s.IsInitialized() {
		return nil
	}

	if err := s.engine.Create(); err != nil {
		s.fatal(err, "Creating pjsua application failed")
		return fmt.Errorf("create engine: %w", err)
	}

	if err := s.configure(settings); err != nil {
		_ = s.engine.Destroy()
		return err
	}

	transport, err := s.addTransport(settings.Transport, settings.Port)
	if err != nil {
		_ = s.engine.Destroy()
		return err
	}

	if err := s.engine.Start(); err != nil {
		s.fatal(err, "Couldn't start pjsua")
		_ = s.engine.Destroy()
		return fmt.Errorf("start engine: %w", err)
	}

	if err := s.engine.AdjustRxLevel(0, settings.SoundLevel); err != nil {
		s.entry(err).Warn("Couldn't adjust sound level")
	}
	if err := s.engine.AdjustTxLevel(0, settings.MicroLevel); err != nil {
		s.entry(err).Warn("Couldn't adjust micro level")
	}

	s.mu.Lock()
	s.started = true
	s.transport = transport
	path := s.logPath
	s.mu.Unlock()

	s.applyLogging(path)
	return nil
}

func (s *Sip) configure(settings Settings) error {
	cfg := pjsua.Config{
		EnableICE:       settings.UseICE,
		EchoCanceller:   true,
		ConsoleLogLevel: 4,
	}
	if settings.StunServer != "" {
		if len(settings.StunServer) > maxFieldLen {
			s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).
				Error("Couldn't initialize pjsip: Stun server string too long")
			return ErrStunTooLong
		}
		cfg.StunServers = []string{settings.StunServer}
	}

	if err := s.engine.Init(cfg, callbacks{s}); err != nil {
		s.fatal(err, "pjsua initialization failed")
		return fmt.Errorf("init engine: %w", err)
	}
	return nil
}

// addTransport prefers TCP for TransportTCP and TransportAuto and falls back
// to UDP.
func (s *Sip) addTransport(t Transport, port int) (Transport, error) {
	if t == TransportTCP || t == TransportAuto {
		err := s.engine.CreateTransport(pjsua.TransportTCP, port)
		if err == nil {
			return TransportTCP, nil
		}
		s.entry(err).Warn("TCP transport creation failed")
	}

	if err := s.engine.CreateTransport(pjsua.TransportUDP, port); err != nil {
		s.fatal(err, "UDP Transport creation failed")
		return TransportAuto, fmt.Errorf("%w: %w", ErrNoTransport, err)
	}
	return TransportUDP, nil
}

// Deinit unregisters the account and destroys the engine.
func (s *Sip) Deinit() error {
	s.Unregister()

	s.mu.Lock()
	s.started = false
	s.mu.Unlock()

	if err := s.engine.Destroy(); err != nil {
		s.entry(err).Error("Destroying pjsua failed")
		return fmt.Errorf("destroy engine: %w", err)
	}
	return nil
}

// IsInitialized reports whether Init succeeded and Deinit was not called.
func (s *Sip) IsInitialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}

// Transport returns the transport created by Init.
func (s *Sip) Transport() Transport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transport
}

// SetLogging redirects the engine log to path. The first redirection
// truncates the file, later ones append.
func (s *Sip) SetLogging(path string) {
	s.mu.Lock()
	s.logPath = path
	started := s.started
	s.mu.Unlock()

	if started {
		s.applyLogging(path)
	}
}

func (s *Sip) applyLogging(path string) {
	if path == "" {
		return
	}
	s.mu.Lock()
	appendMode := s.logSetup
	s.logSetup = true
	s.mu.Unlock()

	if err := s.engine.SetLogFile(path, appendMode); err != nil {
		s.entry(err).Warn("Couldn't redirect pjsip log")
	}
}
