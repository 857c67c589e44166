package phone

import (
	"errors"
	"os"

	"sipphone/sip"
)

// Commands accepted from the UI bridge. Call ids refer to registered calls;
// unknown ids are logged and reported as failures.

// Initialize starts the engine. A non-zero epoch requests a reinit that is
// only honoured for the current epoch.
func (p *Phone) Initialize(settings sip.Settings, epoch int) error {
	if epoch != 0 {
		return p.Reinit(settings, epoch)
	}
	return p.Init(settings)
}

// lookup returns the call with id. Callers hold p.mu.
func (p *Phone) lookup(id int, op string) (*Call, error) {
	c := p.call(id)
	if c == nil {
		p.log.Errorf("%s: call %d doesn't exist", op, id)
		return nil, ErrUnknownCall
	}
	return c, nil
}

func (p *Phone) Answer(id, code int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "answer")
	if err != nil {
		return err
	}
	return c.answer(code)
}

func (p *Phone) Hangup(id int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "hangup")
	if err != nil {
		return err
	}
	wasActive := c.active
	c.hangUp()
	if wasActive {
		p.metrics.callEnded(c.duration)
	}
	return nil
}

// normalizeLevel maps a 0..255 level to [0, 1].
func normalizeLevel(level int) float32 {
	return max(0, min(float32(level)/255, 1))
}

func muteLevel(mute bool) float32 {
	if mute {
		return 0
	}
	return 1
}

// MuteSound silences the call, or the sound device when id is negative.
func (p *Phone) MuteSound(mute bool, id int) error {
	return p.soundSignal(muteLevel(mute), id)
}

func (p *Phone) MuteMicrophone(mute bool, id int) error {
	return p.microSignal(muteLevel(mute), id)
}

// SetSoundLevel sets the output level of the call, or of the sound device
// when id is negative. level is 0..255 and is clamped.
func (p *Phone) SetSoundLevel(level, id int) error {
	return p.soundSignal(normalizeLevel(level), id)
}

func (p *Phone) SetMicrophoneLevel(level, id int) error {
	return p.microSignal(normalizeLevel(level), id)
}

func (p *Phone) soundSignal(level float32, id int) error {
	if id < 0 {
		p.SetSoundSignal(level)
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "sound level")
	if err != nil {
		return err
	}
	c.setSoundSignal(level)
	return nil
}

func (p *Phone) microSignal(level float32, id int) error {
	if id < 0 {
		p.SetMicroSignal(level)
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "micro level")
	if err != nil {
		return err
	}
	c.setMicroSignal(level)
	return nil
}

// CallSignalLevels returns the receive and transmit levels of the call.
func (p *Phone) CallSignalLevels(id int) (sound, micro int, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "signal levels")
	if err != nil {
		return 0, 0, err
	}
	sound, micro = c.signalLevels()
	return sound, micro, nil
}

// conferencePair resolves two distinct calls and checks that they are active.
func (p *Phone) conferencePair(src, dst int) (*Call, *Call, bool) {
	if src == dst {
		p.log.Errorf("Conference: call %d can't be bridged to itself", src)
		return nil, nil, false
	}
	a, b := p.call(src), p.call(dst)
	if a == nil || b == nil {
		p.log.Errorf("Conference: call %d or %d doesn't exist", src, dst)
		return nil, nil, false
	}
	if !a.active || !b.active {
		p.log.Errorf("Conference: call %d or %d isn't active", src, dst)
		return nil, nil, false
	}
	return a, b, true
}

// AddToConference bridges the audio of both calls in both directions. A
// failure may leave one direction connected.
func (p *Phone) AddToConference(src, dst int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, b, ok := p.conferencePair(src, dst)
	if !ok {
		return false
	}
	return a.addToConference(b) && b.addToConference(a)
}

// RemoveFromConference disconnects both directions. It succeeds when both
// disconnects succeed.
func (p *Phone) RemoveFromConference(src, dst int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	a, b, ok := p.conferencePair(src, dst)
	if !ok {
		return false
	}
	return a.removeFromConference(b) && b.removeFromConference(a)
}

// Redirect transfers the call and returns the engine status, or -1 when the
// call is unknown.
func (p *Phone) Redirect(id int, uri string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "redirect")
	if err != nil {
		return -1
	}
	return c.redirect(uri)
}

func (p *Phone) SendDTMF(id int, digits string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "dtmf")
	if err != nil {
		return false
	}
	return c.sendDTMF(digits)
}

func (p *Phone) CallUserData(id int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "user data")
	if err != nil {
		return "", err
	}
	return c.userData, nil
}

func (p *Phone) SetCallUserData(id int, data string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "user data")
	if err != nil {
		return err
	}
	c.SetUserData(data)
	return nil
}

// CallDump returns the diagnostic dump of the call.
func (p *Phone) CallDump(id int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, err := p.lookup(id, "dump")
	if err != nil {
		return "", err
	}
	return c.getDump(), nil
}

// ErrorLogData reads back the records written by earlier Close calls.
func (p *Phone) ErrorLogData() ([]Record, error) {
	if p.recordFile == "" {
		return nil, nil
	}
	return ReadRecordFile(p.recordFile)
}

// DeleteErrorLog removes the record file.
func (p *Phone) DeleteErrorLog() error {
	if p.recordFile == "" {
		return nil
	}
	err := os.Remove(p.recordFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}
