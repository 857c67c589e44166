package sip

import (
	"github.com/sirupsen/logrus"

	"sipphone/pjsua"
)

// slot returns the conference slot of callID, or the primary device slot 0
// for negative ids.
func (s *Sip) slot(callID int) int {
	if callID < 0 {
		return 0
	}
	ci, err := s.engine.CallInfo(callID)
	if err != nil {
		s.entry(err).WithField("call_id", callID).Warn("Couldn't resolve conference slot")
	}
	return ci.ConfSlot
}

// SetSoundSignal sets the receive level of the call, or of the sound device
// when callID is negative. level is in [0, 1].
func (s *Sip) SetSoundSignal(level float32, callID int) {
	slot := s.slot(callID)
	s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0, "call_id": callID}).
		Debugf("sound level: %g", level)
	if err := s.engine.AdjustRxLevel(slot, level); err != nil {
		s.entry(err).Warn("Couldn't adjust sound level")
	}
	s.emit(SoundLevel{Level: int(level * 255)})
}

// SetMicroSignal sets the transmit level of the call, or of the sound device
// when callID is negative. level is in [0, 1].
func (s *Sip) SetMicroSignal(level float32, callID int) {
	slot := s.slot(callID)
	s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0, "call_id": callID}).
		Debugf("micro level: %g", level)
	if err := s.engine.AdjustTxLevel(slot, level); err != nil {
		s.entry(err).Warn("Couldn't adjust micro level")
	}
	s.emit(MicroLevel{Level: int(level * 255)})
}

// SignalLevels returns the current receive (sound) and transmit (micro)
// signal levels.
func (s *Sip) SignalLevels(callID int) (sound, micro int) {
	tx, rx, err := s.engine.SignalLevel(s.slot(callID))
	if err != nil {
		s.entry(err).Debug("Couldn't read signal level")
	}
	return rx, tx
}

// SetCodecPriority clamps priority to the engine range and applies it.
func (s *Sip) SetCodecPriority(codec string, priority int) {
	if !s.IsInitialized() {
		return
	}
	priority = max(0, min(priority, pjsua.CodecPrioHighest))
	if err := s.engine.SetCodecPriority(codec, priority); err != nil {
		s.entry(err).Debugf("Error %d setting codec priority", pjsua.Code(err))
	}
}

// CodecPriorities returns the priority of every codec.
func (s *Sip) CodecPriorities() map[string]int {
	out := make(map[string]int)
	if !s.IsInitialized() {
		return out
	}
	codecs, err := s.engine.Codecs()
	if err != nil {
		s.entry(err).Warn("Couldn't enumerate codecs")
		return out
	}
	for _, c := range codecs {
		out[c.ID] = c.Priority
	}
	return out
}

// UpdateSoundDevices detaches the sound device and refreshes the device list.
func (s *Sip) UpdateSoundDevices() {
	if err := s.engine.ReinitSoundDevices(); err != nil {
		s.entry(err).Warn("Couldn't reinitialize sound devices")
	}
	s.emit(SoundDevicesUpdated{})
}

// SoundDevices returns the enumerated audio devices.
func (s *Sip) SoundDevices() []pjsua.AudioDevice {
	devices, err := s.engine.AudioDevices()
	if err != nil {
		s.entry(err).Warn("Couldn't enumerate sound devices")
		return nil
	}
	return devices
}

// SetDefaultSoundDevice sets the devices used when -1 is selected.
func (s *Sip) SetDefaultSoundDevice(input, output int) {
	s.mu.Lock()
	s.defaultInput = input
	s.defaultOutput = output
	s.mu.Unlock()
}

// DefaultOutput returns the device used for -1 output selections.
func (s *Sip) DefaultOutput() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defaultOutput
}

// SetSoundDevice selects the capture and playback devices; -1 selects the
// default device.
func (s *Sip) SetSoundDevice(input, output int) bool {
	if !s.IsInitialized() {
		return false
	}
	s.mu.RLock()
	if input == -1 {
		input = s.defaultInput
	}
	if output == -1 {
		output = s.defaultOutput
	}
	s.mu.RUnlock()

	err := s.engine.SetSoundDevice(input, output)
	if err != nil {
		s.entry(err).Error("Couldn't set sound device")
	}
	s.emit(SoundDeviceChanged{})
	return err == nil
}

// SetSoundDeviceStrings stores the device names for each role and selects
// them. It returns the resolved ring device.
func (s *Sip) SetSoundDeviceStrings(input, output, ring string) (int, bool) {
	s.mu.Lock()
	s.inputName = input
	s.outputName = output
	s.ringName = ring
	s.mu.Unlock()
	return s.SelectSoundDevices()
}

// SelectSoundDevices resolves the stored device names against the device
// list, first exact match per role, and selects them. Unmatched roles use the
// default device. It returns the ring device for the tone player.
func (s *Sip) SelectSoundDevices() (int, bool) {
	if !s.IsInitialized() {
		return -1, false
	}

	s.mu.RLock()
	inName, outName, ringName := s.inputName, s.outputName, s.ringName
	s.mu.RUnlock()

	input, output, ring := -1, -1, -1
	for _, d := range s.SoundDevices() {
		if input == -1 && d.InputCount > 0 && d.Name == inName {
			input = d.Index
		}
		if output == -1 && d.OutputCount > 0 && d.Name == outName {
			output = d.Index
		}
		if ring == -1 && d.OutputCount > 0 && d.Name == ringName {
			ring = d.Index
		}
	}

	ok := s.SetSoundDevice(input, output)
	if ring == -1 {
		ring = s.DefaultOutput()
	}
	return ring, ok
}
