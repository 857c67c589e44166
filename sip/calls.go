package sip

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"sipphone/pjsua"
)

const (
	dtmfContentType = "application/dtmf-relay"
	dtmfDuration    = 300
)

// MakeCall dials uri with optional custom headers and returns the engine
// call id.
func (s *Sip) MakeCall(uri string, headers pjsua.Headers) (int, error) {
	if !s.IsInitialized() {
		return -1, ErrNotStarted
	}
	if len(uri) > maxURILen {
		s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).Error("Error making call: url too long")
		return -1, ErrURITooLong
	}

	s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0, "uri": uri}).Info("Make call")

	id, err := s.engine.MakeCall(s.account(), uri, headers)
	if err != nil {
		s.entry(err).Error("Error making call")
		return -1, fmt.Errorf("make call: %w", err)
	}
	return id, nil
}

// Answer responds to an incoming or early call with code. Final responses
// stop the ring tone.
func (s *Sip) Answer(callID, code int) error {
	ci, err := s.engine.CallInfo(callID)

	var result error
	if err == nil && (ci.State == pjsua.StateIncoming || ci.State == pjsua.StateEarly) {
		if err := s.engine.Answer(callID, code); err != nil {
			s.entry(err).Errorf("Call %d answer failed", callID)
			result = fmt.Errorf("answer: %w", err)
		} else {
			s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": int(ci.State)}).
				Debugf("Call %d answered", callID)
		}
	} else {
		s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": int(ci.State)}).
			Errorf("Call %d is not an incoming call", callID)
		result = ErrInvalidCall
	}

	if code >= 200 {
		s.emit(StopSound{})
	}
	return result
}

// Hangup ends the call and stops any tone.
func (s *Sip) Hangup(callID int) error {
	s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).Debugf("Hangup call %d", callID)

	err := s.engine.Hangup(callID)
	if err != nil {
		s.entry(err).WithField("call_id", callID).Warn("Hangup failed")
		err = fmt.Errorf("hangup: %w", err)
	}
	s.emit(StopSound{})
	return err
}

// HangupAll ends every engine call and stops any tone.
func (s *Sip) HangupAll() {
	s.engine.HangupAll()
	s.emit(StopSound{})
}

// AddToConference routes the audio of src into dst.
func (s *Sip) AddToConference(src, dst int) bool {
	return s.conference(src, dst, true)
}

// RemoveFromConference stops routing the audio of src into dst.
func (s *Sip) RemoveFromConference(src, dst int) bool {
	return s.conference(src, dst, false)
}

func (s *Sip) conference(src, dst int, connect bool) bool {
	if src == -1 || dst == -1 {
		s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).Error("Error: Conference calls are not valid")
		return false
	}
	srcInfo, err := s.engine.CallInfo(src)
	if err != nil {
		s.entry(err).Errorf("Error: call %d is not valid", src)
		return false
	}
	dstInfo, err := s.engine.CallInfo(dst)
	if err != nil {
		s.entry(err).Errorf("Error: call %d is not valid", dst)
		return false
	}

	if connect {
		err = s.engine.ConfConnect(srcInfo.ConfSlot, dstInfo.ConfSlot)
	} else {
		err = s.engine.ConfDisconnect(srcInfo.ConfSlot, dstInfo.ConfSlot)
	}
	if err != nil {
		if connect {
			s.entry(err).Error("Error connecting conference")
		} else {
			s.entry(err).Error("Error disconnecting conference")
		}
		return false
	}
	return true
}

// Redirect transfers the call to uri and returns the engine status code.
func (s *Sip) Redirect(callID int, uri string) int {
	err := s.engine.Transfer(callID, uri)
	if err != nil {
		s.entry(err).WithField("call_id", callID).Error("Error redirecting call")
	}
	return pjsua.Code(err)
}

// CallInfo returns the engine view of the call.
func (s *Sip) CallInfo(callID int) (pjsua.CallInfo, error) {
	return s.engine.CallInfo(callID)
}

// CallDump returns the engine diagnostic dump, or "" when unavailable.
func (s *Sip) CallDump(callID int) string {
	dump, err := s.engine.CallDump(callID)
	if err != nil {
		return ""
	}
	return dump
}

// SendDTMF sends digits as an RFC 2833 burst and falls back to one SIP INFO
// per digit. With the fallback every request must succeed.
func (s *Sip) SendDTMF(callID int, digits string) bool {
	err := s.engine.DialDTMF(callID, digits)
	if err == nil {
		return true
	}
	s.entry(err).WithField("call_id", callID).Debug("RFC 2833 DTMF failed, using SIP INFO")

	ok := true
	for _, d := range digits {
		body := fmt.Sprintf("Signal=%c\r\nDuration=%d", d, dtmfDuration)
		if err := s.engine.SendRequest(callID, "INFO", dtmfContentType, body); err != nil {
			s.entry(err).WithField("call_id", callID).Errorf("Sending DTMF digit %c failed", d)
			ok = false
		}
	}
	return ok && digits != ""
}
