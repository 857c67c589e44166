package sip

import (
	"github.com/sirupsen/logrus"

	"sipphone/pjsua"
)

// HeaderPrefix selects the INVITE headers forwarded with incoming calls.
const HeaderPrefix = "X-"

// callbacks receives engine notifications and turns them into events.
type callbacks struct {
	s *Sip
}

func (c callbacks) OnIncomingCall(accID, callID int, headers pjsua.Headers) {
	s := c.s
	ci, err := s.engine.CallInfo(callID)
	if err != nil {
		s.entry(err).WithField("call_id", callID).Error("Couldn't read incoming call info")
	}

	custom := headers.Filter(HeaderPrefix)
	remote := ci.RemoteContact
	if remote == "" {
		remote = AddressURI(ci.RemoteInfo)
	}

	s.emit(RingSound{})
	s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0, "call_id": callID, "account_id": accID}).
		Infof("Incoming call from %s", remote)

	s.emit(IncomingCall{
		CallID:     callID,
		RemoteURI:  remote,
		RemoteName: DisplayName(ci.RemoteInfo),
		Headers:    custom,
	})
}

func (c callbacks) OnCallState(callID int) {
	s := c.s
	ci, err := s.engine.CallInfo(callID)
	if err != nil {
		s.entry(err).WithField("call_id", callID).Error("Couldn't read call info")
		return
	}

	if ci.State == pjsua.StateConfirmed || ci.State == pjsua.StateDisconnected {
		s.emit(StopSound{})
	}
	if ci.State == pjsua.StateDisconnected {
		// The engine drops the session after hangup, so the dump goes first.
		s.emit(CallDump{CallID: callID, Dump: s.CallDump(callID)})
		s.Hangup(callID)
	}

	s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0, "call_id": callID}).
		Debugf("State of call %d changed to %d", callID, ci.State)

	s.emit(CallState{CallID: callID, State: ci.State, LastStatus: ci.LastStatus})
}

func (c callbacks) OnCallMediaState(callID int) {
	s := c.s
	ci, err := s.engine.CallInfo(callID)
	if err != nil {
		s.entry(err).WithField("call_id", callID).Error("Couldn't read call info")
		return
	}

	if ci.MediaStatus == pjsua.MediaActive {
		if err := s.engine.ConfConnect(ci.ConfSlot, 0); err != nil {
			s.entry(err).Error("Couldn't connect call to sound device")
		}
		if err := s.engine.ConfConnect(0, ci.ConfSlot); err != nil {
			s.entry(err).Error("Couldn't connect sound device to call")
		}
	}
	s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0, "call_id": callID}).
		Debugf("Media state of call %d changed to %d", callID, ci.MediaStatus)

	s.emit(MediaState{CallID: callID, Status: ci.MediaStatus})
}

// OnRegState always emits AccountState. The engine may report before
// AddAccount returns, so the callback's account id is used until ours is set.
func (c callbacks) OnRegState(accID int) {
	s := c.s
	if id := s.account(); id != -1 {
		accID = id
	}
	ai, err := s.engine.AccountInfo(accID)
	if err != nil {
		s.entry(err).WithFields(logrus.Fields{"domain": "pjsip-account", "account_id": accID}).
			Error("Couldn't read account info")
		status := pjsua.Code(err)
		if status < 300 {
			status = 500
		}
		s.emit(AccountState{Status: status})
		return
	}

	entry := s.log.WithFields(logrus.Fields{"domain": "pjsip-account", "code": ai.Status})
	if ai.Status < 300 {
		entry.Info(ai.StatusText)
	} else {
		entry.Error(ai.StatusText)
	}
	s.emit(AccountState{Status: ai.Status})
}
