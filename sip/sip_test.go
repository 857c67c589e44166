package sip

import (
	"errors"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sipphone/pjsua"
	"sipphone/pjsua/pjsuatest"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) HandleSipEvent(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newSip(t *testing.T) (*Sip, *pjsuatest.Engine, *recorder, *test.Hook) {
	t.Helper()
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.TraceLevel)
	eng := pjsuatest.New()
	s := New(eng, logger.WithField("name", "pjsip"))
	rec := &recorder{}
	s.SetHandler(rec)
	return s, eng, rec, hook
}

func started(t *testing.T, settings Settings) (*Sip, *pjsuatest.Engine, *recorder, *test.Hook) {
	t.Helper()
	s, eng, rec, hook := newSip(t)
	require.NoError(t, s.Init(settings))
	eng.Reset()
	return s, eng, rec, hook
}

func TestInitPrefersTCP(t *testing.T) {
	s, eng, _, _ := newSip(t)
	settings := DefaultSettings()
	settings.SoundLevel = 0.5

	require.NoError(t, s.Init(settings))
	assert.True(t, s.IsInitialized())
	assert.Equal(t, TransportTCP, s.Transport())

	ops := eng.Ops("Create", "Init", "CreateTransport", "Start", "AdjustRxLevel", "AdjustTxLevel")
	names := make([]string, 0, len(ops))
	for _, op := range ops {
		names = append(names, op.Name)
	}
	assert.Equal(t, []string{"Create", "Init", "CreateTransport", "Start", "AdjustRxLevel", "AdjustTxLevel"}, names)
	assert.Equal(t, []any{pjsua.TransportTCP, 0}, ops[2].Args)
	assert.Equal(t, []any{0, float32(0.5)}, ops[4].Args)

	cfg := ops[1].Args[0].(pjsua.Config)
	assert.True(t, cfg.EchoCanceller)
	assert.Empty(t, cfg.StunServers)

	// second init is a no-op
	require.NoError(t, s.Init(settings))
	assert.Equal(t, 1, eng.Count("Create"))
}

func TestInitFallsBackToUDP(t *testing.T) {
	s, eng, _, hook := newSip(t)
	eng.FailOnce("CreateTransport", pjsua.StatusNotSupported)

	require.NoError(t, s.Init(DefaultSettings()))
	assert.Equal(t, TransportUDP, s.Transport())

	ops := eng.Ops("CreateTransport")
	require.Len(t, ops, 2)
	assert.Equal(t, pjsua.TransportTCP, ops[0].Args[0])
	assert.Equal(t, pjsua.TransportUDP, ops[1].Args[0])

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Message == "TCP transport creation failed" {
			warned = true
			assert.Equal(t, 70012, e.Data["code"])
		}
	}
	assert.True(t, warned)
}

func TestInitUDPOnly(t *testing.T) {
	s, eng, _, _ := newSip(t)
	settings := DefaultSettings()
	settings.Transport = TransportUDP
	settings.Port = 5070

	require.NoError(t, s.Init(settings))
	ops := eng.Ops("CreateTransport")
	require.Len(t, ops, 1)
	assert.Equal(t, []any{pjsua.TransportUDP, 5070}, ops[0].Args)
}

func TestInitNoTransportIsFatal(t *testing.T) {
	s, eng, _, hook := newSip(t)
	eng.Fail("CreateTransport", pjsua.StatusInvalid)

	err := s.Init(DefaultSettings())
	require.ErrorIs(t, err, ErrNoTransport)
	require.ErrorIs(t, err, pjsua.StatusInvalid)
	assert.False(t, s.IsInitialized())
	assert.Equal(t, 1, eng.Count("Destroy"))
	assert.Zero(t, eng.Count("Start"))

	last := hook.LastEntry()
	assert.Equal(t, logrus.ErrorLevel, last.Level)
	assert.Equal(t, true, last.Data["fatal"])
}

func TestInitFailures(t *testing.T) {
	for _, op := range []string{"Create", "Init", "Start"} {
		t.Run(op, func(t *testing.T) {
			s, eng, _, _ := newSip(t)
			eng.Fail(op, pjsua.StatusInvalid)
			require.Error(t, s.Init(DefaultSettings()))
			assert.False(t, s.IsInitialized())
		})
	}
}

func TestInitStunTooLong(t *testing.T) {
	s, eng, _, _ := newSip(t)
	settings := DefaultSettings()
	settings.StunServer = string(make([]byte, 100))

	require.ErrorIs(t, s.Init(settings), ErrStunTooLong)
	assert.Zero(t, eng.Count("Init"))
}

func TestInitStunServer(t *testing.T) {
	s, eng, _, _ := newSip(t)
	settings := DefaultSettings()
	settings.StunServer = "stun.example.com"
	settings.UseICE = true

	require.NoError(t, s.Init(settings))
	cfg := eng.Ops("Init")[0].Args[0].(pjsua.Config)
	assert.Equal(t, []string{"stun.example.com"}, cfg.StunServers)
	assert.True(t, cfg.EnableICE)
}

func TestSetLogging(t *testing.T) {
	s, eng, _, _ := newSip(t)
	s.SetLogging("/tmp/pjsip.log")
	assert.Zero(t, eng.Count("SetLogFile"))

	require.NoError(t, s.Init(DefaultSettings()))
	s.SetLogging("/tmp/pjsip.log")

	ops := eng.Ops("SetLogFile")
	require.Len(t, ops, 2)
	assert.Equal(t, []any{"/tmp/pjsip.log", false}, ops[0].Args)
	assert.Equal(t, []any{"/tmp/pjsip.log", true}, ops[1].Args)
}

func TestDeinit(t *testing.T) {
	s, eng, _, _ := started(t, DefaultSettings())
	_, err := s.Register("alice", "secret", "example.com")
	require.NoError(t, err)

	require.NoError(t, s.Deinit())
	assert.False(t, s.IsInitialized())
	assert.Equal(t, 1, eng.Count("HangupAll"))
	assert.Equal(t, 1, eng.Count("DelAccount"))
	assert.Equal(t, 1, eng.Count("Destroy"))
}

func TestRegisterNotStarted(t *testing.T) {
	s, eng, _, _ := newSip(t)
	id, err := s.Register("alice", "secret", "example.com")
	assert.Equal(t, RegNotStarted, id)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Zero(t, eng.Count("AddAccount"))
}

func TestRegister(t *testing.T) {
	s, eng, _, hook := started(t, DefaultSettings())

	id, err := s.Register("alice", "secret", "example.com")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, id, 0)
	assert.True(t, s.CheckAccountStatus())

	cfg := eng.Ops("AddAccount")[0].Args[0].(pjsua.AccountConfig)
	assert.Equal(t, "sip:alice@example.com", cfg.ID)
	assert.Equal(t, "sip:example.com;transport=tcp", cfg.RegURI)
	assert.Equal(t, "*", cfg.Realm)
	assert.Equal(t, "digest", cfg.Scheme)
	assert.Equal(t, "alice", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)

	id, err = s.Register("alice", "secret", "example.com")
	assert.Equal(t, RegAccountExists, id)
	assert.ErrorIs(t, err, ErrAccountExists)
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, 1, eng.Count("AddAccount"))

	s.Unregister()
	assert.False(t, s.CheckAccountStatus())
	_, err = s.Register("alice", "secret", "example.com")
	assert.NoError(t, err)
}

func TestRegisterUDPRegistrar(t *testing.T) {
	settings := DefaultSettings()
	settings.Transport = TransportUDP
	s, eng, _, _ := started(t, settings)

	_, err := s.Register("bob", "pw", "example.org")
	require.NoError(t, err)
	cfg := eng.Ops("AddAccount")[0].Args[0].(pjsua.AccountConfig)
	assert.Equal(t, "sip:example.org", cfg.RegURI)
}

func TestRegisterInvalidData(t *testing.T) {
	long := string(make([]byte, 100))
	for name, args := range map[string][3]string{
		"user":     {"a" + long, "pw", "example.com"},
		"password": {"alice", "p" + long, "example.com"},
		"host":     {"alice", "pw", "h" + long},
	} {
		t.Run(name, func(t *testing.T) {
			s, eng, _, _ := started(t, DefaultSettings())
			id, err := s.Register(args[0], args[1], args[2])
			assert.Equal(t, RegInvalidAccount, id)
			assert.ErrorIs(t, err, ErrInvalidAccount)
			assert.Zero(t, eng.Count("AddAccount"))
		})
	}
}

func TestRegisterEngineFailure(t *testing.T) {
	s, eng, _, hook := started(t, DefaultSettings())
	eng.FailOnce("AddAccount", pjsua.StatusInvalid)

	id, err := s.Register("alice", "secret", "example.com")
	assert.Equal(t, RegAccountAdd, id)
	assert.ErrorIs(t, err, ErrAccountAdd)
	assert.Equal(t, 70004, hook.LastEntry().Data["code"])
}

func TestAccountInfoEscapes(t *testing.T) {
	s, eng, _, _ := started(t, DefaultSettings())
	_, ok := s.AccountInfo()
	assert.False(t, ok)

	id, err := s.Register("alice", "secret", "example.com")
	require.NoError(t, err)
	eng.SetRegStatus(id, 200, "<OK & fine>")

	info, ok := s.AccountInfo()
	require.True(t, ok)
	assert.Equal(t, "sip:alice@example.com", info.Address)
	assert.Equal(t, "&lt;OK &amp; fine&gt;", info.Status)
	assert.Equal(t, "Online", info.OnlineStatus)
}

func TestIncomingCallForwardsCustomHeaders(t *testing.T) {
	s, eng, rec, _ := started(t, DefaultSettings())
	_ = s

	eng.Incoming(0, 7, "<sip:bob@10.0.0.2:5060>", `"Bob" <sip:bob@example.com>`, pjsua.Headers{
		{Name: "X-Customer", Value: "42"},
		{Name: "User-Agent", Value: "phone"},
	})

	events := rec.all()
	require.Len(t, events, 2)
	assert.Equal(t, RingSound{}, events[0])
	assert.Equal(t, IncomingCall{
		CallID:     7,
		RemoteURI:  "<sip:bob@10.0.0.2:5060>",
		RemoteName: "Bob",
		Headers:    pjsua.Headers{{Name: "X-Customer", Value: "42"}},
	}, events[1])
}

func TestDisconnectedCapturesDumpBeforeHangup(t *testing.T) {
	_, eng, rec, _ := started(t, DefaultSettings())
	eng.Incoming(0, 7, "<sip:bob@example.com>", "sip:bob@example.com", nil)
	eng.SetDump(7, "call 7 dump")
	eng.Reset()

	eng.SetCallState(7, pjsua.StateDisconnected, 487)

	ops := eng.Ops("CallDump", "Hangup")
	require.Len(t, ops, 2)
	assert.Equal(t, "CallDump", ops[0].Name)
	assert.Equal(t, "Hangup", ops[1].Name)

	events := rec.all()[2:]
	assert.Equal(t, []Event{
		StopSound{},
		CallDump{CallID: 7, Dump: "call 7 dump"},
		StopSound{},
		CallState{CallID: 7, State: pjsua.StateDisconnected, LastStatus: 487},
	}, events)
}

func TestConfirmedStopsSound(t *testing.T) {
	_, eng, rec, _ := started(t, DefaultSettings())
	eng.Incoming(0, 3, "sip:a@b", "sip:a@b", nil)

	eng.SetCallState(3, pjsua.StateEarly, 180)
	eng.SetCallState(3, pjsua.StateConfirmed, 200)

	events := rec.all()[2:]
	assert.Equal(t, []Event{
		CallState{CallID: 3, State: pjsua.StateEarly, LastStatus: 180},
		StopSound{},
		CallState{CallID: 3, State: pjsua.StateConfirmed, LastStatus: 200},
	}, events)
	assert.Zero(t, eng.Count("Hangup"))
}

func TestMediaActiveConnectsSoundDevice(t *testing.T) {
	_, eng, rec, _ := started(t, DefaultSettings())
	eng.Incoming(0, 4, "sip:a@b", "sip:a@b", nil)

	eng.SetMediaActive(4)

	ops := eng.Ops("ConfConnect")
	require.Len(t, ops, 2)
	assert.Equal(t, []any{5, 0}, ops[0].Args)
	assert.Equal(t, []any{0, 5}, ops[1].Args)
	assert.Contains(t, rec.all(), Event(MediaState{CallID: 4, Status: pjsua.MediaActive}))
}

func TestRegStateSeverity(t *testing.T) {
	s, eng, rec, hook := started(t, DefaultSettings())
	id, err := s.Register("alice", "secret", "example.com")
	require.NoError(t, err)

	eng.SetRegStatus(id, 200, "OK")
	assert.Equal(t, logrus.InfoLevel, hook.LastEntry().Level)
	assert.Equal(t, "pjsip-account", hook.LastEntry().Data["domain"])

	eng.SetRegStatus(id, 403, "Forbidden")
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, 403, hook.LastEntry().Data["code"])

	assert.Equal(t, []Event{AccountState{Status: 200}, AccountState{Status: 403}}, rec.all())
}

func TestRegStateBeforeAccountIsStored(t *testing.T) {
	s, eng, rec, _ := started(t, DefaultSettings())
	require.Equal(t, -1, s.account())

	eng.SetRegStatus(7, 200, "OK")

	ops := eng.Ops("AccountInfo")
	require.Len(t, ops, 1)
	assert.Equal(t, []any{7}, ops[0].Args)
	assert.Equal(t, []Event{AccountState{Status: int(pjsua.StatusNotFound)}}, rec.all())
}

func TestRegStateAccountInfoFailure(t *testing.T) {
	s, eng, rec, hook := started(t, DefaultSettings())
	id, err := s.Register("alice", "secret", "example.com")
	require.NoError(t, err)

	eng.Fail("AccountInfo", pjsua.StatusInvalid)
	eng.SetRegStatus(id, 200, "OK")

	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, "pjsip-account", hook.LastEntry().Data["domain"])
	assert.Equal(t, []Event{AccountState{Status: int(pjsua.StatusInvalid)}}, rec.all())
}

func TestMakeCall(t *testing.T) {
	s, eng, _, _ := newSip(t)
	id, err := s.MakeCall("sip:bob@example.com", nil)
	assert.Equal(t, -1, id)
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.Zero(t, eng.Count("MakeCall"))

	require.NoError(t, s.Init(DefaultSettings()))
	id, err = s.MakeCall("sip:"+string(make([]byte, 150)), nil)
	assert.Equal(t, -1, id)
	assert.ErrorIs(t, err, ErrURITooLong)

	hdrs := pjsua.Headers{{Name: "X-Ref", Value: "1"}}
	id, err = s.MakeCall("sip:bob@example.com", hdrs)
	require.NoError(t, err)
	assert.Equal(t, 0, id)
	assert.Equal(t, hdrs, eng.Ops("MakeCall")[0].Args[2])

	eng.FailOnce("MakeCall", pjsua.StatusInvalid)
	id, err = s.MakeCall("sip:bob@example.com", nil)
	assert.Equal(t, -1, id)
	assert.ErrorIs(t, err, pjsua.StatusInvalid)
}

func TestAnswer(t *testing.T) {
	s, eng, rec, hook := started(t, DefaultSettings())
	eng.Incoming(0, 2, "sip:a@b", "sip:a@b", nil)

	require.NoError(t, s.Answer(2, 180))
	assert.Equal(t, []any{2, 180}, eng.Ops("Answer")[0].Args)
	assert.NotContains(t, rec.all(), Event(StopSound{}))

	require.NoError(t, s.Answer(2, 200))
	assert.Equal(t, StopSound{}, rec.all()[len(rec.all())-1])

	eng.SetCallState(2, pjsua.StateConfirmed, 200)
	err := s.Answer(2, 200)
	assert.ErrorIs(t, err, ErrInvalidCall)
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
	assert.Equal(t, 2, eng.Count("Answer"))
}

func TestConference(t *testing.T) {
	s, eng, _, _ := started(t, DefaultSettings())
	eng.Incoming(0, 1, "sip:a@b", "sip:a@b", nil)
	eng.Incoming(0, 2, "sip:c@d", "sip:c@d", nil)

	assert.False(t, s.AddToConference(-1, 2))
	assert.Zero(t, eng.Count("ConfConnect"))

	assert.True(t, s.AddToConference(1, 2))
	assert.Equal(t, []any{2, 3}, eng.Ops("ConfConnect")[0].Args)

	assert.True(t, s.RemoveFromConference(2, 1))
	assert.Equal(t, []any{3, 2}, eng.Ops("ConfDisconnect")[0].Args)

	eng.FailOnce("ConfDisconnect", pjsua.StatusInvalid)
	assert.False(t, s.RemoveFromConference(2, 1))

	assert.False(t, s.AddToConference(1, 99))
}

func TestRedirect(t *testing.T) {
	s, eng, _, _ := started(t, DefaultSettings())
	assert.Equal(t, 0, s.Redirect(1, "sip:carol@example.com"))
	eng.FailOnce("Transfer", pjsua.StatusNotFound)
	assert.Equal(t, 70006, s.Redirect(1, "sip:carol@example.com"))
}

func TestSendDTMF(t *testing.T) {
	t.Run("rfc2833", func(t *testing.T) {
		s, eng, _, _ := started(t, DefaultSettings())
		assert.True(t, s.SendDTMF(1, "12#"))
		assert.Zero(t, eng.Count("SendRequest"))
	})

	t.Run("info fallback", func(t *testing.T) {
		s, eng, _, _ := started(t, DefaultSettings())
		eng.Fail("DialDTMF", pjsua.StatusNotSupported)

		assert.True(t, s.SendDTMF(1, "1#"))
		ops := eng.Ops("SendRequest")
		require.Len(t, ops, 2)
		assert.Equal(t, []any{1, "INFO", "application/dtmf-relay", "Signal=1\r\nDuration=300"}, ops[0].Args)
		assert.Equal(t, []any{1, "INFO", "application/dtmf-relay", "Signal=#\r\nDuration=300"}, ops[1].Args)
	})

	t.Run("fallback failure", func(t *testing.T) {
		s, eng, _, _ := started(t, DefaultSettings())
		eng.Fail("DialDTMF", pjsua.StatusNotSupported)
		eng.FailOnce("SendRequest", errors.New("boom"))

		assert.False(t, s.SendDTMF(1, "12"))
		assert.Equal(t, 2, eng.Count("SendRequest"))
	})
}

func TestSoundSignal(t *testing.T) {
	s, eng, rec, _ := started(t, DefaultSettings())
	eng.Incoming(0, 3, "sip:a@b", "sip:a@b", nil)

	s.SetSoundSignal(1, -1)
	s.SetMicroSignal(0.5, 3)

	assert.Equal(t, []any{0, float32(1)}, eng.Ops("AdjustRxLevel")[0].Args)
	assert.Equal(t, []any{4, float32(0.5)}, eng.Ops("AdjustTxLevel")[0].Args)

	events := rec.all()
	assert.Equal(t, SoundLevel{Level: 255}, events[len(events)-2])
	assert.Equal(t, MicroLevel{Level: 127}, events[len(events)-1])

	eng.SetSignalLevel(4, 10, 20)
	sound, micro := s.SignalLevels(3)
	assert.Equal(t, 20, sound)
	assert.Equal(t, 10, micro)
}

func TestSetCodecPriorityClamps(t *testing.T) {
	s, eng, _, _ := newSip(t)
	s.SetCodecPriority("PCMU", 10)
	assert.Zero(t, eng.Count("SetCodecPriority"))
	assert.Empty(t, s.CodecPriorities())

	require.NoError(t, s.Init(DefaultSettings()))
	s.SetCodecPriority("PCMU", 300)
	s.SetCodecPriority("PCMA", -5)

	ops := eng.Ops("SetCodecPriority")
	assert.Equal(t, []any{"PCMU", 255}, ops[0].Args)
	assert.Equal(t, []any{"PCMA", 0}, ops[1].Args)

	prios := s.CodecPriorities()
	assert.Equal(t, 255, prios["PCMU/8000/1"])
	assert.Equal(t, 0, prios["PCMA/8000/1"])
	assert.Equal(t, 120, prios["opus/48000/2"])
}

func TestSelectSoundDevices(t *testing.T) {
	s, eng, rec, _ := started(t, DefaultSettings())
	s.SetDefaultSoundDevice(7, 8)

	ring, ok := s.SetSoundDeviceStrings("USB Headset", "Built-in Output", "USB Headset")
	require.True(t, ok)
	assert.Equal(t, 2, ring)
	assert.Equal(t, []any{2, 1}, eng.Ops("SetSoundDevice")[0].Args)
	assert.Contains(t, rec.all(), Event(SoundDeviceChanged{}))

	// Built-in Output has no inputs, unmatched roles use the defaults
	ring, ok = s.SetSoundDeviceStrings("Built-in Output", "Missing", "")
	require.True(t, ok)
	assert.Equal(t, 8, ring)
	assert.Equal(t, []any{7, 8}, eng.Ops("SetSoundDevice")[1].Args)
}

func TestUpdateSoundDevices(t *testing.T) {
	s, eng, rec, _ := started(t, DefaultSettings())
	s.UpdateSoundDevices()
	assert.Equal(t, 1, eng.Count("ReinitSoundDevices"))
	assert.Equal(t, []Event{SoundDevicesUpdated{}}, rec.all())
	assert.Len(t, s.SoundDevices(), 3)
}

func TestParseTransport(t *testing.T) {
	assert.Equal(t, TransportUDP, ParseTransport("UDP"))
	assert.Equal(t, TransportTCP, ParseTransport(" tcp "))
	assert.Equal(t, TransportAuto, ParseTransport("tls"))
	assert.Equal(t, "auto", TransportAuto.String())
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Alice", DisplayName(`"Alice" <sip:alice@example.com>`))
	assert.Equal(t, "carol", DisplayName("sip:carol@example.com"))
	assert.Equal(t, "", DisplayName("  "))
}
