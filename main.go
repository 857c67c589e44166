package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gopkg.in/ini.v1"

	"sipphone/phone"
	"sipphone/pjsua"
	"sipphone/sip"
	"sipphone/sound"
)

// reportPreviousCalls logs the calls that were still active when the last
// run stopped, then clears the record file.
func reportPreviousCalls(p *phone.Phone) {
	records, err := p.ErrorLogData()
	if err != nil {
		coreLog.Warnf("failed to read call records: %v", err)
		return
	}
	for _, r := range records {
		coreLog.WithField("user_data", r.UserData).Warnf("%s call %d with %s was active at shutdown (started %s)",
			r.Direction, r.ID, r.RemoteURI, r.StartTime.Format("2006-01-02 15:04:05"))
	}
	if err := p.DeleteErrorLog(); err != nil {
		coreLog.Warnf("failed to delete call records: %v", err)
	}
}

// logEvents is the bridge of this process: it reports every domain event.
func logEvents(ctx context.Context, events <-chan phone.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			switch e := e.(type) {
			case phone.IncomingCall:
				coreLog.Infof("incoming call %d from %s (%s)", e.Call.ID, e.Call.RemoteURI, e.Call.Name)
			case phone.CallStateChanged:
				coreLog.Debugf("call %d state %d, last status %d", e.CallID, e.State, e.LastStatus)
			case phone.AccountStateChanged:
				coreLog.Infof("account state %d (epoch %d)", e.State, e.Epoch)
			case phone.SoundDevicesUpdated:
				coreLog.Debug("sound devices updated")
			default:
				coreLog.Tracef("event %T", e)
			}
		}
	}
}

func main() {
	envCfg, err := loadEnvironment()
	if err != nil {
		fmt.Printf("failed to load environment: %v\n", err)
		return
	}

	cfg, err := ini.Load(envCfg.SettingsFile)
	if err != nil {
		fmt.Printf("failed to load settings: %v\n", err)
		return
	}

	settings, err := LoadSettings(cfg)
	if err != nil {
		fmt.Printf("failed to parse settings: %v\n", err)
		return
	}
	settings.applyEnvironment(envCfg)

	if err := initLogging(cfg); err != nil {
		fmt.Printf("failed to init logging: %v\n", err)
		return
	}
	defer closeLogging()
	coreLog.Info("settings loaded")

	errHook := &phone.ErrorHook{}
	pjsipLog.Logger.AddHook(errHook)
	phoneLog.Logger.AddHook(errHook)

	engine := pjsua.New()
	api := sip.New(engine, pjsipLog)
	api.SetLogging(filepath.Join(logDir, pjsipFileName))
	api.SetSoundDeviceStrings(settings.InputDevice(), settings.OutputDevice(), settings.RingDevice())

	player := sound.NewPlayer(engine, phoneLog.WithField("name", "sound"), settings.RingFile(), settings.DialFile())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	p := phone.New(api,
		phone.WithLogger(phoneLog),
		phone.WithRinger(player),
		phone.WithMetrics(phone.NewMetrics(reg)),
		phone.WithRecordFile(settings.RecordFile()),
		phone.WithErrorHook(errHook),
	)
	reportPreviousCalls(p)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if addr := settings.MetricsListen(); addr != "" {
		startServer(ctx, addr, newServeMux(reg, logDir))
	}

	events, unsubscribe := p.Subscribe()
	defer unsubscribe()
	go logEvents(ctx, events)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = p.Run(ctx)
	}()

	if err := p.Initialize(settings.SIP(), 0); err != nil {
		coreLog.Errorf("failed to start SIP engine: %v (%s)", err, p.ErrorMessage())
		stop()
		<-done
		return
	}
	if host, err := detectHostIP(); err != nil {
		coreLog.Warnf("SIP engine started with %s transport, host address unknown: %v", p.Transport(), err)
	} else {
		coreLog.Infof("SIP engine started with %s transport on %s", p.Transport(), host)
	}

	if settings.HasAccount() {
		if _, err := p.Register(settings.Account()); err != nil {
			coreLog.Errorf("failed to register %s@%s: %v", settings.Account().Username, settings.Account().Host, err)
		}
	} else {
		coreLog.Warn("no account configured, incoming calls only")
	}

	<-ctx.Done()
	<-done

	coreLog.Info("performing a graceful shutdown...")
	if err := p.Close(); err != nil {
		coreLog.Errorf("failed to record active calls: %v", err)
	}
	if err := api.Deinit(); err != nil {
		coreLog.Errorf("failed to stop SIP engine: %v", err)
	}
}
