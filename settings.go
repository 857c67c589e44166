package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	ini "gopkg.in/ini.v1"

	"sipphone/phone"
	"sipphone/sip"
)

// Settings holds application configuration loaded from settings.ini.
type Settings struct {
	transport  sip.Transport
	sipPort    int
	stunServer string
	useICE     bool
	soundLevel float64
	microLevel float64

	host     string
	username string
	password string

	inputDevice  string
	outputDevice string
	ringDevice   string
	ringFile     string
	dialFile     string

	metricsListen string
	recordFile    string
}

// environment holds the values that may be overridden from the process
// environment or an env file.
type environment struct {
	SettingsFile string `env:"SIPPHONE_SETTINGS" envDefault:"settings.ini"`
	Host         string `env:"SIPPHONE_HOST"`
	Username     string `env:"SIPPHONE_USERNAME"`
	Password     string `env:"SIPPHONE_PASSWORD"`
}

// loadEnvironment loads ENV_FILE (or .env when present) into the process
// environment and parses the overrides.
func loadEnvironment() (*environment, error) {
	if file := os.Getenv("ENV_FILE"); file != "" {
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	e := &environment{}
	if err := env.Parse(e); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}

// LoadSettings reads configuration from ini file and validates it.
func LoadSettings(cfg *ini.File) (*Settings, error) {
	s := &Settings{}

	sec := cfg.Section("sip")
	s.transport = sip.ParseTransport(sec.Key("transport").MustString("auto"))
	s.sipPort = sec.Key("port").MustInt(0)
	s.stunServer = sec.Key("stun_server").String()
	s.useICE = sec.Key("use_ice").MustBool(false)
	s.soundLevel = sec.Key("sound_level").MustFloat64(1)
	s.microLevel = sec.Key("micro_level").MustFloat64(1)

	sec = cfg.Section("account")
	s.host = sec.Key("host").String()
	s.username = sec.Key("username").String()
	s.password = sec.Key("password").String()

	sec = cfg.Section("sound")
	s.inputDevice = sec.Key("input_device").String()
	s.outputDevice = sec.Key("output_device").String()
	s.ringDevice = sec.Key("ring_device").String()
	s.ringFile = sec.Key("ring_file").String()
	s.dialFile = sec.Key("dial_file").String()

	s.metricsListen = cfg.Section("metrics").Key("listen").String()
	s.recordFile = cfg.Section("other").Key("record_file").MustString("error.log")

	if s.soundLevel < 0 || s.soundLevel > 1 || s.microLevel < 0 || s.microLevel > 1 {
		return nil, fmt.Errorf("sound and micro levels must be within 0.0 and 1.0")
	}
	if s.sipPort < 0 || s.sipPort > 65535 {
		return nil, fmt.Errorf("invalid sip port %d", s.sipPort)
	}

	return s, nil
}

// applyEnvironment overrides the account credentials with non-empty
// environment values.
func (s *Settings) applyEnvironment(e *environment) {
	if e.Host != "" {
		s.host = e.Host
	}
	if e.Username != "" {
		s.username = e.Username
	}
	if e.Password != "" {
		s.password = e.Password
	}
}

func (s *Settings) SIP() sip.Settings {
	return sip.Settings{
		Transport:  s.transport,
		Port:       s.sipPort,
		StunServer: s.stunServer,
		UseICE:     s.useICE,
		SoundLevel: float32(s.soundLevel),
		MicroLevel: float32(s.microLevel),
	}
}

func (s *Settings) Account() phone.Account {
	return phone.Account{Username: s.username, Password: s.password, Host: s.host}
}

func (s *Settings) HasAccount() bool { return s.host != "" && s.username != "" }

func (s *Settings) InputDevice() string  { return s.inputDevice }
func (s *Settings) OutputDevice() string { return s.outputDevice }
func (s *Settings) RingDevice() string   { return s.ringDevice }
func (s *Settings) RingFile() string     { return s.ringFile }
func (s *Settings) DialFile() string     { return s.dialFile }

func (s *Settings) MetricsListen() string { return s.metricsListen }
func (s *Settings) RecordFile() string    { return s.recordFile }
