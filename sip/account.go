package sip

import (
	"fmt"
	"strings"

	"github.com/ghettovoice/gosip/sip/parser"
	"github.com/sirupsen/logrus"

	"sipphone/pjsua"
)

// AccountInfo is the registered account as shown to the user. Values are
// HTML-escaped.
type AccountInfo struct {
	Address      string
	Status       string
	OnlineStatus string
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;")

func (s *Sip) account() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accID
}

// Register adds the account sip:user@host and starts registration. On
// failure the returned id is one of the Reg* sentinels.
func (s *Sip) Register(user, password, host string) (int, error) {
	if !s.IsInitialized() {
		s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).Error("SIP is not initialized")
		return RegNotStarted, ErrNotStarted
	}
	if s.engine.AccountValid(s.account()) {
		s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).Warn("Account already exists")
		return RegAccountExists, ErrAccountExists
	}

	id := "sip:" + user + "@" + host
	uri := "sip:" + host
	if s.Transport() == TransportTCP {
		uri += ";transport=tcp"
	}

	if err := validateAccount(id, uri, user, password, host); err != nil {
		s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).
			Errorf("Error adding account: Invalid data: %v", err)
		return RegInvalidAccount, fmt.Errorf("%w: %w", ErrInvalidAccount, err)
	}

	cfg := pjsua.AccountConfig{
		ID:       id,
		RegURI:   uri,
		Realm:    "*",
		Scheme:   "digest",
		Username: user,
		Password: password,
	}
	accID, err := s.engine.AddAccount(cfg)
	if err != nil {
		s.entry(err).Error("Error adding account")
		return RegAccountAdd, fmt.Errorf("%w: %w", ErrAccountAdd, err)
	}

	s.mu.Lock()
	s.accID = accID
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).
		Infof("Registering user with account-id %d", accID)
	s.log.WithFields(logrus.Fields{
		"domain": "pjsip",
		"user":   user,
		"host":   host,
		"realm":  cfg.Realm,
		"uri":    uri,
		"id":     id,
	}).Debug("Registration details")

	return accID, nil
}

func validateAccount(id, uri, user, password, host string) error {
	switch {
	case len(id) > maxIDLen:
		return fmt.Errorf("id longer than %d", maxIDLen)
	case len(uri) > maxFieldLen:
		return fmt.Errorf("uri longer than %d", maxFieldLen)
	case len(user) > maxFieldLen, len(password) > maxFieldLen, len(host) > maxFieldLen:
		return fmt.Errorf("credentials longer than %d", maxFieldLen)
	}
	if _, err := parser.ParseUri(id); err != nil {
		return fmt.Errorf("parse id: %w", err)
	}
	if _, err := parser.ParseUri(uri); err != nil {
		return fmt.Errorf("parse registrar uri: %w", err)
	}
	return nil
}

// Unregister hangs up all calls and removes the account, if one is valid.
func (s *Sip) Unregister() {
	acc := s.account()
	if !s.engine.AccountValid(acc) {
		return
	}
	s.HangupAll()
	if err := s.engine.DelAccount(acc); err != nil {
		s.entry(err).Error("Error removing account")
	}

	s.mu.Lock()
	s.accID = -1
	s.mu.Unlock()

	s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).Info("Account unregistered")
}

// CheckAccountStatus reports whether the engine is started and an account is
// registered.
func (s *Sip) CheckAccountStatus() bool {
	return s.IsInitialized() && s.engine.AccountValid(s.account())
}

// AccountInfo returns the registered account, or false when none is active.
func (s *Sip) AccountInfo() (AccountInfo, bool) {
	acc := s.account()
	if !s.engine.AccountValid(acc) {
		s.log.WithFields(logrus.Fields{"domain": "pjsip", "code": 0}).Warn("Account is not active")
		return AccountInfo{}, false
	}
	ai, err := s.engine.AccountInfo(acc)
	if err != nil {
		s.entry(err).Error("Error reading account info")
		return AccountInfo{}, false
	}
	return AccountInfo{
		Address:      htmlEscaper.Replace(ai.URI),
		Status:       htmlEscaper.Replace(ai.StatusText),
		OnlineStatus: htmlEscaper.Replace(ai.OnlineStatusText),
	}, true
}
