package sip

import (
	"strings"

	"github.com/ghettovoice/gosip/sip/parser"
)

// DisplayName returns the display name of a name-addr such as
// `"Alice" <sip:alice@example.com>`. Without a display name it returns the
// user part of the URI, and unparsable input is returned trimmed.
func DisplayName(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	name, uri, _, err := parser.ParseAddressValue(addr)
	if err != nil {
		return addr
	}
	if name != nil {
		if n := strings.Trim(name.String(), `"`); n != "" {
			return n
		}
	}
	if uri != nil {
		if u := uri.User(); u != nil && u.String() != "" {
			return u.String()
		}
	}
	return addr
}

// AddressURI returns the URI of a name-addr, or addr itself when it does not
// parse.
func AddressURI(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return ""
	}
	_, uri, _, err := parser.ParseAddressValue(addr)
	if err != nil || uri == nil {
		return addr
	}
	return uri.String()
}
