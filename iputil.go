package main

import (
	"errors"
	"net"
)

var errNoHostAddress = errors.New("no usable host address")

// hostAddress picks the address the SIP engine is most likely reachable on:
// the first global unicast IPv4 address, else the first global IPv6 one.
func hostAddress(addrs []net.Addr) (net.IP, error) {
	var v6 net.IP
	for _, addr := range addrs {
		ipnet, ok := addr.(*net.IPNet)
		if !ok || !ipnet.IP.IsGlobalUnicast() {
			continue
		}
		if ip4 := ipnet.IP.To4(); ip4 != nil {
			return ip4, nil
		}
		if v6 == nil {
			v6 = ipnet.IP
		}
	}
	if v6 == nil {
		return nil, errNoHostAddress
	}
	return v6, nil
}

func detectHostIP() (string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return "", err
	}
	ip, err := hostAddress(addrs)
	if err != nil {
		return "", err
	}
	return ip.String(), nil
}
