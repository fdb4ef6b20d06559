package server

import (
	"fmt"
	"os"

	"github.com/hashicorp/mdns"
)

const serviceType = "_gdlive._tcp"

type announcer struct {
	srv *mdns.Server
}

// announce advertises the running server on the local network so
// viewers can find it without knowing host:port.
func announce(port int) (*announcer, error) {
	host, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}
	service, err := mdns.NewMDNSService(host, serviceType, "", "", port, nil, []string{signature})
	if err != nil {
		return nil, fmt.Errorf("mdns service: %w", err)
	}
	srv, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return nil, fmt.Errorf("mdns server: %w", err)
	}
	return &announcer{srv: srv}, nil
}

func (a *announcer) close() {
	a.srv.Shutdown()
}

// Discover browses the local network for running instances and calls
// found with each host:port.
func Discover(found func(addr string)) error {
	entries := make(chan *mdns.ServiceEntry, 8)
	go func() {
		for e := range entries {
			if e.AddrV4 == nil || e.Port == 0 {
				continue
			}
			found(fmt.Sprintf("%s:%d", e.AddrV4.String(), e.Port))
		}
	}()
	return mdns.Lookup(serviceType, entries)
}
