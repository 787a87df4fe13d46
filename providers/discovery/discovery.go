// Package discovery advertises and finds agents on the local network over
// mDNS, surfacing discovered peers through a callback other provider
// layers can act on rather than only logging them.
package discovery

import (
	"context"
	"fmt"
	"os"

	"github.com/grandcat/zeroconf"
)

const defaultDomain = "local."

// Announce registers this agent under serviceName on port. instance names
// this agent's advertisement; an empty instance falls back to a
// "collabtext-<hostname>" scheme. It returns a shutdown function to
// unregister.
func Announce(serviceName string, port int, instance string) (func(), error) {
	if instance == "" {
		host, _ := os.Hostname()
		instance = fmt.Sprintf("collabtext-%s", host)
	}
	server, err := zeroconf.Register(instance, serviceName, defaultDomain, port, []string{"txtv=0"}, nil)
	if err != nil {
		return nil, err
	}
	return server.Shutdown, nil
}

// Browse discovers peers advertising serviceName until ctx is canceled,
// invoking onPeer for each entry found.
func Browse(ctx context.Context, serviceName string, onPeer func(*zeroconf.ServiceEntry)) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return err
	}
	entries := make(chan *zeroconf.ServiceEntry)
	go func() {
		for entry := range entries {
			onPeer(entry)
		}
	}()
	return resolver.Browse(ctx, serviceName, defaultDomain, entries)
}
