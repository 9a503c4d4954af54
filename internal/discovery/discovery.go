// Package discovery advertises a running query service over mDNS and finds
// advertised services for the remote commands.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/grandcat/zeroconf"
)

const (
	SERVICE_TYPE   = "_nitronimbus._tcp"
	DOMAIN         = "local."
	BROWSE_TIMEOUT = 5 * time.Second
)

var ErrNotFound = errors.New("no query service found on the local network")

// Advertisement keeps the mDNS registration alive until Shutdown.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers instance on port. text is published as TXT records.
func Advertise(instance string, port int, text []string) (*Advertisement, error) {
	server, err := zeroconf.Register(instance, SERVICE_TYPE, DOMAIN, port, text, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	return &Advertisement{server: server}, nil
}

func (a *Advertisement) Shutdown() {
	if a != nil && a.server != nil {
		a.server.Shutdown()
	}
}

// Endpoint is one advertised query service.
type Endpoint struct {
	Instance string
	HostName string
	Address  string
	Port     int
	Text     []string
}

// URL is the base URL of the service's HTTP API.
func (e Endpoint) URL() string {
	return "http://" + net.JoinHostPort(e.Address, strconv.Itoa(e.Port))
}

// Browse collects the services that answer within timeout.
func Browse(ctx context.Context, timeout time.Duration, logger *slog.Logger) ([]Endpoint, error) {
	return browse(ctx, timeout, 0, logger)
}

// First returns the first service that answers, without waiting out the
// rest of timeout.
func First(ctx context.Context, timeout time.Duration, logger *slog.Logger) (Endpoint, error) {
	endpoints, err := browse(ctx, timeout, 1, logger)
	if err != nil {
		return Endpoint{}, err
	}

	if len(endpoints) == 0 {
		return Endpoint{}, ErrNotFound
	}

	return endpoints[0], nil
}

// browse stops after limit endpoints, or at timeout when limit is 0.
func browse(ctx context.Context, timeout time.Duration, limit int, logger *slog.Logger) ([]Endpoint, error) {
	if logger == nil {
		logger = slog.Default()
	}

	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize resolver: %w", err)
	}

	// Cancelling also stops the resolver once collect returns early.
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, SERVICE_TYPE, DOMAIN, entries); err != nil {
		return nil, fmt.Errorf("failed to browse for %s: %w", SERVICE_TYPE, err)
	}

	return collect(ctx, entries, limit, logger), nil
}

func collect(ctx context.Context, entries <-chan *zeroconf.ServiceEntry, limit int, logger *slog.Logger) []Endpoint {
	var endpoints []Endpoint
	seen := map[string]bool{}

	for limit <= 0 || len(endpoints) < limit {
		select {
		case entry, ok := <-entries:
			if !ok {
				return endpoints
			}
			if entry == nil {
				continue
			}

			endpoint, found := endpointFromEntry(entry)
			if !found {
				logger.Debug("Ignoring mDNS entry without address", "instance", entry.Instance)
				continue
			}

			key := endpoint.URL()
			if seen[key] {
				continue
			}
			seen[key] = true

			logger.Debug("Found query service", "instance", endpoint.Instance, "url", key)
			endpoints = append(endpoints, endpoint)
		case <-ctx.Done():
			return endpoints
		}
	}

	return endpoints
}

func endpointFromEntry(entry *zeroconf.ServiceEntry) (Endpoint, bool) {
	if entry == nil || entry.Port == 0 {
		return Endpoint{}, false
	}

	var address string
	switch {
	case len(entry.AddrIPv4) > 0:
		address = entry.AddrIPv4[0].String()
	case len(entry.AddrIPv6) > 0:
		address = entry.AddrIPv6[0].String()
	default:
		return Endpoint{}, false
	}

	return Endpoint{
		Instance: entry.Instance,
		HostName: strings.TrimSuffix(entry.HostName, "."),
		Address:  address,
		Port:     entry.Port,
		Text:     entry.Text,
	}, true
}
