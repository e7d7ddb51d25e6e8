package transport

import (
	"context"
	"net"
	"net/http"

	"github.com/rs/dnscache"
)

var dnsResolver = &dnscache.Resolver{} //nolint:gochecknoglobals

// useDNSCacheDialer routes dials through the caching resolver, trying each
// resolved address until one connects.
func useDNSCacheDialer(trans *http.Transport, dialer *net.Dialer) {
	trans.DialContext = func(ctx context.Context, network string, addr string) (conn net.Conn, err error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}

		ips, err := dnsResolver.LookupHost(ctx, host)
		if err != nil {
			return nil, err
		}

		for _, ip := range ips {
			conn, err = dialer.DialContext(ctx, network, net.JoinHostPort(ip, port))
			if err == nil {
				return conn, nil
			}
		}

		return nil, err
	}
}
