package transport

import (
	"context"
	"net"
	"strings"
)

const unixPrefix = "unix:"

// SplitAddress maps a node address to a network and dial/listen address.
// "unix:/path" selects a local stream socket, anything else is TCP.
func SplitAddress(addr string) (network, address string) {
	if path, ok := strings.CutPrefix(addr, unixPrefix); ok {
		return "unix", path
	}
	return "tcp", addr
}

// Listen binds addr. For TCP the address reuse flag is set by the runtime.
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	network, address := SplitAddress(addr)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, network, address)
	if err != nil {
		return nil, err
	}

	if ul, ok := ln.(*net.UnixListener); ok {
		ul.SetUnlinkOnClose(true)
	}

	return ln, nil
}
