package dmap

import (
	"errors"

	"pkg.jsn.cam/dmap/internal/master"
	"pkg.jsn.cam/dmap/internal/worker"
	"pkg.jsn.cam/dmap/pkg/dmap/transport"
)

// Sentinel errors for the conditions callers may want to tell apart.
var (
	// Startup
	ErrUsage         = errors.New("usage")
	ErrListen        = transport.ErrListen
	ErrConnectFailed = transport.ErrConnectFailed

	// Steady state
	ErrMalformedFrame  = transport.ErrMalformedFrame
	ErrEncodeFailed    = transport.ErrEncodeFailed
	ErrTransformFailed = worker.ErrTransformFailed
	ErrIncomplete      = master.ErrIncomplete
)
