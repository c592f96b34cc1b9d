package main

import (
	"runtime/debug"

	"pkg.jsn.cam/dmap/pkg/dmap/protocol"
)

func versionString() string {
	v := "(devel)"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		v = info.Main.Version
	}
	return v + " (protocol " + protocol.ProtocolVersion + ")"
}
