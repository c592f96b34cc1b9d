package dmap

import (
	"fmt"
	"strconv"
	"strings"
)

// Exec is the role of this process and the addresses it talks to.
type Exec struct {
	IsMaster   bool
	ListenAddr string
	// MasterAddr is set for workers only.
	MasterAddr string
	// WorkerAddrs is set for the master only. The position of an address is
	// the owner id of that worker.
	WorkerAddrs []string
}

// Workers returns the number of workers in the run.
func (e Exec) Workers() int {
	return len(e.WorkerAddrs)
}

func (e Exec) String() string {
	if e.IsMaster {
		return fmt.Sprintf("master listen=%s workers=[%s]", e.ListenAddr, strings.Join(e.WorkerAddrs, " "))
	}
	return fmt.Sprintf("worker listen=%s master=%s", e.ListenAddr, e.MasterAddr)
}

// Usage returns the positional argument synopsis for prog.
func Usage(prog string) string {
	return fmt.Sprintf(`usage:
  %[1]s true  <listen-addr> <worker-addr>...   run as master
  %[1]s false <listen-addr> <master-addr>      run as worker

addresses are host:port or unix:/path/to/socket`, prog)
}

// ParseArgs reads the role flag and addresses from positional arguments
// (program name excluded). Errors wrap ErrUsage.
func ParseArgs(args []string) (Exec, error) {
	if len(args) < 3 {
		return Exec{}, fmt.Errorf("%w: expected at least 3 arguments, got %d", ErrUsage, len(args))
	}

	isMaster, err := strconv.ParseBool(args[0])
	if err != nil {
		return Exec{}, fmt.Errorf("%w: role must be true (master) or false (worker), got %q", ErrUsage, args[0])
	}

	for i, a := range args[1:] {
		if strings.TrimSpace(a) == "" {
			return Exec{}, fmt.Errorf("%w: address %d is empty", ErrUsage, i+1)
		}
	}

	if isMaster {
		return Exec{
			IsMaster:    true,
			ListenAddr:  args[1],
			WorkerAddrs: append([]string(nil), args[2:]...),
		}, nil
	}

	if len(args) != 3 {
		return Exec{}, fmt.Errorf("%w: a worker takes exactly one master address, got %d", ErrUsage, len(args)-2)
	}

	return Exec{
		ListenAddr: args[1],
		MasterAddr: args[2],
	}, nil
}
