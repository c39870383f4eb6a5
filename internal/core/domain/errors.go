package domain

import "errors"

var (
	// ErrConfig is returned for invalid configuration caught before any
	// process or RPC interaction takes place.
	ErrConfig = errors.New("invalid configuration")
	// ErrLaunchFailed is returned when the external node process cannot be
	// spawned (missing binary, bad arguments).
	ErrLaunchFailed = errors.New("node process launch failed")
	// ErrPortInUse is returned when a required port is already bound.
	ErrPortInUse = errors.New("port already in use")
	// ErrInstanceInUse is returned when starting an instance whose ID is
	// already backed by a live process.
	ErrInstanceInUse = errors.New("instance already in use")
	// ErrTimedOut is returned when readiness polling exhausts its attempts.
	// It is distinguishable from a hard launch error so callers can decide
	// to wait longer instead of fixing configuration.
	ErrTimedOut = errors.New("timed out waiting for node readiness")
	// ErrNotRunning is returned for operations that require a ready node.
	ErrNotRunning = errors.New("node is not running")
	// ErrAlreadyRunning ...
	ErrAlreadyRunning = errors.New("node is already running")
	// ErrNotSupported is returned for operations the chain has no
	// primitive for, like mining on Solana.
	ErrNotSupported = errors.New("operation not supported by this chain")
	// ErrTransport is returned for network-level RPC failures.
	ErrTransport = errors.New("rpc transport error")
	// ErrRPCRejected is returned when the node answered with a structured
	// error.
	ErrRPCRejected = errors.New("rpc request rejected by node")
	// ErrInvalidMnemonic ...
	ErrInvalidMnemonic = errors.New("mnemonic is invalid")
	// ErrEntropySource is returned only if the system randomness source
	// is unavailable.
	ErrEntropySource = errors.New("entropy source unavailable")
	// ErrStorage is returned for persistence I/O failures.
	ErrStorage = errors.New("storage error")
	// ErrNodeNotFound ...
	ErrNodeNotFound = errors.New("node not found in registry")
)
