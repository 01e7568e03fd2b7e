// Package udp implements a UDP/IPv4 protocol handler: a demultiplexer
// that dispatches received datagrams to zero or more wildcard-capable
// listeners and at most one fully qualified 4-tuple association, plus
// the corresponding send path with pseudo-header checksum.
//
// Core is single-threaded and cooperative: all of its
// exported methods run to completion on one execution context and are
// not safe to call concurrently from multiple goroutines without
// external synchronization. A receive callback (Receiver.RecvUDPIP4Packet)
// may legally call back into Core -- sending datagrams, registering new
// listeners or associations, resetting any listener or association
// (including the one whose callback is running) -- but must not call
// Core.Close, and
// must not walk back to an already-visited listener.
package udp
