// Package ipstack declares the host-facade contract that internal/udp
// depends on.
//
// IPv4 datagram framing, routing, TTL handling, and network interface
// state management are explicitly out of scope for this module — they
// are provided by a host IP stack that implements [Stack], and by
// opaque interface handles that implement [Iface].
// internal/netio supplies a real implementation of both for standalone
// use; tests supply an in-memory one.
package ipstack

import (
	"net/netip"

	"github.com/dantte-lp/goudpstack/internal/bufchain"
)

// AddrPair is the local/remote address pair a datagram is sent between.
type AddrPair struct {
	Local  netip.Addr
	Remote netip.Addr
}

// DatagramMeta carries the IP-layer metadata for an outgoing datagram.
type DatagramMeta struct {
	TTL   uint8
	Proto uint8
}

// SendFlags is an opaque flag set passed to the host Stack; this module
// never interprets its bits. udp.Core.Send takes no flags from its caller
// and always passes 0.
type SendFlags uint32

// RetryRequest is an opaque retry handle passed to the host Stack. Its
// semantics belong entirely to the host stack. udp.Core.Send takes no
// retry handle from its caller and always passes nil.
type RetryRequest any

// DestUnreachCode is an ICMPv4 Destination Unreachable code (RFC 792).
type DestUnreachCode uint8

// DestUnreachPortUnreach is ICMPv4 type 3 code 3.
const DestUnreachPortUnreach DestUnreachCode = 3

// DestUnreachMeta describes the ICMP Destination Unreachable message to
// emit for an unmatched, locally addressed datagram.
type DestUnreachMeta struct {
	Code DestUnreachCode
}

// RxInfo carries the IP-layer context of a received datagram: where it
// came from, where it was addressed to, and which interface it arrived
// on.
type RxInfo struct {
	SrcAddr netip.Addr
	DstAddr netip.Addr
	Iface   Iface
}

// Iface is an opaque network interface handle. Implementations are
// compared for identity with ==, so implementations should be pointer
// types.
type Iface interface {
	// IsLocalAddr reports whether addr is one of this interface's local
	// addresses.
	IsLocalAddr(addr netip.Addr) bool
}

// Stack is the subset of an IPv4 network stack that the UDP layer needs:
// sending a UDP/IPv4 datagram, and emitting an ICMP Destination
// Unreachable in response to one.
type Stack interface {
	// SendIP4Dgram frames dgram (which already includes the UDP header)
	// as an IPv4 datagram and transmits it.
	SendIP4Dgram(
		addrs AddrPair,
		meta DatagramMeta,
		dgram bufchain.Ref,
		iface Iface,
		retry RetryRequest,
		flags SendFlags,
	) error

	// SendIP4DestUnreach emits an ICMPv4 Destination Unreachable message
	// quoting original.
	SendIP4DestUnreach(rx RxInfo, original bufchain.Ref, meta DestUnreachMeta) error
}
