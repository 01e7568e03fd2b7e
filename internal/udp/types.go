package udp

import (
	"net/netip"

	"github.com/dantte-lp/goudpstack/internal/bufchain"
	"github.com/dantte-lp/goudpstack/internal/ipstack"
)

// protoUDP is the IPv4 protocol number for UDP.
const protoUDP = 17

// headerSize is the UDP header size in bytes.
const headerSize = 8

// maxDataLen is the largest UDP payload Core.Send accepts: the 16-bit
// length field must hold headerSize+len(data).
const maxDataLen = 65535 - headerSize

// Key is the ordered 4-tuple that uniquely identifies an association.
// Associations are unique on this key; AssociationIndex
// implementations reject duplicate inserts.
type Key struct {
	LocalAddr  netip.Addr
	RemoteAddr netip.Addr
	LocalPort  uint16
	RemotePort uint16
}

// ListenParams configures a Listener. A zero LocalAddr or
// zero LocalPort acts as a wildcard; a nil Iface wildcards the receive
// interface; AcceptNonlocalDst lifts the requirement that the datagram's
// destination equal the interface's local address.
type ListenParams struct {
	LocalAddr         netip.Addr
	LocalPort         uint16
	Iface             ipstack.Iface
	AcceptNonlocalDst bool
}

func (p ListenParams) addrIsWildcard() bool {
	return !p.LocalAddr.IsValid() || p.LocalAddr.IsUnspecified()
}

// AssociationParams configures an Association.
type AssociationParams struct {
	Key               Key
	AcceptNonlocalDst bool
}

// RxInfo is the UDP-layer metadata passed to a Receiver alongside the
// payload. HasChecksum is false exactly when the received checksum
// field was the wire value 0, meaning "no checksum present" --
// verification is skipped in that case, not treated as a failure.
type RxInfo struct {
	SrcPort     uint16
	DstPort     uint16
	HasChecksum bool
}

// TxInfo is the UDP-layer metadata supplied to Core.Send.
type TxInfo struct {
	SrcPort uint16
	DstPort uint16
}

// Result is the three-valued verdict a Receiver returns to control
// further dispatch of a single datagram.
type Result int

const (
	// Reject means the receiver did not accept the datagram; dispatch
	// continues to the next candidate (listener, or the ICMP fallback).
	Reject Result = iota
	// AcceptContinue means the receiver accepted the datagram but
	// dispatch should continue to listeners anyway.
	AcceptContinue
	// AcceptStop means the receiver accepted the datagram and no further
	// receiver (association or listener) should see it.
	AcceptStop
)

// String renders the verdict for logging.
func (r Result) String() string {
	switch r {
	case Reject:
		return "Reject"
	case AcceptContinue:
		return "AcceptContinue"
	case AcceptStop:
		return "AcceptStop"
	default:
		return "Unknown"
	}
}

// Receiver is implemented by listeners and associations to accept
// received UDP payloads. data has the UDP header already hidden.
type Receiver interface {
	RecvUDPIP4Packet(ip ipstack.RxInfo, udp RxInfo, data bufchain.Ref) Result
}
