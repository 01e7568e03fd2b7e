package udp

import (
	"encoding/binary"
	"fmt"
	"log/slog"

	"github.com/dantte-lp/goudpstack/internal/bufchain"
	"github.com/dantte-lp/goudpstack/internal/chksum"
	"github.com/dantte-lp/goudpstack/internal/ipstack"
)

// DefaultTTL is the outgoing IPv4 TTL Core.Send uses unless overridden
// with WithTTL.
const DefaultTTL = 64

// Core is the UDP/IPv4 protocol handler: it demultiplexes received
// datagrams to registered listeners and associations, and frames
// outgoing datagrams for a host [ipstack.Stack].
//
// Core is single-threaded and cooperative: it holds no
// internal lock. This is a deliberate divergence from patterns elsewhere
// in this codebase that guard shared state with a sync.RWMutex — those
// exist because that state is touched from independently scheduled
// goroutines, which this type's single-threaded contract rules out.
// Callers that do drive a Core from multiple goroutines must
// synchronize externally.
type Core struct {
	stack  ipstack.Stack
	logger *slog.Logger
	ttl    uint8

	assocIndex AssociationIndex

	listenersHead *Listener
	listenerCount int
	assocCount    int

	// nextListener is the safe-iteration cursor: whichever Listener Recv
	// is about to visit next, or nil. ResetListener consults this to
	// avoid using a freed Listener when a receive callback removes its
	// own successor.
	nextListener *Listener

	metrics MetricsSink
}

// Option configures optional Core parameters.
type Option func(*Core)

// WithTTL overrides the outgoing IPv4 TTL (default [DefaultTTL]).
func WithTTL(ttl uint8) Option {
	return func(c *Core) { c.ttl = ttl }
}

// WithMetrics sets the MetricsSink used to report send/receive counters.
// If sink is nil, a no-op sink is used.
func WithMetrics(sink MetricsSink) Option {
	return func(c *Core) {
		if sink != nil {
			c.metrics = sink
		}
	}
}

// WithAssociationIndex overrides the default map-backed AssociationIndex
// with a caller-supplied implementation, for pluggable association storage.
func WithAssociationIndex(idx AssociationIndex) Option {
	return func(c *Core) {
		if idx != nil {
			c.assocIndex = idx
		}
	}
}

// NewCore creates a UDP protocol handler bound to stack.
func NewCore(stack ipstack.Stack, logger *slog.Logger, opts ...Option) *Core {
	c := &Core{
		stack:      stack,
		ttl:        DefaultTTL,
		assocIndex: newMapAssociationIndex(),
		metrics:    noopMetrics{},
		logger:     logger.With(slog.String("component", "udp.core")),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListenerCount returns the number of currently registered listeners.
func (c *Core) ListenerCount() int { return c.listenerCount }

// AssociationCount returns the number of currently registered associations.
func (c *Core) AssociationCount() int { return c.assocCount }

// Close destroys c. Its precondition is that no listeners or
// associations remain attached; violating it
// is a programmer error, not a runtime outcome, so it
// panics rather than returning an error.
func (c *Core) Close() {
	if c.listenerCount != 0 || c.assocCount != 0 {
		panic("udp: Core.Close: listeners or associations still attached")
	}
}

// Send builds and transmits a UDP/IPv4 datagram.
//
// data must have at least headerSize bytes revealed ahead of its current
// range — that is, data.RevealHeader(headerSize) must succeed — since
// Send writes the UDP header directly into that space. Most callers
// obtain data via a scratch Node sized headerSize bytes larger than the
// payload and an initial Ref already offset past the header.
func (c *Core) Send(addrs ipstack.AddrPair, info TxInfo, data bufchain.Ref, iface ipstack.Iface) error {
	if data.TotalLength() > maxDataLen {
		return fmt.Errorf("udp: Send: payload of %d bytes exceeds maximum of %d", data.TotalLength(), maxDataLen)
	}

	dgram := data.RevealHeaderMust(headerSize)
	udpLen := uint16(dgram.TotalLength())

	var hdr [headerSize]byte
	binary.BigEndian.PutUint16(hdr[0:2], info.SrcPort)
	binary.BigEndian.PutUint16(hdr[2:4], info.DstPort)
	binary.BigEndian.PutUint16(hdr[4:6], udpLen)
	binary.BigEndian.PutUint16(hdr[6:8], 0) // checksum placeholder

	header := dgram
	header.GiveBytes(headerSize, hdr[:])

	var acc chksum.Accumulator
	acc.AddWords(addrs.Local.AsSlice())
	acc.AddWords(addrs.Remote.AsSlice())
	acc.AddWord(protoUDP)
	acc.AddWord(udpLen)
	sum := acc.GetChksum(dgram)
	if sum == 0 {
		// Wire rule: a computed checksum of exactly zero is sent as
		// all-ones, since zero on the wire means "no checksum".
		sum = 0xFFFF
	}
	binary.BigEndian.PutUint16(hdr[6:8], sum)
	rewrite := dgram
	rewrite.GiveBytes(headerSize, hdr[:])

	meta := ipstack.DatagramMeta{TTL: c.ttl, Proto: protoUDP}
	if err := c.stack.SendIP4Dgram(addrs, meta, dgram, iface, nil, 0); err != nil {
		return err
	}
	c.metrics.DatagramSent()
	return nil
}

// Recv demultiplexes a received UDP/IPv4 datagram. data starts at the UDP header.
//
// Recv never returns an error for malformed or unmatched wire data;
// those are silent drops, optionally counted via the MetricsSink. A
// non-nil error return indicates a failure from the host Stack while
// emitting an ICMP Destination Unreachable response.
func (c *Core) Recv(ip ipstack.RxInfo, data bufchain.Ref) error {
	if !data.HasHeader(headerSize) {
		c.metrics.DatagramDroppedMalformed()
		return nil
	}

	var hdr [headerSize]byte
	peek := data
	peek.TakeBytes(headerSize, hdr[:])

	srcPort := binary.BigEndian.Uint16(hdr[0:2])
	dstPort := binary.BigEndian.Uint16(hdr[2:4])
	udpLen := binary.BigEndian.Uint16(hdr[4:6])
	wireChksum := binary.BigEndian.Uint16(hdr[6:8])

	if int(udpLen) < headerSize || int(udpLen) > data.TotalLength() {
		c.metrics.DatagramDroppedMalformed()
		return nil
	}
	dgram := data.SubTo(int(udpLen))
	payload := dgram.HideHeader(headerSize)

	dstIsIfaceAddr := ip.Iface != nil && ip.Iface.IsLocalAddr(ip.DstAddr)

	checksumState := 0 // 0 = not yet verified, 1 = verified ok, 2 = verified bad
	verify := func() bool {
		if checksumState == 0 {
			if wireChksum == 0 {
				checksumState = 1
			} else if c.verifyChecksum(ip, udpLen, dgram) {
				checksumState = 1
			} else {
				checksumState = 2
			}
		}
		return checksumState == 1
	}

	c.metrics.DatagramReceived()

	rxInfo := RxInfo{SrcPort: srcPort, DstPort: dstPort, HasChecksum: wireChksum != 0}

	accepted := false

	key := Key{LocalAddr: ip.DstAddr, RemoteAddr: ip.SrcAddr, LocalPort: dstPort, RemotePort: srcPort}
	if assoc, ok := c.assocIndex.Lookup(key); ok && (assoc.params.AcceptNonlocalDst || dstIsIfaceAddr) {
		if verify() {
			result := assoc.recv.RecvUDPIP4Packet(ip, rxInfo, payload)
			if result != Reject {
				accepted = true
			}
			if result == AcceptStop {
				return nil
			}
		}
	}

	c.nextListener = c.listenersHead
	for c.nextListener != nil {
		l := c.nextListener
		c.nextListener = l.next

		if l.params.LocalPort != 0 && l.params.LocalPort != dstPort {
			continue
		}
		if !l.params.addrIsWildcard() && l.params.LocalAddr != ip.DstAddr {
			continue
		}
		if l.params.Iface != nil && l.params.Iface != ip.Iface {
			continue
		}
		if !l.params.AcceptNonlocalDst && !dstIsIfaceAddr {
			continue
		}
		if !verify() {
			break
		}

		result := l.recv.RecvUDPIP4Packet(ip, rxInfo, payload)
		if result != Reject {
			accepted = true
		}
		if result == AcceptStop {
			c.nextListener = nil
			return nil
		}
	}
	c.nextListener = nil

	if accepted {
		return nil
	}

	canUnreach := dstIsIfaceAddr && verify()
	if checksumState == 2 {
		c.metrics.DatagramDroppedChecksum()
	} else {
		c.metrics.DatagramDroppedNoMatch()
	}
	if !canUnreach {
		return nil
	}

	unreach := ipstack.DestUnreachMeta{Code: ipstack.DestUnreachPortUnreach}
	if err := c.stack.SendIP4DestUnreach(ip, dgram, unreach); err != nil {
		return err
	}
	c.metrics.DestUnreachSent()
	return nil
}

// verifyChecksum recomputes the pseudo-header-plus-datagram sum,
// including the datagram's own (nonzero) checksum field, and checks
// that it folds to zero. A wire value of 0 means "no checksum" and is
// verified by the caller before this is reached.
//
// This relies on the standard one's-complement checksum identity: the
// sender computed its checksum field as the one's complement of the sum
// of every other word, so summing all words including that field always
// folds to all-ones, whose one's complement (what GetChksum returns) is
// zero for a datagram that has not been corrupted in transit.
func (c *Core) verifyChecksum(ip ipstack.RxInfo, udpLen uint16, dgram bufchain.Ref) bool {
	var acc chksum.Accumulator
	acc.AddWords(ip.SrcAddr.AsSlice())
	acc.AddWords(ip.DstAddr.AsSlice())
	acc.AddWord(protoUDP)
	acc.AddWord(udpLen)
	return acc.GetChksum(dgram) == 0
}
