//go:build linux

package netio

import (
	"fmt"
	"log/slog"
	"net/netip"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/dantte-lp/goudpstack/internal/bufchain"
	"github.com/dantte-lp/goudpstack/internal/chksum"
	"github.com/dantte-lp/goudpstack/internal/ipstack"
)

// RawStack implements ipstack.Stack over IPv4 raw sockets with
// IP_HDRINCL: the handler builds the entire IPv4 header itself, since a
// caller-supplied TTL is required on every send (internal/udp.Core's
// WithTTL), not a fixed socket-wide default.
type RawStack struct {
	logger *slog.Logger

	mu     sync.Mutex
	sendFD int
	icmpFD int
}

// NewRawStack opens the raw sockets RawStack needs. It requires
// CAP_NET_RAW (or running as root).
func NewRawStack(logger *slog.Logger) (*RawStack, error) {
	sendFD, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		return nil, fmt.Errorf("netio: open send raw socket: %w", err)
	}
	if err := unix.SetsockoptInt(sendFD, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		_ = unix.Close(sendFD)
		return nil, fmt.Errorf("netio: set IP_HDRINCL on send socket: %w", err)
	}

	icmpFD, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_RAW)
	if err != nil {
		_ = unix.Close(sendFD)
		return nil, fmt.Errorf("netio: open icmp raw socket: %w", err)
	}
	if err := unix.SetsockoptInt(icmpFD, unix.IPPROTO_IP, unix.IP_HDRINCL, 1); err != nil {
		_ = unix.Close(sendFD)
		_ = unix.Close(icmpFD)
		return nil, fmt.Errorf("netio: set IP_HDRINCL on icmp socket: %w", err)
	}

	return &RawStack{
		logger: logger.With(slog.String("component", "netio.rawstack")),
		sendFD: sendFD,
		icmpFD: icmpFD,
	}, nil
}

// Close releases the underlying raw sockets.
func (s *RawStack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err1 := unix.Close(s.sendFD)
	err2 := unix.Close(s.icmpFD)
	if err1 != nil {
		return fmt.Errorf("netio: close send socket: %w", err1)
	}
	if err2 != nil {
		return fmt.Errorf("netio: close icmp socket: %w", err2)
	}
	return nil
}

// SendIP4Dgram implements ipstack.Stack.
// flags and retry are accepted for interface compatibility but are
// opaque to this host stack; RawStack has no retry queue.
func (s *RawStack) SendIP4Dgram(
	addrs ipstack.AddrPair,
	meta ipstack.DatagramMeta,
	dgram bufchain.Ref,
	iface ipstack.Iface,
	retry ipstack.RetryRequest,
	flags ipstack.SendFlags,
) error {
	payload := make([]byte, dgram.TotalLength())
	dgram.TakeBytes(len(payload), payload)

	hdr := &ipv4.Header{
		Version:  4,
		Len:      ipHeaderLen,
		TotalLen: ipHeaderLen + len(payload),
		TTL:      int(meta.TTL),
		Protocol: int(meta.Proto),
		Src:      addrs.Local.AsSlice(),
		Dst:      addrs.Remote.AsSlice(),
	}
	hdrBytes, err := hdr.Marshal()
	if err != nil {
		return fmt.Errorf("netio: marshal IPv4 header: %w", err)
	}

	packet := make([]byte, 0, len(hdrBytes)+len(payload))
	packet = append(packet, hdrBytes...)
	packet = append(packet, payload...)

	return s.sendRaw(s.sendFD, packet, addrs.Remote)
}

// SendIP4DestUnreach implements ipstack.Stack. It reconstructs a minimal
// IPv4 header for the quoted original datagram, since by the time
// internal/udp sees a received datagram its own IP header has already
// been stripped by this package's receive loop.
func (s *RawStack) SendIP4DestUnreach(rx ipstack.RxInfo, original bufchain.Ref, meta ipstack.DestUnreachMeta) error {
	quoteLen := original.TotalLength()
	if quoteLen > icmpQuoteLen {
		quoteLen = icmpQuoteLen
	}
	quote := make([]byte, quoteLen)
	original.SubTo(quoteLen).TakeBytes(quoteLen, quote)

	origHdr := &ipv4.Header{
		Version:  4,
		Len:      ipHeaderLen,
		TotalLen: ipHeaderLen + original.TotalLength(),
		TTL:      ipv4.DefaultTTL,
		Protocol: udpProtocol,
		Src:      rx.SrcAddr.AsSlice(),
		Dst:      rx.DstAddr.AsSlice(),
	}
	origHdrBytes, err := origHdr.Marshal()
	if err != nil {
		return fmt.Errorf("netio: marshal quoted IPv4 header: %w", err)
	}

	icmpMsg := make([]byte, icmpHeaderLen+len(origHdrBytes)+len(quote))
	icmpMsg[0] = 3 // Destination Unreachable
	icmpMsg[1] = byte(meta.Code)
	copy(icmpMsg[icmpHeaderLen:], origHdrBytes)
	copy(icmpMsg[icmpHeaderLen+len(origHdrBytes):], quote)

	node := &bufchain.Node{Data: icmpMsg}
	var acc chksum.Accumulator
	sum := acc.GetChksum(bufchain.Ref{Node: node, TotLen: len(icmpMsg)})
	icmpMsg[2] = byte(sum >> 8)
	icmpMsg[3] = byte(sum)

	outerHdr := &ipv4.Header{
		Version:  4,
		Len:      ipHeaderLen,
		TotalLen: ipHeaderLen + len(icmpMsg),
		TTL:      ipv4.DefaultTTL,
		Protocol: icmpProtocol,
		Src:      rx.DstAddr.AsSlice(),
		Dst:      rx.SrcAddr.AsSlice(),
	}
	outerHdrBytes, err := outerHdr.Marshal()
	if err != nil {
		return fmt.Errorf("netio: marshal ICMP IPv4 header: %w", err)
	}

	packet := make([]byte, 0, len(outerHdrBytes)+len(icmpMsg))
	packet = append(packet, outerHdrBytes...)
	packet = append(packet, icmpMsg...)

	return s.sendRaw(s.icmpFD, packet, rx.SrcAddr)
}

func (s *RawStack) sendRaw(fd int, packet []byte, dst netip.Addr) error {
	addr4 := dst.As4()
	sa := &unix.SockaddrInet4{Addr: addr4}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := unix.Sendto(fd, packet, 0, sa); err != nil {
		return fmt.Errorf("netio: sendto %s: %w", dst, err)
	}
	return nil
}
