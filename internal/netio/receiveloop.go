//go:build linux

package netio

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"

	"github.com/dantte-lp/goudpstack/internal/bufchain"
	"github.com/dantte-lp/goudpstack/internal/ipstack"
	"github.com/dantte-lp/goudpstack/internal/udp"
)

// recvBufSize is large enough for a maximum-size IPv4 datagram.
const recvBufSize = 65535

// ReceiveLoop reads raw IPv4/UDP datagrams from a single raw socket and
// hands each one to a udp.Core for demultiplexing: one goroutine per
// listening socket, logged and dropped read errors, context-driven
// shutdown.
type ReceiveLoop struct {
	fd     int
	core   Core
	iface  *Iface
	logger *slog.Logger
}

// Core is the subset of udp.Core that ReceiveLoop drives.
type Core interface {
	Recv(ip ipstack.RxInfo, data bufchain.Ref) error
}

var _ Core = (*udp.Core)(nil)

// NewReceiveLoop opens a raw socket that receives IPv4/UDP traffic and
// wraps it in a ReceiveLoop that feeds core. iface supplies the
// ipstack.Iface identity and local-address set attributed to datagrams
// read from this socket.
//
// If iface.Name() is non-empty, the socket is bound to that device with
// SO_BINDTODEVICE so that serving several named interfaces concurrently
// doesn't hand the same wire datagram to more than one ReceiveLoop.
func NewReceiveLoop(core *udp.Core, iface *Iface, logger *slog.Logger) (*ReceiveLoop, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_RAW, unix.IPPROTO_UDP)
	if err != nil {
		return nil, fmt.Errorf("netio: open recv raw socket: %w", err)
	}
	if name := iface.Name(); name != "" {
		if err := unix.BindToDevice(fd, name); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("netio: bind recv socket to %s: %w", name, err)
		}
	}
	return &ReceiveLoop{
		fd:     fd,
		core:   core,
		iface:  iface,
		logger: logger.With(slog.String("component", "netio.receiveloop"), slog.String("iface", iface.Name())),
	}, nil
}

// Run reads datagrams until ctx is cancelled. Read errors are logged and
// do not stop the loop; only context cancellation does.
func (l *ReceiveLoop) Run(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		_ = unix.Close(l.fd)
		close(done)
	}()

	buf := make([]byte, recvBufSize)
	for {
		n, _, err := unix.Recvfrom(l.fd, buf, 0)
		if err != nil {
			select {
			case <-done:
				return nil
			default:
				l.logger.Warn("recvfrom failed", slog.String("error", err.Error()))
				continue
			}
		}

		if err := l.dispatch(buf[:n]); err != nil {
			l.logger.Warn("recv dispatch failed", slog.String("error", err.Error()))
		}
	}
}

func (l *ReceiveLoop) dispatch(raw []byte) error {
	hdr, err := ipv4.ParseHeader(raw)
	if err != nil {
		return nil // malformed IP header: silent drop
	}

	src, ok := netip.AddrFromSlice(hdr.Src)
	if !ok {
		return nil
	}
	dst, ok := netip.AddrFromSlice(hdr.Dst)
	if !ok {
		return nil
	}

	payload := raw[hdr.Len:]
	node := &bufchain.Node{Data: payload}
	dgram := bufchain.Ref{Node: node, TotLen: len(payload)}

	rx := ipstack.RxInfo{
		SrcAddr: src.Unmap(),
		DstAddr: dst.Unmap(),
		Iface:   l.iface,
	}
	return l.core.Recv(rx, dgram)
}

// Close releases the underlying raw socket; prefer cancelling the
// context passed to Run, which closes it for you.
func (l *ReceiveLoop) Close() error {
	return unix.Close(l.fd)
}
