package commands

import (
	"fmt"
	"net/netip"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/goudpstack/internal/bufchain"
	"github.com/dantte-lp/goudpstack/internal/config"
	"github.com/dantte-lp/goudpstack/internal/ipstack"
	"github.com/dantte-lp/goudpstack/internal/netio"
	"github.com/dantte-lp/goudpstack/internal/udp"
)

// sendHeaderSlack is the leading space reserved in the scratch buffer for
// the UDP header that Core.Send writes via RevealHeaderMust(8).
const sendHeaderSlack = 8

func sendCmd() *cobra.Command {
	var (
		srcAddr string
		dstAddr string
		srcPort uint16
		dstPort uint16
		ttl     uint8
		payload string
	)

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Send a single UDP/IPv4 datagram for manual interop testing",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runSend(srcAddr, dstAddr, srcPort, dstPort, ttl, payload)
		},
	}

	cmd.Flags().StringVar(&srcAddr, "src", "", "source IPv4 address (required)")
	cmd.Flags().StringVar(&dstAddr, "dst", "", "destination IPv4 address (required)")
	cmd.Flags().Uint16Var(&srcPort, "src-port", 0, "source UDP port (required)")
	cmd.Flags().Uint16Var(&dstPort, "dst-port", 0, "destination UDP port (required)")
	cmd.Flags().Uint8Var(&ttl, "ttl", udp.DefaultTTL, "outgoing IPv4 TTL")
	cmd.Flags().StringVar(&payload, "payload", "", "payload bytes to send, as a UTF-8 string")
	_ = cmd.MarkFlagRequired("src")
	_ = cmd.MarkFlagRequired("dst")
	_ = cmd.MarkFlagRequired("src-port")
	_ = cmd.MarkFlagRequired("dst-port")

	return cmd
}

func runSend(srcAddr, dstAddr string, srcPort, dstPort uint16, ttl uint8, payload string) error {
	src, err := netip.ParseAddr(srcAddr)
	if err != nil {
		return fmt.Errorf("parse --src %q: %w", srcAddr, err)
	}
	dst, err := netip.ParseAddr(dstAddr)
	if err != nil {
		return fmt.Errorf("parse --dst %q: %w", dstAddr, err)
	}

	logger := newLogger(config.DefaultConfig().Log)

	stack, err := netio.NewRawStack(logger)
	if err != nil {
		return fmt.Errorf("open raw sockets (requires CAP_NET_RAW): %w", err)
	}
	defer closeLogged(stack, logger, "close raw sockets")

	core := udp.NewCore(stack, logger, udp.WithTTL(ttl))

	body := []byte(payload)
	node := &bufchain.Node{Data: make([]byte, sendHeaderSlack+len(body))}
	copy(node.Data[sendHeaderSlack:], body)
	data := bufchain.Ref{Node: node, Offset: sendHeaderSlack, TotLen: len(body)}

	addrs := ipstack.AddrPair{Local: src, Remote: dst}
	info := udp.TxInfo{SrcPort: srcPort, DstPort: dstPort}

	if err := core.Send(addrs, info, data, nil); err != nil {
		return fmt.Errorf("send: %w", err)
	}

	fmt.Printf("sent %d bytes: %s:%d -> %s:%d\n", len(body), src, srcPort, dst, dstPort)
	return nil
}
