package netio

const (
	icmpProtocol = 1
	udpProtocol  = 17

	// ipHeaderLen is the length of a minimal (no-options) IPv4 header.
	ipHeaderLen = 20

	// icmpHeaderLen is the length of the fixed ICMP header fields that
	// precede the quoted original datagram (type, code, checksum, unused).
	icmpHeaderLen = 8

	// icmpQuoteLen is how much of the original datagram's payload (beyond
	// its own header) RFC 792 requires an ICMP error message to quote.
	icmpQuoteLen = 8
)
