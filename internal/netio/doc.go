// Package netio is the real host facade for internal/udp: it implements
// ipstack.Stack and ipstack.Iface over IPv4 raw sockets, and tracks local
// interface addresses so Iface.IsLocalAddr has real data to answer from.
//
// Linux-specific code uses golang.org/x/sys/unix for IP_HDRINCL raw
// sockets and SO_BINDTODEVICE, and golang.org/x/net/ipv4 for IPv4
// header encode/decode.
package netio
