// udpstackd runs the UDP/IPv4 demultiplexer as a standalone process, and
// offers a "send" subcommand that exercises the same send path directly
// against a raw socket for manual interop testing.
package main

import "github.com/dantte-lp/goudpstack/cmd/udpstackd/commands"

func main() {
	commands.Execute()
}
