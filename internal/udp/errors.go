package udp

import "errors"

// ErrAddrInUse is returned by Association.Associate when an association with an
// identical key already exists.
var ErrAddrInUse = errors.New("udp: address already in use")
