// Package bufchain implements a scatter-gather view over a singly linked
// chain of buffer nodes.
//
// A [Node] names one contiguous region of memory and the next node in the
// chain, if any. Nodes are never owned by this package; they are owned by
// whoever allocated the backing storage (typically a driver receive ring
// or a send-side scratch buffer), and this package never mutates a Node's
// contents or linkage.
//
// A [Ref] is a logical byte range over a chain of nodes: it starts
// `Offset` bytes into `Node` and runs for `TotLen` bytes, possibly
// spanning successor nodes. Ref operations never modify the nodes they
// traverse; they only ever produce new Ref values describing different
// ranges of the same chain.
package bufchain

// Node is one contiguous buffer in a chain. Next is nil at the end of the
// chain. The chain is acyclic; nothing in this package checks that.
type Node struct {
	Data []byte
	Next *Node
}

// Ref is a reference to a, possibly discontiguous, range of bytes within
// a chain of [Node] values.
//
// A Ref is valid iff Node is non-nil, Offset <= len(Node.Data), and the
// chain starting at Node holds at least Offset+TotLen bytes in aggregate.
// Offset == len(Node.Data) is a legal one-past-last position. All methods
// below require a valid Ref unless stated otherwise; violations panic,
// since they indicate programmer error rather than a runtime condition
// originating from wire-supplied data.
type Ref struct {
	Node   *Node
	Offset int
	TotLen int
}

// TotalLength returns r.TotLen. No validity requirement.
func (r Ref) TotalLength() int {
	return r.TotLen
}

func (r Ref) assertHeadValid() {
	if r.Node == nil {
		panic("bufchain: Ref has nil Node")
	}
	if r.Offset > len(r.Node.Data) {
		panic("bufchain: Ref.Offset beyond Node bounds")
	}
}

// ChunkPtr returns the first contiguous chunk of the range, as a slice
// over the underlying node storage. The Go slice already carries both
// the pointer and the length, so unlike the C++ original this single
// call replaces getChunkPtr()+getChunkLength().
func (r Ref) ChunkPtr() []byte {
	r.assertHeadValid()
	return r.Node.Data[r.Offset : r.Offset+r.ChunkLen()]
}

// ChunkLen returns the length of the first contiguous chunk of the range:
// min(TotLen, len(Node.Data)-Offset).
func (r Ref) ChunkLen() int {
	r.assertHeadValid()
	rem := len(r.Node.Data) - r.Offset
	if r.TotLen < rem {
		return r.TotLen
	}
	return rem
}

// NextChunk consumes the current chunk, advances to Node.Next, zeroes
// Offset, and reports whether any data remains. If it returns true, Node
// is guaranteed non-nil afterward.
func (r *Ref) NextChunk() bool {
	r.assertHeadValid()
	r.TotLen -= r.ChunkLen()
	r.Node = r.Node.Next
	r.Offset = 0
	more := r.TotLen > 0
	if more && r.Node == nil {
		panic("bufchain: chain ended with bytes remaining")
	}
	return more
}

// RevealHeader tries to extend the range backward within the first node
// by amount bytes. It returns false (and an unspecified Ref) if amount
// exceeds Offset; the caller guarantees the revealed bytes exist, this
// function does not itself validate them.
func (r Ref) RevealHeader(amount int) (Ref, bool) {
	if amount > r.Offset {
		return Ref{}, false
	}
	return Ref{Node: r.Node, Offset: r.Offset - amount, TotLen: r.TotLen + amount}, true
}

// RevealHeaderMust is RevealHeader without the ok return; it panics if
// amount exceeds Offset. Used on paths where the precondition is already
// guaranteed by the caller (e.g. the UDP send path).
func (r Ref) RevealHeaderMust(amount int) Ref {
	ref, ok := r.RevealHeader(amount)
	if !ok {
		panic("bufchain: RevealHeaderMust: amount exceeds Offset")
	}
	return ref
}

// HasHeader reports whether at least amount bytes are available in the
// first chunk alone (i.e. without crossing into a successor node).
func (r Ref) HasHeader(amount int) bool {
	r.assertHeadValid()
	return r.TotLen >= amount && len(r.Node.Data)-r.Offset >= amount
}

// HideHeader returns the range with its first amount bytes hidden.
// Requires amount <= ChunkLen() and amount <= TotLen.
func (r Ref) HideHeader(amount int) Ref {
	r.assertHeadValid()
	if amount > len(r.Node.Data)-r.Offset {
		panic("bufchain: HideHeader: amount exceeds first node's remaining bytes")
	}
	if amount > r.TotLen {
		panic("bufchain: HideHeader: amount exceeds TotLen")
	}
	return Ref{Node: r.Node, Offset: r.Offset + amount, TotLen: r.TotLen - amount}
}

// SubHeaderToContinuedBy builds a range consisting of an initial portion
// of the first chunk of r, continued by data in a separate chain.
//
// It writes a fresh Node into *out (ptr = r.Node.Data, len = r.Offset +
// headerLen, next = cont) and returns a Ref using out as its head node.
// The caller owns out's storage and must keep it alive for as long as the
// returned Ref (or anything derived from it via RevealHeader) is used —
// this does not "apply" the offset the way ChunkPtr does, precisely so
// that the result can later be extended leftward by RevealHeader up to
// the original Offset.
func (r Ref) SubHeaderToContinuedBy(headerLen int, cont *Node, totalLen int, out *Node) Ref {
	r.assertHeadValid()
	if headerLen > len(r.Node.Data)-r.Offset {
		panic("bufchain: SubHeaderToContinuedBy: headerLen exceeds first node's remaining bytes")
	}
	if totalLen < headerLen {
		panic("bufchain: SubHeaderToContinuedBy: totalLen smaller than headerLen")
	}
	*out = Node{Data: r.Node.Data[:r.Offset+headerLen], Next: cont}
	return Ref{Node: out, Offset: r.Offset, TotLen: totalLen}
}

// SubTo returns the prefix of r with the same head and Offset but with
// TotLen reduced to newLen. Node is allowed to be nil (e.g. for a
// zero-length range).
func (r Ref) SubTo(newLen int) Ref {
	if newLen > r.TotLen {
		panic("bufchain: SubTo: newLen exceeds TotLen")
	}
	return Ref{Node: r.Node, Offset: r.Offset, TotLen: newLen}
}

// SubFromTo returns the sub-range of r starting at skip bytes from the
// front, running for length bytes. Equivalent to calling SkipBytes(skip)
// on a copy of r followed by SubTo(length).
func (r Ref) SubFromTo(skip, length int) Ref {
	c := r
	c.SkipBytes(skip)
	return c.SubTo(length)
}

// ProcessBytes consumes amount bytes from the front of r, invoking fn on
// each nonempty contiguous chunk of the consumed range in order. fn must
// not mutate r — it receives copies of the chunk slices only.
//
// Eager-advance rule: once the requested amount has been fully consumed,
// if the current node is exactly exhausted and a successor node exists,
// ProcessBytes advances to it (Offset reset to 0) before returning. This
// is what lets a ring-buffer-backed chain self-wrap: the offset into a
// node is never left equal to that node's length when a successor
// exists.
//
// fn is never called with a zero-length chunk.
func (r *Ref) ProcessBytes(amount int, fn func(chunk []byte)) {
	r.assertHeadValid()
	if amount > r.TotLen {
		panic("bufchain: ProcessBytes: amount exceeds TotLen")
	}

	for {
		remInBuf := len(r.Node.Data) - r.Offset

		if remInBuf > 0 {
			if amount == 0 {
				return
			}

			take := remInBuf
			if amount < take {
				take = amount
			}
			if fn != nil {
				fn(r.Node.Data[r.Offset : r.Offset+take])
			}

			r.TotLen -= take

			if take < remInBuf || r.Node.Next == nil {
				r.Offset += take
				return
			}

			amount -= take
		} else if r.Node.Next == nil {
			return
		}

		r.Node = r.Node.Next
		r.Offset = 0
	}
}

// SkipBytes consumes n bytes from the front of r without copying them
// anywhere, eagerly advancing across node boundaries.
func (r *Ref) SkipBytes(n int) {
	r.ProcessBytes(n, nil)
}

// TakeBytes consumes n bytes from the front of r, copying them into dst.
// dst must have length >= n.
func (r *Ref) TakeBytes(n int, dst []byte) {
	pos := 0
	r.ProcessBytes(n, func(chunk []byte) {
		pos += copy(dst[pos:], chunk)
	})
}

// GiveBytes consumes n bytes from the front of r, overwriting them with
// bytes copied from src. src must have length >= n.
func (r *Ref) GiveBytes(n int, src []byte) {
	pos := 0
	r.ProcessBytes(n, func(chunk []byte) {
		pos += copy(chunk, src[pos:])
	})
}

// GiveBuf consumes src.TotLen bytes from the front of r, overwriting them
// with the bytes of src (which is itself consumed in the process).
// src.TotLen must not exceed r.TotLen.
func (r *Ref) GiveBuf(src Ref) {
	r.ProcessBytes(src.TotLen, func(chunk []byte) {
		src.TakeBytes(len(chunk), chunk)
	})
}

// TakeByte consumes and returns the leading byte of r. TotLen must be
// positive.
func (r *Ref) TakeByte() byte {
	if r.TotLen <= 0 {
		panic("bufchain: TakeByte: TotLen is not positive")
	}
	var b byte
	r.ProcessBytes(1, func(chunk []byte) {
		b = chunk[0]
	})
	return b
}
