package bufchain

import (
	"bytes"
	"testing"
)

func chainOf(chunks ...string) *Node {
	var head, tail *Node
	for _, c := range chunks {
		n := &Node{Data: []byte(c)}
		if head == nil {
			head = n
		} else {
			tail.Next = n
		}
		tail = n
	}
	return head
}

func TestChunkPtrAndLen(t *testing.T) {
	head := chainOf("hello", "world")
	r := Ref{Node: head, Offset: 2, TotLen: 7}
	if got := string(r.ChunkPtr()); got != "llo" {
		t.Fatalf("ChunkPtr = %q, want %q", got, "llo")
	}
	if got := r.ChunkLen(); got != 3 {
		t.Fatalf("ChunkLen = %d, want 3", got)
	}
}

func TestNextChunkAdvancesAndZeroesOffset(t *testing.T) {
	head := chainOf("ab", "cde")
	r := Ref{Node: head, Offset: 0, TotLen: 5}
	if !r.NextChunk() { // consumes "ab", moves onto "cde"
		t.Fatalf("NextChunk = false, want true with 3 bytes remaining")
	}
	if r.Node != head.Next {
		t.Fatalf("expected NextChunk to move onto second node")
	}
	if r.Offset != 0 {
		t.Fatalf("Offset = %d, want 0 after NextChunk", r.Offset)
	}
	if r.TotLen != 3 {
		t.Fatalf("TotLen = %d, want 3", r.TotLen)
	}
}

func TestRevealHideRoundTrip(t *testing.T) {
	head := chainOf("HHpayload")
	full := Ref{Node: head, Offset: 0, TotLen: 9}
	hidden := full.HideHeader(2)
	if hidden.TotalLength() != 7 {
		t.Fatalf("after HideHeader TotLen = %d, want 7", hidden.TotalLength())
	}
	revealed, ok := hidden.RevealHeader(2)
	if !ok {
		t.Fatalf("RevealHeader failed")
	}
	if revealed != full {
		t.Fatalf("RevealHeader(HideHeader(r)) != r: got %+v, want %+v", revealed, full)
	}
}

func TestRevealHeaderFailsPastOffset(t *testing.T) {
	head := chainOf("xyz")
	r := Ref{Node: head, Offset: 1, TotLen: 2}
	if _, ok := r.RevealHeader(2); ok {
		t.Fatalf("RevealHeader(2) should fail when Offset is only 1")
	}
}

func TestProcessBytesEagerAdvanceAtExactBoundary(t *testing.T) {
	// Regression: when a take exactly exhausts the first node and a
	// successor exists, ProcessBytes must land Offset==0 on the successor
	// rather than leaving Offset==len(first node) — this is what lets a
	// ring-buffer-backed chain self-wrap.
	head := chainOf("AB", "CD")
	r := Ref{Node: head, TotLen: 4}
	var got []byte
	r.ProcessBytes(2, func(chunk []byte) { got = append(got, chunk...) })
	if string(got) != "AB" {
		t.Fatalf("consumed = %q, want AB", got)
	}
	if r.Node != head.Next || r.Offset != 0 {
		t.Fatalf("after exact-boundary consume: Node=%p (want %p), Offset=%d (want 0)", r.Node, head.Next, r.Offset)
	}
}

func TestTakeBytesAcrossChunks(t *testing.T) {
	head := chainOf("ab", "cd", "ef")
	r := Ref{Node: head, TotLen: 6}
	dst := make([]byte, 5)
	r.TakeBytes(5, dst)
	if string(dst) != "abcde" {
		t.Fatalf("TakeBytes = %q, want abcde", dst)
	}
	if r.TotLen != 1 {
		t.Fatalf("remaining TotLen = %d, want 1", r.TotLen)
	}
}

func TestGiveBytesOverwritesInPlace(t *testing.T) {
	data := []byte("xxxxx")
	head := &Node{Data: data}
	r := Ref{Node: head, TotLen: 5}
	r.GiveBytes(5, []byte("hello"))
	if string(data) != "hello" {
		t.Fatalf("underlying storage = %q, want hello", data)
	}
}

func TestGiveBufCopiesAcrossChains(t *testing.T) {
	dstData := []byte("00000")
	dst := Ref{Node: &Node{Data: dstData}, TotLen: 5}
	src := Ref{Node: chainOf("ab", "cde"), TotLen: 5}
	dst.GiveBuf(src)
	if string(dstData) != "abcde" {
		t.Fatalf("dst = %q, want abcde", dstData)
	}
}

func TestSubToAndSubFromTo(t *testing.T) {
	head := chainOf("abcdef")
	r := Ref{Node: head, TotLen: 6}
	if got := r.SubTo(3); string(got.ChunkPtr()) != "abc" {
		t.Fatalf("SubTo(3) chunk = %q, want abc", got.ChunkPtr())
	}
	sub := r.SubFromTo(2, 2)
	if string(sub.ChunkPtr()) != "cd" {
		t.Fatalf("SubFromTo(2,2) chunk = %q, want cd", sub.ChunkPtr())
	}
}

func TestSubHeaderToContinuedBy(t *testing.T) {
	headerNode := &Node{Data: []byte("HEADERpayload1")}
	r := Ref{Node: headerNode, Offset: 0, TotLen: len(headerNode.Data)}

	cont := &Node{Data: []byte("payload2")}
	var scratch Node
	combined := r.SubHeaderToContinuedBy(6, cont, 6+len(cont.Data), &scratch)

	var got bytes.Buffer
	combined.ProcessBytes(combined.TotalLength(), func(chunk []byte) { got.Write(chunk) })
	if got.String() != "HEADERpayload2" {
		t.Fatalf("combined = %q, want HEADERpayload2", got.String())
	}
}

func TestTakeByte(t *testing.T) {
	head := chainOf("Z")
	r := Ref{Node: head, TotLen: 1}
	if b := r.TakeByte(); b != 'Z' {
		t.Fatalf("TakeByte = %q, want Z", b)
	}
	if r.TotLen != 0 {
		t.Fatalf("TotLen after TakeByte = %d, want 0", r.TotLen)
	}
}

func TestChunkLenClampsToNodeRemainder(t *testing.T) {
	head := chainOf("abcdef")
	r := Ref{Node: head, Offset: 4, TotLen: 2}
	if got := r.ChunkLen(); got != 2 {
		t.Fatalf("ChunkLen = %d, want 2", got)
	}
}

func TestAssertHeadValidPanicsOnNilNode(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on nil Node")
		}
	}()
	r := Ref{}
	_ = r.ChunkPtr()
}
