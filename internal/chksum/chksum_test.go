package chksum

import (
	"testing"

	"github.com/dantte-lp/goudpstack/internal/bufchain"
)

func refOf(data []byte) bufchain.Ref {
	return bufchain.Ref{Node: &bufchain.Node{Data: data}, TotLen: len(data)}
}

func TestGetChksumOfZeroBufferIsAllOnesComplement(t *testing.T) {
	var acc Accumulator
	sum := acc.GetChksum(refOf([]byte{0, 0, 0, 0}))
	if sum != 0xFFFF {
		t.Fatalf("checksum of all-zero input = 0x%04X, want 0xFFFF", sum)
	}
}

func TestChecksumDuality(t *testing.T) {
	// Appending the computed checksum back into the data and summing again
	// must fold to exactly 0 (the standard Internet checksum duality
	// property), confirming GetChksum's fold-and-negate logic is correct.
	data := []byte{0x45, 0x00, 0x00, 0x3c, 0x1c, 0x46, 0x40, 0x00}
	var acc Accumulator
	sum := acc.GetChksum(refOf(data))

	verify := append(append([]byte{}, data...), byte(sum>>8), byte(sum))
	var acc2 Accumulator
	acc2.AddWords(verify)
	// AddWords alone doesn't fold/negate; replicate GetChksum's finish step
	// by routing through a zero-length trailing buffer.
	folded := acc2.GetChksum(refOf(nil))
	if folded != 0 {
		t.Fatalf("checksum+complement fold = 0x%04X, want 0", folded)
	}
}

func TestOddByteCarriesAcrossAddWordsCalls(t *testing.T) {
	// Three single-byte AddWords calls must sum identically to one call
	// with all three bytes, proving the pending-byte carry logic is
	// correct across call boundaries, not just within one buffer.
	var a, b Accumulator
	a.AddWords([]byte{0x01})
	a.AddWords([]byte{0x02})
	a.AddWords([]byte{0x03})

	b.AddWords([]byte{0x01, 0x02, 0x03})

	sumA := a.GetChksum(refOf(nil))
	sumB := b.GetChksum(refOf(nil))
	if sumA != sumB {
		t.Fatalf("split AddWords checksum 0x%04X != combined 0x%04X", sumA, sumB)
	}
}

func TestAddBufSpansMultipleChunks(t *testing.T) {
	n1 := &bufchain.Node{Data: []byte{0x00, 0x01}}
	n2 := &bufchain.Node{Data: []byte{0x00, 0x02}}
	n1.Next = n2
	chained := bufchain.Ref{Node: n1, TotLen: 4}

	flat := refOf([]byte{0x00, 0x01, 0x00, 0x02})

	var accChained, accFlat Accumulator
	sumChained := accChained.GetChksum(chained)
	sumFlat := accFlat.GetChksum(flat)
	if sumChained != sumFlat {
		t.Fatalf("chained checksum 0x%04X != flat checksum 0x%04X", sumChained, sumFlat)
	}
}

func TestCarryFoldAboveSixteenBits(t *testing.T) {
	var acc Accumulator
	// Two words each 0xFFFF force a carry out of the 16-bit sum.
	acc.AddWord(0xFFFF)
	acc.AddWord(0xFFFF)
	sum := acc.GetChksum(refOf(nil))
	// 0xFFFF+0xFFFF = 0x1FFFE -> fold -> 0xFFFF -> complement -> 0x0000.
	if sum != 0x0000 {
		t.Fatalf("folded checksum = 0x%04X, want 0x0000", sum)
	}
}
