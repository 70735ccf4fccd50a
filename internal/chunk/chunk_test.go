package chunk

import (
	"bytes"
	"errors"
	"math/rand"
	"testing"
)

const stride = 6

func makeRecords(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		r := make([]byte, stride)
		for j := range r {
			r[j] = byte(i*stride + j)
		}
		out[i] = r
	}
	return out
}

func join(parts ...[]byte) []byte {
	var b []byte
	for _, p := range parts {
		b = append(b, p...)
	}
	return b
}

func TestDecodeFirstChunk(t *testing.T) {
	recs := makeRecords(2)
	blob := join([]byte{5}, recs[0], recs[1], []byte{0xAA, 0xBB})
	c, err := Decode(blob, FirstChunk, stride)
	if err != nil {
		t.Fatal(err)
	}
	if c.Declared != 5 || len(c.Records) != 2 {
		t.Fatalf("declared=%d records=%d", c.Declared, len(c.Records))
	}
	if c.Consumed != 1+2*stride {
		t.Fatalf("consumed=%d", c.Consumed)
	}
	if !bytes.Equal(c.Records[1], recs[1]) {
		t.Fatalf("record 1 mismatch")
	}
}

func TestDecodeFirstChunkCountOnly(t *testing.T) {
	c, err := Decode([]byte{0}, FirstChunk, stride)
	if err != nil {
		t.Fatal(err)
	}
	if c.Declared != 0 || len(c.Records) != 0 || c.Consumed != 1 {
		t.Fatalf("unexpected chunk %+v", c)
	}
}

func TestDecodeContinuationRemainderDropped(t *testing.T) {
	recs := makeRecords(1)
	c, err := Decode(join(recs[0], []byte{1, 2, 3}), ContinuationChunk, stride)
	if err != nil {
		t.Fatal(err)
	}
	if len(c.Records) != 1 || c.Consumed != stride {
		t.Fatalf("records=%d consumed=%d", len(c.Records), c.Consumed)
	}
}

func TestDecodeMalformed(t *testing.T) {
	if _, err := Decode(nil, FirstChunk, stride); !errors.Is(err, ErrMalformed) {
		t.Fatalf("empty first chunk: %v", err)
	}
	if _, err := Decode([]byte{1, 2}, ContinuationChunk, stride); !errors.Is(err, ErrMalformed) {
		t.Fatalf("short continuation: %v", err)
	}
}

func TestProgressZeroCountCompletesImmediately(t *testing.T) {
	p := NewProgress()
	if p.Complete() {
		t.Fatal("fresh progress must not be complete")
	}
	if _, err := p.Feed([]byte{0}, stride); err != nil {
		t.Fatal(err)
	}
	if !p.Complete() || p.Received != 0 {
		t.Fatalf("progress=%+v", p)
	}
}

func TestProgressErrorLeavesStateUntouched(t *testing.T) {
	p := NewProgress()
	if _, err := p.Feed(join([]byte{3}, makeRecords(1)[0]), stride); err != nil {
		t.Fatal(err)
	}
	before := p
	if _, err := p.Feed([]byte{1}, stride); err == nil {
		t.Fatal("expected error")
	}
	if p != before {
		t.Fatalf("progress changed on error: %+v -> %+v", before, p)
	}
}

// Any partition of a collection into stride-aligned messages reassembles to
// the same records as the unsplit blob.
func TestPartitionsReassembleIdentically(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(20)
		recs := makeRecords(n)

		// Random partition: first message takes k0 records, then random sizes.
		var blobs [][]byte
		k0 := 0
		if n > 0 {
			k0 = rng.Intn(n + 1)
		}
		blobs = append(blobs, join(append([][]byte{{byte(n)}}, recs[:k0]...)...))
		for rest := recs[k0:]; len(rest) > 0; {
			k := 1 + rng.Intn(len(rest))
			blobs = append(blobs, join(rest[:k]...))
			rest = rest[k:]
		}

		p := NewProgress()
		var got [][]byte
		for _, b := range blobs {
			c, err := p.Feed(b, stride)
			if err != nil {
				t.Fatalf("trial %d: feed: %v", trial, err)
			}
			got = append(got, c.Records...)
		}
		if !p.Complete() || p.Received != n {
			t.Fatalf("trial %d: progress=%+v n=%d", trial, p, n)
		}

		whole := NewProgress()
		c, err := whole.Feed(join(append([][]byte{{byte(n)}}, recs...)...), stride)
		if err != nil {
			t.Fatal(err)
		}
		if len(c.Records) != len(got) {
			t.Fatalf("trial %d: got %d records want %d", trial, len(got), len(c.Records))
		}
		for i := range got {
			if !bytes.Equal(got[i], c.Records[i]) {
				t.Fatalf("trial %d: record %d differs", trial, i)
			}
		}
	}
}

func TestSplitRespectsBound(t *testing.T) {
	recs := makeRecords(7)
	maxBlob := 2*stride + 1
	blobs, err := Split(recs, stride, maxBlob)
	if err != nil {
		t.Fatal(err)
	}
	if blobs[0][0] != 7 {
		t.Fatalf("count byte=%d", blobs[0][0])
	}
	p := NewProgress()
	total := 0
	for i, b := range blobs {
		if len(b) > maxBlob {
			t.Fatalf("blob %d is %d bytes > %d", i, len(b), maxBlob)
		}
		c, err := p.Feed(b, stride)
		if err != nil {
			t.Fatal(err)
		}
		total += len(c.Records)
	}
	if total != 7 || !p.Complete() {
		t.Fatalf("total=%d progress=%+v", total, p)
	}
}

func TestSplitEmptyAndErrors(t *testing.T) {
	blobs, err := Split(nil, stride, 64)
	if err != nil || len(blobs) != 1 || !bytes.Equal(blobs[0], []byte{0}) {
		t.Fatalf("empty split: %v %v", blobs, err)
	}
	if _, err := Split(makeRecords(1), stride, stride); !errors.Is(err, ErrBlobTooSmall) {
		t.Fatalf("expected ErrBlobTooSmall, got %v", err)
	}
	if _, err := Split(makeRecords(256), stride, 64); !errors.Is(err, ErrTooManyRecords) {
		t.Fatalf("expected ErrTooManyRecords, got %v", err)
	}
}
