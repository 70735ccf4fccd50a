// Package chunk frames one logical collection of fixed-size records across
// several bounded messages.
//
// The first message of a collection carries a leading count byte (the total
// number of records in the collection) followed by as many records as fit.
// Every later message carries records only. Receivers tell the two apart by
// their own progress, not by anything in the message.
package chunk

import (
	"errors"
	"fmt"

	"diaryface/internal/record"
)

var (
	ErrMalformed      = errors.New("chunk: malformed chunk")
	ErrTooManyRecords = errors.New("chunk: collection exceeds 255 records")
	ErrBlobTooSmall   = errors.New("chunk: message cannot carry one record")
)

// MaxRecords is the largest count the leading byte can declare.
const MaxRecords = 0xFF

// Phase tells which framing a chunk uses.
type Phase uint8

const (
	FirstChunk Phase = iota + 1
	ContinuationChunk
)

func (p Phase) String() string {
	switch p {
	case FirstChunk:
		return "first"
	case ContinuationChunk:
		return "continuation"
	default:
		return "unknown"
	}
}

// Chunk is the result of decoding one message blob.
type Chunk struct {
	Phase Phase
	// Declared is the collection total; only set for FirstChunk.
	Declared int
	// Records are views into the blob at the record stride.
	Records [][]byte
	// Consumed counts the bytes covered by the count byte and Records.
	Consumed int
}

// Decode reads one blob. A first chunk may hold the count byte alone; a
// continuation chunk must hold at least one record. Trailing bytes shorter
// than one record are dropped.
func Decode(blob []byte, phase Phase, size int) (Chunk, error) {
	c := Chunk{Phase: phase}
	body := blob
	switch phase {
	case FirstChunk:
		if len(blob) < 1 {
			return Chunk{}, fmt.Errorf("%w: empty first chunk", ErrMalformed)
		}
		c.Declared = int(blob[0])
		c.Consumed = 1
		body = blob[1:]
		if len(body) < size {
			return c, nil
		}
	case ContinuationChunk:
	default:
		return Chunk{}, fmt.Errorf("%w: phase %d", ErrMalformed, phase)
	}

	recs, err := record.DecodeRecords(body, size)
	if err != nil {
		return Chunk{}, fmt.Errorf("%w: %s chunk: %v", ErrMalformed, phase, err)
	}
	c.Records = recs
	c.Consumed += len(recs) * size
	return c, nil
}

// Progress tracks one collection across chunks. Expected is -1 until the
// first chunk arrives.
type Progress struct {
	Expected int
	Received int
}

// NewProgress returns progress awaiting a first chunk.
func NewProgress() Progress {
	return Progress{Expected: -1}
}

// Reset discards any progress, so the next chunk is read as a first chunk.
func (p *Progress) Reset() {
	*p = NewProgress()
}

// Phase is the framing the next chunk is expected to use.
func (p Progress) Phase() Phase {
	if p.Expected == -1 {
		return FirstChunk
	}
	return ContinuationChunk
}

// Complete reports whether every declared record has arrived.
func (p Progress) Complete() bool {
	return p.Expected >= 0 && p.Received >= p.Expected
}

// Feed decodes blob according to the current phase and advances p. On error
// p is left untouched.
func (p *Progress) Feed(blob []byte, size int) (Chunk, error) {
	c, err := Decode(blob, p.Phase(), size)
	if err != nil {
		return Chunk{}, err
	}
	if c.Phase == FirstChunk {
		p.Expected = c.Declared
	}
	p.Received += len(c.Records)
	return c, nil
}

// Split frames encoded records into message blobs no larger than maxBlob.
// The first blob leads with the record count. An empty collection yields a
// single blob holding just the count.
func Split(recs [][]byte, size, maxBlob int) ([][]byte, error) {
	if len(recs) > MaxRecords {
		return nil, fmt.Errorf("%w: %d", ErrTooManyRecords, len(recs))
	}
	if size <= 0 || maxBlob < size+1 {
		return nil, fmt.Errorf("%w: max %d, record size %d", ErrBlobTooSmall, maxBlob, size)
	}
	for i, r := range recs {
		if len(r) != size {
			return nil, fmt.Errorf("%w: record %d is %d bytes, want %d", ErrMalformed, i, len(r), size)
		}
	}

	perFirst := (maxBlob - 1) / size
	perNext := maxBlob / size

	n := min(perFirst, len(recs))
	first := make([]byte, 0, 1+n*size)
	first = append(first, uint8(len(recs)))
	first = append(first, record.Join(recs[:n])...)
	out := [][]byte{first}

	for rest := recs[n:]; len(rest) > 0; {
		k := min(perNext, len(rest))
		out = append(out, record.Join(rest[:k]))
		rest = rest[k:]
	}
	return out, nil
}
