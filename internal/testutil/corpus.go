package testutil

import (
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/exprmatch/internal/ir"
)

// corpusEpoch anchors generated dates.
var corpusEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var corpusStrings = []string{"", "a", "b", "alpha"}

// Corpus generates a reproducible stream of sample documents.
//
// Two corpora built with the same seed and fields produce identical
// documents, so a failing equivalence check can be replayed exactly.
// Values are scalars drawn from small pools so that equal values occur
// often, across numeric kinds as well. A field is left out of roughly one
// document in five. WithArrays turns some field values into short arrays;
// Value and Values always return scalars.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Corpus struct {
	mu     sync.Mutex
	seed   uint64
	fields []string
	rng    *rand.Rand
	uuids  []uuid.UUID
	arrays bool
}

// NewCorpus creates a corpus generating documents over fields.
func NewCorpus(seed uint64, fields ...string) *Corpus {
	c := &Corpus{seed: seed, fields: fields}
	c.reset()
	return c
}

// WithArrays makes roughly one field value in four an array of up to three
// scalars, and returns c.
func (c *Corpus) WithArrays() *Corpus {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.arrays = true
	return c
}

// Reset rewinds the corpus to its first document.
func (c *Corpus) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reset()
}

func (c *Corpus) reset() {
	c.rng = rand.New(rand.NewPCG(c.seed, c.seed^0x9e3779b97f4a7c15))
	c.uuids = c.uuids[:0]
	for range 3 {
		// Reads from the seeded source cannot fail.
		u, _ := uuid.NewRandomFromReader(randReader{c.rng})
		c.uuids = append(c.uuids, u)
	}
}

// Value returns the next scalar value.
func (c *Corpus) Value() ir.Value {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.value()
}

// Values returns the next n scalar values.
func (c *Corpus) Values(n int) ir.Array {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(ir.Array, n)
	for i := range out {
		out[i] = c.value()
	}
	return out
}

// Document returns the next document.
func (c *Corpus) Document() ir.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.document()
}

// Documents returns the next n documents.
func (c *Corpus) Documents(n int) []ir.Document {
	c.mu.Lock()
	defer c.mu.Unlock()
	docs := make([]ir.Document, n)
	for i := range docs {
		docs[i] = c.document()
	}
	return docs
}

func (c *Corpus) document() ir.Document {
	doc := make(ir.Document, 0, len(c.fields))
	for _, f := range c.fields {
		if c.rng.IntN(5) == 0 {
			continue
		}
		doc = append(doc, ir.E(f, c.fieldValue()))
	}
	return doc
}

func (c *Corpus) fieldValue() ir.Value {
	if !c.arrays || c.rng.IntN(4) != 0 {
		return c.value()
	}
	arr := make(ir.Array, c.rng.IntN(4))
	for i := range arr {
		arr[i] = c.value()
	}
	return arr
}

func (c *Corpus) value() ir.Value {
	switch c.rng.IntN(10) {
	case 0:
		return ir.Null{}
	case 1:
		return ir.Int(c.rng.Int64N(3))
	case 2:
		// 0, 0.5, 1 and 1.5 overlap the integers.
		return ir.Float(float64(c.rng.IntN(4)) / 2)
	case 3:
		return ir.MustDecimal(strconv.Itoa(c.rng.IntN(3)))
	case 4:
		return ir.String(corpusStrings[c.rng.IntN(len(corpusStrings))])
	case 5:
		return ir.Bool(c.rng.IntN(2) == 1)
	case 6:
		return ir.Timestamp(corpusEpoch.Add(time.Duration(c.rng.IntN(3)) * time.Hour))
	case 7:
		var id ir.ObjectID
		id[11] = byte(c.rng.IntN(3))
		return id
	case 8:
		return ir.UUID(c.uuids[c.rng.IntN(len(c.uuids))])
	default:
		return ir.Duration(time.Duration(c.rng.IntN(3)) * time.Minute)
	}
}

// randReader adapts a seeded source to io.Reader.
type randReader struct {
	rng *rand.Rand
}

func (r randReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = byte(r.rng.Uint32())
	}
	return len(p), nil
}
