// Package mutate derives new candidate inputs from corpus seeds.
package mutate

import (
	"covfuzz/config"
	"encoding/binary"
	"math/rand"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Provide(NewHavocMutator)

// SeedSource gives read-only access to the corpus for splicing.
type SeedSource interface {
	Size() int
	Content(i int) ([]byte, error)
}

const (
	arithMax     = 35
	maxStackPow2 = 7

	blockSmall  = 32
	blockMedium = 128
	blockLarge  = 1500
	blockXL     = 32768
)

var (
	interesting8  = []int8{-128, -1, 0, 1, 16, 32, 64, 100, 127}
	interesting16 = []int16{-32768, -129, 128, 255, 256, 512, 1000, 1024, 4096, 32767}
	interesting32 = []int32{-2147483648, -100663046, -32769, 32768, 65535, 65536, 100663045, 2147483647}
)

type havocOp int

const (
	opFlipBit havocOp = iota
	opRandomByte
	opInteresting8
	opInteresting16
	opInteresting32
	opArith8
	opArith16
	opArith32
	opDeleteBlock
	opCloneBlock
	opOverwriteBlock
	opDictInsert
	opDictOverwrite
	opSplice
	numOps
)

// Havoc applies a random stack of AFL-style mutations to a seed.
type Havoc struct {
	rng     *rand.Rand
	dict    Dictionary
	maxSize int
}

type HavocParams struct {
	fx.In

	Logger    *zap.Logger
	AppConfig *config.AppConfig
	Rand      *rand.Rand
}

func NewHavocMutator(p HavocParams) (*Havoc, error) {
	var dict Dictionary
	if p.AppConfig.DictPath != "" {
		var err error
		dict, err = LoadDictionary(p.AppConfig.DictPath)
		if err != nil {
			return nil, err
		}
		p.Logger.Info("loaded dictionary",
			zap.String("path", p.AppConfig.DictPath),
			zap.Int("tokens", len(dict)))
	}
	return NewHavoc(p.Rand, dict, p.AppConfig.FuzzConfig.MaxInputSize), nil
}

func NewHavoc(rng *rand.Rand, dict Dictionary, maxSize int) *Havoc {
	if maxSize <= 0 {
		maxSize = 1 << 20
	}
	return &Havoc{rng: rng, dict: dict, maxSize: maxSize}
}

// Mutate returns a fresh candidate. The seed and the corpus are never modified.
// The result is never empty and never longer than the configured maximum.
func (h *Havoc) Mutate(seed []byte, corpus SeedSource) []byte {
	out := make([]byte, len(seed), len(seed)+blockSmall)
	copy(out, seed)
	if len(out) == 0 {
		out = append(out, byte(h.rng.Intn(256)))
	}

	stack := 1 << (1 + h.rng.Intn(maxStackPow2))
	for range stack {
		out = h.apply(havocOp(h.rng.Intn(int(numOps))), out, corpus)
	}

	if len(out) > h.maxSize {
		out = out[:h.maxSize]
	}
	if len(out) == 0 {
		out = append(out, byte(h.rng.Intn(256)))
	}
	return out
}

func (h *Havoc) apply(op havocOp, out []byte, corpus SeedSource) []byte {
	r := h.rng
	switch op {
	case opFlipBit:
		bit := r.Intn(len(out) * 8)
		out[bit/8] ^= 0x80 >> (bit % 8)

	case opRandomByte:
		// xor with 1..255 so the byte always changes
		out[r.Intn(len(out))] ^= byte(1 + r.Intn(255))

	case opInteresting8:
		out[r.Intn(len(out))] = byte(interesting8[r.Intn(len(interesting8))])

	case opInteresting16:
		if len(out) < 2 {
			break
		}
		pos := r.Intn(len(out) - 1)
		h.order().PutUint16(out[pos:], uint16(interesting16[r.Intn(len(interesting16))]))

	case opInteresting32:
		if len(out) < 4 {
			break
		}
		pos := r.Intn(len(out) - 3)
		h.order().PutUint32(out[pos:], uint32(interesting32[r.Intn(len(interesting32))]))

	case opArith8:
		pos := r.Intn(len(out))
		out[pos] = byte(int(out[pos]) + h.delta())

	case opArith16:
		if len(out) < 2 {
			break
		}
		pos := r.Intn(len(out) - 1)
		order := h.order()
		order.PutUint16(out[pos:], uint16(int(order.Uint16(out[pos:]))+h.delta()))

	case opArith32:
		if len(out) < 4 {
			break
		}
		pos := r.Intn(len(out) - 3)
		order := h.order()
		order.PutUint32(out[pos:], uint32(int64(order.Uint32(out[pos:]))+int64(h.delta())))

	case opDeleteBlock:
		if len(out) < 2 {
			break
		}
		n := h.blockLen(len(out) - 1)
		pos := r.Intn(len(out) - n + 1)
		out = append(out[:pos], out[pos+n:]...)

	case opCloneBlock:
		var block []byte
		if r.Intn(4) == 0 {
			// insert a run of a constant byte
			block = make([]byte, h.blockLen(blockXL))
			fill := byte(r.Intn(256))
			if r.Intn(2) == 0 {
				fill = out[r.Intn(len(out))]
			}
			for i := range block {
				block[i] = fill
			}
		} else {
			n := h.blockLen(len(out))
			src := r.Intn(len(out) - n + 1)
			block = append([]byte(nil), out[src:src+n]...)
		}
		out = h.insert(out, r.Intn(len(out)+1), block)

	case opOverwriteBlock:
		if len(out) < 2 {
			break
		}
		n := h.blockLen(len(out) - 1)
		src := r.Intn(len(out) - n + 1)
		dst := r.Intn(len(out) - n + 1)
		if r.Intn(4) == 0 {
			fill := byte(r.Intn(256))
			for i := dst; i < dst+n; i++ {
				out[i] = fill
			}
		} else {
			copy(out[dst:dst+n], out[src:src+n])
		}

	case opDictInsert:
		if len(h.dict) == 0 {
			break
		}
		token := h.dict[r.Intn(len(h.dict))]
		out = h.insert(out, r.Intn(len(out)+1), token)

	case opDictOverwrite:
		if len(h.dict) == 0 {
			break
		}
		token := h.dict[r.Intn(len(h.dict))]
		if len(token) > len(out) {
			break
		}
		pos := r.Intn(len(out) - len(token) + 1)
		copy(out[pos:], token)

	case opSplice:
		out = h.splice(out, corpus)
	}
	return out
}

// splice joins a head of out with the tail of a random other corpus seed.
func (h *Havoc) splice(out []byte, corpus SeedSource) []byte {
	if corpus == nil || corpus.Size() == 0 {
		return out
	}
	other, err := corpus.Content(h.rng.Intn(corpus.Size()))
	if err != nil || len(other) < 2 || len(out) < 2 {
		return out
	}

	limit := min(len(out), len(other))
	split := 1 + h.rng.Intn(limit-1)
	spliced := make([]byte, 0, len(other))
	spliced = append(spliced, out[:split]...)
	return append(spliced, other[split:]...)
}

func (h *Havoc) insert(out []byte, pos int, block []byte) []byte {
	if len(block) == 0 || len(out)+len(block) > h.maxSize {
		return out
	}
	grown := make([]byte, 0, len(out)+len(block))
	grown = append(grown, out[:pos]...)
	grown = append(grown, block...)
	return append(grown, out[pos:]...)
}

// blockLen picks a block length in [1, limit], favouring small blocks.
func (h *Havoc) blockLen(limit int) int {
	var lo, hi int
	switch h.rng.Intn(3) {
	case 0:
		lo, hi = 1, blockSmall
	case 1:
		lo, hi = blockSmall, blockMedium
	default:
		if h.rng.Intn(10) == 0 {
			lo, hi = blockLarge, blockXL
		} else {
			lo, hi = blockMedium, blockLarge
		}
	}
	if lo > limit {
		lo = 1
	}
	hi = min(hi, limit)
	return lo + h.rng.Intn(hi-lo+1)
}

func (h *Havoc) delta() int {
	d := 1 + h.rng.Intn(arithMax)
	if h.rng.Intn(2) == 0 {
		return -d
	}
	return d
}

func (h *Havoc) order() binary.ByteOrder {
	if h.rng.Intn(2) == 0 {
		return binary.BigEndian
	}
	return binary.LittleEndian
}
