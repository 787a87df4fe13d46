// Package wire implements the on-the-wire transaction codec. It is
// hand-rolled directly on protobuf's tag/varint primitives
// (google.golang.org/protobuf/encoding/protowire) rather than generated from
// a .proto file, but follows the same schema-evolution-tolerant shape: every
// field carries an explicit number, unknown fields are skipped rather than
// rejected, and optional fields are simply omitted rather than zero-coded.
package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/collabtext/collabrt/replicaid"
	"github.com/collabtext/collabrt/vectorclock"
)

// Field numbers, fixed for wire compatibility across replica versions.
const (
	fieldSenderID      = 1
	fieldSenderCounter = 2
	fieldVCKeys        = 3
	fieldVCValues      = 4
	fieldMaximalVCKeys = 5
	fieldWallClockTime = 6
	fieldLamportTime   = 7
	fieldOps           = 8

	fieldOpPath    = 1
	fieldOpPayload = 2
)

// Op is a single (path, payload) pair inside a transaction.
type Op struct {
	Path    []string
	Payload []byte
}

// Transaction is the wire representation of a committed transaction: a
// sender, its counter, the portion of its vector clock worth transmitting,
// optional timestamps, and a non-empty ordered list of ops.
type Transaction struct {
	SenderID          replicaid.ID
	SenderCounter     uint32
	VectorClock       vectorclock.Clock
	MaximalVCKeyCount *uint32
	WallClockTime     *uint64
	LamportTimestamp  *uint64
	Ops               []Op
}

// Encode serializes t into its wire bytes. Ops must be non-empty; an empty
// transaction is never put on the wire (the transaction manager does not
// emit a Send event for empty transactions).
func Encode(t *Transaction) ([]byte, error) {
	if len(t.Ops) == 0 {
		return nil, fmt.Errorf("wire: cannot encode a transaction with no ops")
	}

	var b []byte
	b = protowire.AppendTag(b, fieldSenderID, protowire.BytesType)
	b = protowire.AppendString(b, t.SenderID.String())

	b = protowire.AppendTag(b, fieldSenderCounter, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(t.SenderCounter))

	for _, site := range t.VectorClock.Sites() {
		b = protowire.AppendTag(b, fieldVCKeys, protowire.BytesType)
		b = protowire.AppendString(b, site.String())
	}
	for _, site := range t.VectorClock.Sites() {
		b = protowire.AppendTag(b, fieldVCValues, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(t.VectorClock.Get(site)))
	}

	if t.MaximalVCKeyCount != nil {
		b = protowire.AppendTag(b, fieldMaximalVCKeys, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*t.MaximalVCKeyCount))
	}
	if t.WallClockTime != nil {
		b = protowire.AppendTag(b, fieldWallClockTime, protowire.VarintType)
		b = protowire.AppendVarint(b, *t.WallClockTime)
	}
	if t.LamportTimestamp != nil {
		b = protowire.AppendTag(b, fieldLamportTime, protowire.VarintType)
		b = protowire.AppendVarint(b, *t.LamportTimestamp)
	}

	for _, op := range t.Ops {
		opBytes := encodeOp(op)
		b = protowire.AppendTag(b, fieldOps, protowire.BytesType)
		b = protowire.AppendBytes(b, opBytes)
	}

	return b, nil
}

func encodeOp(op Op) []byte {
	var b []byte
	for _, segment := range op.Path {
		b = protowire.AppendTag(b, fieldOpPath, protowire.BytesType)
		b = protowire.AppendString(b, segment)
	}
	b = protowire.AppendTag(b, fieldOpPayload, protowire.BytesType)
	b = protowire.AppendBytes(b, op.Payload)
	return b
}

// Decode parses wire bytes into a Transaction. Malformed input (truncated
// varints, inconsistent field lengths, mismatched vcKeys/vcValues counts)
// returns an error; the caller is responsible for treating that as a
// protocol error and discarding the bytes.
func Decode(data []byte) (*Transaction, error) {
	t := &Transaction{VectorClock: vectorclock.New()}
	var vcKeys []replicaid.ID
	var vcValues []uint32
	var sawSenderID, sawCounter bool

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("wire: malformed tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldSenderID:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			t.SenderID = replicaid.ID(s)
			sawSenderID = true
			data = data[m:]

		case fieldSenderCounter:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			t.SenderCounter = uint32(v)
			sawCounter = true
			data = data[m:]

		case fieldVCKeys:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return nil, err
			}
			vcKeys = append(vcKeys, replicaid.ID(s))
			data = data[m:]

		case fieldVCValues:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			vcValues = append(vcValues, uint32(v))
			data = data[m:]

		case fieldMaximalVCKeys:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			u := uint32(v)
			t.MaximalVCKeyCount = &u
			data = data[m:]

		case fieldWallClockTime:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			t.WallClockTime = &v
			data = data[m:]

		case fieldLamportTime:
			v, m, err := consumeVarint(data, typ)
			if err != nil {
				return nil, err
			}
			t.LamportTimestamp = &v
			data = data[m:]

		case fieldOps:
			raw, m, err := consumeBytes(data, typ)
			if err != nil {
				return nil, err
			}
			op, err := decodeOp(raw)
			if err != nil {
				return nil, err
			}
			t.Ops = append(t.Ops, op)
			data = data[m:]

		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return nil, fmt.Errorf("wire: malformed unknown field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}

	if !sawSenderID || !sawCounter {
		return nil, fmt.Errorf("wire: missing required senderID/senderCounter field")
	}
	if len(vcKeys) != len(vcValues) {
		return nil, fmt.Errorf("wire: inconsistent vcKeys/vcValues lengths (%d vs %d)", len(vcKeys), len(vcValues))
	}
	for i, k := range vcKeys {
		t.VectorClock.Advance(k, vcValues[i])
	}
	if len(t.Ops) == 0 {
		return nil, fmt.Errorf("wire: transaction has no ops")
	}

	return t, nil
}

func decodeOp(data []byte) (Op, error) {
	var op Op
	var sawPayload bool
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Op{}, fmt.Errorf("wire: malformed op tag: %w", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldOpPath:
			s, m, err := consumeString(data, typ)
			if err != nil {
				return Op{}, err
			}
			op.Path = append(op.Path, s)
			data = data[m:]
		case fieldOpPayload:
			raw, m, err := consumeBytes(data, typ)
			if err != nil {
				return Op{}, err
			}
			op.Payload = raw
			sawPayload = true
			data = data[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, data)
			if m < 0 {
				return Op{}, fmt.Errorf("wire: malformed unknown op field %d: %w", num, protowire.ParseError(m))
			}
			data = data[m:]
		}
	}
	if !sawPayload {
		return Op{}, fmt.Errorf("wire: op missing payload field")
	}
	return op, nil
}

func consumeString(data []byte, typ protowire.Type) (string, int, error) {
	if typ != protowire.BytesType {
		return "", 0, fmt.Errorf("wire: expected bytes-typed field, got %d", typ)
	}
	s, n := protowire.ConsumeString(data)
	if n < 0 {
		return "", 0, fmt.Errorf("wire: malformed string: %w", protowire.ParseError(n))
	}
	return s, n, nil
}

func consumeBytes(data []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, fmt.Errorf("wire: expected bytes-typed field, got %d", typ)
	}
	b, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return nil, 0, fmt.Errorf("wire: malformed bytes: %w", protowire.ParseError(n))
	}
	return b, n, nil
}

func consumeVarint(data []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, fmt.Errorf("wire: expected varint-typed field, got %d", typ)
	}
	v, n := protowire.ConsumeVarint(data)
	if n < 0 {
		return 0, 0, fmt.Errorf("wire: malformed varint: %w", protowire.ParseError(n))
	}
	return v, n, nil
}
