package repositories

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protowire"
)

// Records are stored as protobuf wire messages, written field by field.
// Field numbers are part of the on-disk format and must never be reused.

type wireField struct {
	num    protowire.Number
	varint uint64
	bytes  []byte
}

type wireWriter struct {
	b []byte
}

func (w *wireWriter) varint(num protowire.Number, v uint64) *wireWriter {
	w.b = protowire.AppendTag(w.b, num, protowire.VarintType)
	w.b = protowire.AppendVarint(w.b, v)
	return w
}

func (w *wireWriter) signed(num protowire.Number, v int64) *wireWriter {
	return w.varint(num, protowire.EncodeZigZag(v))
}

func (w *wireWriter) boolean(num protowire.Number, v bool) *wireWriter {
	return w.varint(num, protowire.EncodeBool(v))
}

func (w *wireWriter) time(num protowire.Number, t time.Time) *wireWriter {
	return w.signed(num, t.UnixNano())
}

func (w *wireWriter) string(num protowire.Number, s string) *wireWriter {
	if s == "" {
		return w
	}
	w.b = protowire.AppendTag(w.b, num, protowire.BytesType)
	w.b = protowire.AppendString(w.b, s)
	return w
}

func (w *wireWriter) bytes() []byte {
	return w.b
}

// consumeFields walks every field of b, skipping the ones of unknown wire type.
func consumeFields(b []byte, visit func(f wireField) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]
		f := wireField{num: num}
		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			f.varint = v
			b = b[n:]
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return fmt.Errorf("decode field %d: %w", num, protowire.ParseError(n))
			}
			f.bytes = v
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			continue
		}
		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func (f wireField) signed() int64 {
	return protowire.DecodeZigZag(f.varint)
}

func (f wireField) time() time.Time {
	return time.Unix(0, f.signed()).UTC()
}

func (f wireField) string() string {
	return string(f.bytes)
}

func (f wireField) boolean() bool {
	return protowire.DecodeBool(f.varint)
}
