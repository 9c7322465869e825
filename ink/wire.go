package ink

import (
	"errors"
	"fmt"
	"math"

	"fortio.org/safecast"
	"google.golang.org/protobuf/encoding/protowire"
)

// BinaryExt is the file extension of binary-encoded recordings.
const BinaryExt = ".inkpb"

// Binary layout, protobuf wire format:
//
//	message Recording { string id = 1; repeated Stroke strokes = 2; repeated Symbol truth = 3; }
//	message Stroke    { repeated double x = 1; repeated double y = 2; repeated sint64 time = 3; }
//	message Symbol    { repeated uint32 strokes = 1; string label = 2; }
//
// Repeated scalars are written packed; the decoder accepts both encodings.
const (
	fieldRecordingID      protowire.Number = 1
	fieldRecordingStrokes protowire.Number = 2
	fieldRecordingTruth   protowire.Number = 3

	fieldStrokeX    protowire.Number = 1
	fieldStrokeY    protowire.Number = 2
	fieldStrokeTime protowire.Number = 3

	fieldSymbolStrokes protowire.Number = 1
	fieldSymbolLabel   protowire.Number = 2
)

var errTruncated = errors.New("ink: truncated binary recording")

// MarshalBinary implements encoding.BinaryMarshaler.
func (r Recording) MarshalBinary() ([]byte, error) {
	var b []byte
	if r.ID != "" {
		b = protowire.AppendTag(b, fieldRecordingID, protowire.BytesType)
		b = protowire.AppendString(b, r.ID)
	}
	for _, s := range r.Strokes {
		b = protowire.AppendTag(b, fieldRecordingStrokes, protowire.BytesType)
		b = protowire.AppendBytes(b, marshalStroke(s))
	}
	for i, sym := range r.Truth {
		msg, err := marshalSymbol(sym)
		if err != nil {
			return nil, fmt.Errorf("symbol %d: %w", i, err)
		}
		b = protowire.AppendTag(b, fieldRecordingTruth, protowire.BytesType)
		b = protowire.AppendBytes(b, msg)
	}
	return b, nil
}

func marshalStroke(s Stroke) []byte {
	var xs, ys, ts []byte
	for _, p := range s.Points {
		xs = protowire.AppendFixed64(xs, math.Float64bits(p.X))
		ys = protowire.AppendFixed64(ys, math.Float64bits(p.Y))
		ts = protowire.AppendVarint(ts, protowire.EncodeZigZag(p.Time))
	}

	var b []byte
	if len(s.Points) == 0 {
		return b
	}
	b = protowire.AppendTag(b, fieldStrokeX, protowire.BytesType)
	b = protowire.AppendBytes(b, xs)
	b = protowire.AppendTag(b, fieldStrokeY, protowire.BytesType)
	b = protowire.AppendBytes(b, ys)
	b = protowire.AppendTag(b, fieldStrokeTime, protowire.BytesType)
	b = protowire.AppendBytes(b, ts)
	return b
}

func marshalSymbol(sym Symbol) ([]byte, error) {
	var packed []byte
	for _, idx := range sym.Strokes {
		v, err := safecast.Conv[uint32](idx)
		if err != nil {
			return nil, fmt.Errorf("stroke index %d: %w", idx, err)
		}
		packed = protowire.AppendVarint(packed, uint64(v))
	}

	var b []byte
	b = protowire.AppendTag(b, fieldSymbolStrokes, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	if sym.Label != "" {
		b = protowire.AppendTag(b, fieldSymbolLabel, protowire.BytesType)
		b = protowire.AppendString(b, sym.Label)
	}
	return b, nil
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (r *Recording) UnmarshalBinary(data []byte) error {
	*r = Recording{}
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return protowire.ParseError(n)
			}
			data = data[n:]
			continue
		}

		v, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return protowire.ParseError(n)
		}
		data = data[n:]

		switch num {
		case fieldRecordingID:
			r.ID = string(v)
		case fieldRecordingStrokes:
			s, err := unmarshalStroke(v)
			if err != nil {
				return fmt.Errorf("stroke %d: %w", len(r.Strokes), err)
			}
			r.Strokes = append(r.Strokes, s)
		case fieldRecordingTruth:
			sym, err := unmarshalSymbol(v)
			if err != nil {
				return fmt.Errorf("symbol %d: %w", len(r.Truth), err)
			}
			r.Truth = append(r.Truth, sym)
		}
	}
	return nil
}

func unmarshalStroke(data []byte) (Stroke, error) {
	var xs, ys []float64
	var ts []int64

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Stroke{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case (num == fieldStrokeX || num == fieldStrokeY) && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Stroke{}, protowire.ParseError(n)
			}
			data = data[n:]
			vals, err := consumePackedDoubles(v)
			if err != nil {
				return Stroke{}, err
			}
			if num == fieldStrokeX {
				xs = append(xs, vals...)
			} else {
				ys = append(ys, vals...)
			}
		case (num == fieldStrokeX || num == fieldStrokeY) && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(data)
			if n < 0 {
				return Stroke{}, protowire.ParseError(n)
			}
			data = data[n:]
			if num == fieldStrokeX {
				xs = append(xs, math.Float64frombits(v))
			} else {
				ys = append(ys, math.Float64frombits(v))
			}
		case num == fieldStrokeTime && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Stroke{}, protowire.ParseError(n)
			}
			data = data[n:]
			for len(v) > 0 {
				t, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return Stroke{}, protowire.ParseError(m)
				}
				v = v[m:]
				ts = append(ts, protowire.DecodeZigZag(t))
			}
		case num == fieldStrokeTime && typ == protowire.VarintType:
			t, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Stroke{}, protowire.ParseError(n)
			}
			data = data[n:]
			ts = append(ts, protowire.DecodeZigZag(t))
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Stroke{}, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}

	if len(xs) != len(ys) || len(xs) != len(ts) {
		return Stroke{}, fmt.Errorf("%w: %d x, %d y, %d time values", errTruncated, len(xs), len(ys), len(ts))
	}
	s := Stroke{Points: make([]Point, len(xs))}
	for i := range xs {
		s.Points[i] = Point{X: xs[i], Y: ys[i], Time: ts[i]}
	}
	return s, nil
}

func consumePackedDoubles(v []byte) ([]float64, error) {
	out := make([]float64, 0, len(v)/8)
	for len(v) > 0 {
		bits, n := protowire.ConsumeFixed64(v)
		if n < 0 {
			return nil, protowire.ParseError(n)
		}
		v = v[n:]
		out = append(out, math.Float64frombits(bits))
	}
	return out, nil
}

func unmarshalSymbol(data []byte) (Symbol, error) {
	var sym Symbol
	appendIndex := func(raw uint64) error {
		idx, err := safecast.Conv[int](raw)
		if err != nil {
			return fmt.Errorf("stroke index %d: %w", raw, err)
		}
		sym.Strokes = append(sym.Strokes, idx)
		return nil
	}

	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Symbol{}, protowire.ParseError(n)
		}
		data = data[n:]

		switch {
		case num == fieldSymbolStrokes && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Symbol{}, protowire.ParseError(n)
			}
			data = data[n:]
			for len(v) > 0 {
				raw, m := protowire.ConsumeVarint(v)
				if m < 0 {
					return Symbol{}, protowire.ParseError(m)
				}
				v = v[m:]
				if err := appendIndex(raw); err != nil {
					return Symbol{}, err
				}
			}
		case num == fieldSymbolStrokes && typ == protowire.VarintType:
			raw, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Symbol{}, protowire.ParseError(n)
			}
			data = data[n:]
			if err := appendIndex(raw); err != nil {
				return Symbol{}, err
			}
		case num == fieldSymbolLabel && typ == protowire.BytesType:
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return Symbol{}, protowire.ParseError(n)
			}
			data = data[n:]
			sym.Label = string(v)
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Symbol{}, protowire.ParseError(n)
			}
			data = data[n:]
		}
	}
	return sym, nil
}
