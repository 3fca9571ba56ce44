// Package pickle writes Python pickle streams (protocol 2) so hidden states
// can be loaded with pickle.load / pandas.read_pickle on the analysis side.
//
// Only the value kinds needed for tabular results are supported: None, bool,
// integers, floats, strings, lists and string-keyed dicts. No memo is emitted.
package pickle

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"reflect"
	"sort"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned for strings Python could not decode.
var ErrInvalidUTF8 = errors.New("pickle: string is not valid UTF-8")

const (
	opProto    = 0x80
	opStop     = '.'
	opNone     = 'N'
	opTrue     = 0x88
	opFalse    = 0x89
	opBinInt1  = 'K'
	opBinInt2  = 'M'
	opBinInt   = 'J'
	opLong1    = 0x8a
	opBinFloat = 'G'
	opUnicode  = 'X'
	opEmptyLst = ']'
	opEmptyDct = '}'
	opMark     = '('
	opAppends  = 'e'
	opSetItems = 'u'

	// CPython batches APPENDS/SETITEMS the same way.
	batchSize = 1000
)

// Item is one key/value pair of an ordered Dict.
type Item struct {
	Key   string
	Value any
}

// Dict is a dict whose keys are written in slice order.
type Dict []Item

// Encoder writes pickled values to an io.Writer.
type Encoder struct {
	w *bufio.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes v as one complete pickle (PROTO ... STOP).
func (e *Encoder) Encode(v any) error {
	e.w.WriteByte(opProto)
	e.w.WriteByte(2)
	if err := e.value(v); err != nil {
		return err
	}
	e.w.WriteByte(opStop)
	return e.w.Flush()
}

func (e *Encoder) value(v any) error {
	switch x := v.(type) {
	case nil:
		e.w.WriteByte(opNone)
	case bool:
		if x {
			e.w.WriteByte(opTrue)
		} else {
			e.w.WriteByte(opFalse)
		}
	case int:
		e.int(int64(x))
	case int32:
		e.int(int64(x))
	case int64:
		e.int(x)
	case float32:
		e.float(float64(x))
	case float64:
		e.float(x)
	case string:
		return e.str(x)
	case Dict:
		return e.dict(x)
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := make(Dict, 0, len(keys))
		for _, k := range keys {
			d = append(d, Item{Key: k, Value: x[k]})
		}
		return e.dict(d)
	default:
		rv := reflect.ValueOf(v)
		if rv.Kind() == reflect.Pointer {
			if rv.IsNil() {
				e.w.WriteByte(opNone)
				return nil
			}
			return e.value(rv.Elem().Interface())
		}
		if rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array {
			return e.list(rv)
		}
		return fmt.Errorf("pickle: unsupported type %T", v)
	}
	return nil
}

func (e *Encoder) int(n int64) {
	switch {
	case n >= 0 && n < 1<<8:
		e.w.WriteByte(opBinInt1)
		e.w.WriteByte(byte(n))
	case n >= 0 && n < 1<<16:
		e.w.WriteByte(opBinInt2)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(n))
		e.w.Write(b[:])
	case n >= math.MinInt32 && n <= math.MaxInt32:
		e.w.WriteByte(opBinInt)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(int32(n)))
		e.w.Write(b[:])
	default:
		// LONG1: little-endian two's complement, 8 bytes is always enough for int64.
		e.w.WriteByte(opLong1)
		e.w.WriteByte(8)
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], uint64(n))
		e.w.Write(b[:])
	}
}

func (e *Encoder) float(f float64) {
	e.w.WriteByte(opBinFloat)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], math.Float64bits(f))
	e.w.Write(b[:])
}

// str writes BINUNICODE. Python decodes it as strict UTF-8, so invalid
// strings are rejected instead of producing an unloadable pickle.
func (e *Encoder) str(s string) error {
	if !utf8.ValidString(s) {
		return fmt.Errorf("%w: %q", ErrInvalidUTF8, s)
	}
	e.w.WriteByte(opUnicode)
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
	e.w.Write(b[:])
	e.w.WriteString(s)
	return nil
}

func (e *Encoder) list(rv reflect.Value) error {
	e.w.WriteByte(opEmptyLst)
	n := rv.Len()
	for start := 0; start < n; start += batchSize {
		end := min(start+batchSize, n)
		e.w.WriteByte(opMark)
		for i := start; i < end; i++ {
			if err := e.value(rv.Index(i).Interface()); err != nil {
				return err
			}
		}
		e.w.WriteByte(opAppends)
	}
	return nil
}

func (e *Encoder) dict(d Dict) error {
	e.w.WriteByte(opEmptyDct)
	for start := 0; start < len(d); start += batchSize {
		end := min(start+batchSize, len(d))
		e.w.WriteByte(opMark)
		for _, it := range d[start:end] {
			if err := e.str(it.Key); err != nil {
				return err
			}
			if err := e.value(it.Value); err != nil {
				return err
			}
		}
		e.w.WriteByte(opSetItems)
	}
	return nil
}

// Marshal returns the pickle encoding of v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
