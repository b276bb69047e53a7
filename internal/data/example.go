package data

import (
	"fmt"
	"math"
	"sort"

	"google.golang.org/protobuf/encoding/protowire"
)

// Feature names of the CIFAR record schema.
const (
	FeatureImageRaw = "image_raw"
	FeatureLabel    = "label"
)

// Field numbers from tensorflow/core/example/{example,feature}.proto.
const (
	exampleFeatures  protowire.Number = 1 // Example.features
	featuresFeature  protowire.Number = 1 // Features.feature (map<string, Feature>)
	mapEntryKey      protowire.Number = 1
	mapEntryValue    protowire.Number = 2
	featureBytesList protowire.Number = 1
	featureFloatList protowire.Number = 2
	featureInt64List protowire.Number = 3
	listValue        protowire.Number = 1
)

// Feature is one decoded tf.train.Feature. Exactly one list is non-nil.
type Feature struct {
	Bytes  [][]byte
	Floats []float32
	Int64s []int64
}

// Example is a decoded tf.train.Example.
type Example struct {
	Features map[string]Feature
}

// NewImageExample builds the CIFAR record for one image.
func NewImageExample(imageRaw []byte, label int64) Example {
	return Example{Features: map[string]Feature{
		FeatureImageRaw: {Bytes: [][]byte{imageRaw}},
		FeatureLabel:    {Int64s: []int64{label}},
	}}
}

// Bytes returns the single bytes value of a feature.
func (e Example) Bytes(name string) ([]byte, error) {
	f, ok := e.Features[name]
	if !ok {
		return nil, fmt.Errorf("%w: missing feature %q", ErrBadRecord, name)
	}
	if len(f.Bytes) != 1 {
		return nil, fmt.Errorf("%w: feature %q has %d bytes values, want 1", ErrBadRecord, name, len(f.Bytes))
	}
	return f.Bytes[0], nil
}

// Int64 returns the single int64 value of a feature.
func (e Example) Int64(name string) (int64, error) {
	f, ok := e.Features[name]
	if !ok {
		return 0, fmt.Errorf("%w: missing feature %q", ErrBadRecord, name)
	}
	if len(f.Int64s) != 1 {
		return 0, fmt.Errorf("%w: feature %q has %d int64 values, want 1", ErrBadRecord, name, len(f.Int64s))
	}
	return f.Int64s[0], nil
}

// EncodeExample serializes an Example. Features are written in key order so
// the encoding is deterministic.
func EncodeExample(e Example) []byte {
	keys := make([]string, 0, len(e.Features))
	for k := range e.Features {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var features []byte
	for _, k := range keys {
		var entry []byte
		entry = protowire.AppendTag(entry, mapEntryKey, protowire.BytesType)
		entry = protowire.AppendString(entry, k)
		entry = protowire.AppendTag(entry, mapEntryValue, protowire.BytesType)
		entry = protowire.AppendBytes(entry, encodeFeature(e.Features[k]))

		features = protowire.AppendTag(features, featuresFeature, protowire.BytesType)
		features = protowire.AppendBytes(features, entry)
	}

	var out []byte
	out = protowire.AppendTag(out, exampleFeatures, protowire.BytesType)
	return protowire.AppendBytes(out, features)
}

func encodeFeature(f Feature) []byte {
	var list []byte
	var field protowire.Number
	switch {
	case f.Bytes != nil:
		field = featureBytesList
		for _, b := range f.Bytes {
			list = protowire.AppendTag(list, listValue, protowire.BytesType)
			list = protowire.AppendBytes(list, b)
		}
	case f.Floats != nil:
		field = featureFloatList
		var packed []byte
		for _, v := range f.Floats {
			packed = protowire.AppendFixed32(packed, math.Float32bits(v))
		}
		list = protowire.AppendTag(list, listValue, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	default:
		field = featureInt64List
		var packed []byte
		for _, v := range f.Int64s {
			packed = protowire.AppendVarint(packed, uint64(v))
		}
		list = protowire.AppendTag(list, listValue, protowire.BytesType)
		list = protowire.AppendBytes(list, packed)
	}

	var out []byte
	out = protowire.AppendTag(out, field, protowire.BytesType)
	return protowire.AppendBytes(out, list)
}

// DecodeExample parses a serialized tf.train.Example. Unknown fields are skipped.
func DecodeExample(b []byte) (Example, error) {
	e := Example{Features: make(map[string]Feature)}
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		if num != exampleFeatures || typ != protowire.BytesType {
			return nil
		}
		return walkFields(value, func(num protowire.Number, typ protowire.Type, entry []byte) error {
			if num != featuresFeature || typ != protowire.BytesType {
				return nil
			}
			key, feature, err := decodeMapEntry(entry)
			if err != nil {
				return err
			}
			e.Features[key] = feature
			return nil
		})
	})
	if err != nil {
		return Example{}, err
	}
	return e, nil
}

func decodeMapEntry(b []byte) (string, Feature, error) {
	var key string
	var feature Feature
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, value []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case mapEntryKey:
			key = string(value)
		case mapEntryValue:
			f, err := decodeFeature(value)
			if err != nil {
				return err
			}
			feature = f
		}
		return nil
	})
	return key, feature, err
}

func decodeFeature(b []byte) (Feature, error) {
	var f Feature
	err := walkFields(b, func(num protowire.Number, typ protowire.Type, list []byte) error {
		if typ != protowire.BytesType {
			return nil
		}
		switch num {
		case featureBytesList:
			f.Bytes = [][]byte{}
			return walkFields(list, func(num protowire.Number, typ protowire.Type, value []byte) error {
				if num == listValue && typ == protowire.BytesType {
					f.Bytes = append(f.Bytes, value)
				}
				return nil
			})
		case featureFloatList:
			f.Floats = []float32{}
			return decodeFloatList(list, &f.Floats)
		case featureInt64List:
			f.Int64s = []int64{}
			return decodeInt64List(list, &f.Int64s)
		}
		return nil
	})
	return f, err
}

// decodeInt64List accepts both packed and unpacked encodings.
func decodeInt64List(b []byte, out *[]int64) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == listValue && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(m))
			}
			*out = append(*out, int64(v))
			b = b[m:]
		case num == listValue && typ == protowire.BytesType:
			packed, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(m))
			}
			for len(packed) > 0 {
				v, k := protowire.ConsumeVarint(packed)
				if k < 0 {
					return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(k))
				}
				*out = append(*out, int64(v))
				packed = packed[k:]
			}
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}

// decodeFloatList accepts both packed and unpacked encodings.
func decodeFloatList(b []byte, out *[]float32) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
		}
		b = b[n:]
		switch {
		case num == listValue && typ == protowire.Fixed32Type:
			v, m := protowire.ConsumeFixed32(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(m))
			}
			*out = append(*out, math.Float32frombits(v))
			b = b[m:]
		case num == listValue && typ == protowire.BytesType:
			packed, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(m))
			}
			for len(packed) > 0 {
				v, k := protowire.ConsumeFixed32(packed)
				if k < 0 {
					return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(k))
				}
				*out = append(*out, math.Float32frombits(v))
				packed = packed[k:]
			}
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}
	return nil
}

// walkFields calls fn for every field of a message. Length-delimited values are
// passed as their payload; other wire types pass nil.
func walkFields(b []byte, fn func(num protowire.Number, typ protowire.Type, value []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
		}
		b = b[n:]

		var value []byte
		if typ == protowire.BytesType {
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(m))
			}
			value, n = v, m
		} else {
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return fmt.Errorf("%w: %v", ErrBadRecord, protowire.ParseError(n))
			}
		}
		b = b[n:]

		if err := fn(num, typ, value); err != nil {
			return err
		}
	}
	return nil
}
