package kvstore

import (
	"encoding/json"
	"fmt"
)

// Kind identifies the shape of a stored value. Reads must request the same
// kind the value was written with; a mismatch fails with *DecodeError.
type Kind string

const (
	KindScalar     Kind = "scalar"
	KindStringList Kind = "string_list"
	KindRecord     Kind = "record"
)

// Value is a tagged payload held by the typed store. Exactly one of the
// payload fields is meaningful, selected by Kind.
type Value struct {
	Kind    Kind
	Scalar  any // string, float64 or bool when Kind == KindScalar
	Strings []string
	Record  json.RawMessage
}

// ScalarValue wraps a scalar (string, number or bool) for storage.
func ScalarValue(v any) Value {
	return Value{Kind: KindScalar, Scalar: v}
}

// StringListValue wraps a list of strings for storage.
func StringListValue(list []string) Value {
	return Value{Kind: KindStringList, Strings: list}
}

// RecordValue serializes an arbitrary structured record for storage.
func RecordValue(record any) (Value, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return Value{}, fmt.Errorf("failed to encode record: %w", err)
	}
	return Value{Kind: KindRecord, Record: raw}, nil
}

// Decode unmarshals a record value into dst.
// Returns *DecodeError if the value is not a record or the payload does not fit dst.
func (v Value) Decode(dst any) error {
	if v.Kind != KindRecord {
		return &DecodeError{Want: KindRecord, Got: v.Kind}
	}
	if err := json.Unmarshal(v.Record, dst); err != nil {
		return &DecodeError{Want: KindRecord, Got: KindRecord, cause: err}
	}
	return nil
}

// DecodeError reports a stored payload that cannot be read as the requested
// kind: either the kind tags disagree or the bytes are corrupt. Callers are
// expected to treat it as "absent" and clear the offending key.
type DecodeError struct {
	Namespace string
	Key       string
	Want      Kind
	Got       Kind
	cause     error
}

func (e *DecodeError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("decode %s/%s as %s: %v", e.Namespace, e.Key, e.Want, e.cause)
	}
	return fmt.Sprintf("decode %s/%s: want kind %s, got %s", e.Namespace, e.Key, e.Want, e.Got)
}

func (e *DecodeError) Unwrap() error {
	return e.cause
}

// envelope is the portable on-medium encoding of a Value.
type envelope struct {
	Kind    Kind            `json:"kind"`
	Scalar  json.RawMessage `json:"scalar,omitempty"`
	Strings []string        `json:"strings,omitempty"`
	Record  json.RawMessage `json:"record,omitempty"`
}

// encodeValue serializes a Value into its on-medium representation.
func encodeValue(v Value) ([]byte, error) {
	env := envelope{Kind: v.Kind}
	switch v.Kind {
	case KindScalar:
		raw, err := json.Marshal(v.Scalar)
		if err != nil {
			return nil, fmt.Errorf("failed to encode scalar: %w", err)
		}
		env.Scalar = raw
	case KindStringList:
		env.Strings = v.Strings
	case KindRecord:
		env.Record = v.Record
	default:
		return nil, fmt.Errorf("unknown value kind %q", v.Kind)
	}
	return json.Marshal(env)
}

// decodeAnyValue parses the on-medium representation, accepting whatever
// kind the envelope carries. Used by enumeration, where the caller has no
// expectation to check against.
func decodeAnyValue(namespace, key string, raw []byte) (Value, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Value{}, &DecodeError{Namespace: namespace, Key: key, cause: err}
	}
	switch env.Kind {
	case KindScalar, KindStringList, KindRecord:
		return decodeValue(namespace, key, raw, env.Kind)
	default:
		return Value{}, &DecodeError{Namespace: namespace, Key: key, Got: env.Kind}
	}
}

// decodeValue parses the on-medium representation, checking the kind tag
// against the caller's expectation.
func decodeValue(namespace, key string, raw []byte, want Kind) (Value, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Value{}, &DecodeError{Namespace: namespace, Key: key, Want: want, cause: err}
	}
	if env.Kind != want {
		return Value{}, &DecodeError{Namespace: namespace, Key: key, Want: want, Got: env.Kind}
	}
	v := Value{Kind: env.Kind, Strings: env.Strings, Record: env.Record}
	if env.Kind == KindScalar {
		if err := json.Unmarshal(env.Scalar, &v.Scalar); err != nil {
			return Value{}, &DecodeError{Namespace: namespace, Key: key, Want: want, cause: err}
		}
	}
	return v, nil
}
