// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

// Package plutus provides the canonical datum/redeemer encoding used
// by the Classly validators. Records map to PlutusData constructors
// with positional fields; enum variants map to constructor tags. All
// decode failures are reported as ErrMalformedDatum so callers can
// treat them as "not this datum type" while scanning script outputs.
package plutus

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/blinklabs-io/plutigo/data"
)

// ErrMalformedDatum is returned when bytes do not decode to the
// expected constructor shape. Scan paths skip these; they are not
// fatal.
var ErrMalformedDatum = errors.New("malformed datum")

// Redeemer constructor tags. Every redeemer variant in the system is
// defined here, once.
const (
	// escrow spending validator
	EscrowTagRelease uint = 0
	EscrowTagRefund  uint = 1
	// milestone escrow spending validator
	MilestoneTagRelease uint = 0
	MilestoneTagFinal   uint = 1
	MilestoneTagRefund  uint = 2
	// reputation spending validator
	ReputationTagAddRating uint = 0
	// NFT minting policy
	MintTagMint uint = 0
	MintTagBurn uint = 1
)

// Encode serializes PlutusData to its canonical CBOR encoding.
func Encode(pd data.PlutusData) ([]byte, error) {
	buf, err := data.Encode(pd)
	if err != nil {
		return nil, fmt.Errorf("encoding plutus data: %w", err)
	}
	return buf, nil
}

// Decode parses canonical CBOR into PlutusData.
func Decode(buf []byte) (data.PlutusData, error) {
	pd, err := data.Decode(buf)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedDatum, err)
	}
	return pd, nil
}

// Bytes builds a byte-string field.
func Bytes(b []byte) data.PlutusData {
	return data.NewByteString(b)
}

// Integer builds an integer field.
func Integer(v int64) data.PlutusData {
	return data.NewInteger(big.NewInt(v))
}

// Bool builds the on-chain Bool encoding: False is constructor 0,
// True is constructor 1, both with no fields.
func Bool(v bool) data.PlutusData {
	if v {
		return data.NewConstr(1)
	}
	return data.NewConstr(0)
}

// Some builds the on-chain Option encoding for a present value
// (constructor 0 with one field).
func Some(pd data.PlutusData) data.PlutusData {
	return data.NewConstr(0, pd)
}

// None builds the on-chain Option encoding for an absent value
// (constructor 1 with no fields).
func None() data.PlutusData {
	return data.NewConstr(1)
}

// Constr builds a record or enum variant constructor.
func Constr(tag uint, fields ...data.PlutusData) data.PlutusData {
	return data.NewConstr(tag, fields...)
}

// Unwrap asserts that pd is a constructor with the given tag and field
// count and returns a reader over its fields. Tag mismatch and
// field-count mismatch both report ErrMalformedDatum.
func Unwrap(
	pd data.PlutusData,
	wantTag uint,
	wantFields int,
) (*FieldReader, error) {
	constr, ok := pd.(*data.Constr)
	if !ok {
		return nil, fmt.Errorf(
			"%w: expected constructor, got %T",
			ErrMalformedDatum,
			pd,
		)
	}
	if constr.Tag != wantTag {
		return nil, fmt.Errorf(
			"%w: expected constructor tag %d, got %d",
			ErrMalformedDatum,
			wantTag,
			constr.Tag,
		)
	}
	if len(constr.Fields) != wantFields {
		return nil, fmt.Errorf(
			"%w: expected %d fields, got %d",
			ErrMalformedDatum,
			wantFields,
			len(constr.Fields),
		)
	}
	return &FieldReader{fields: constr.Fields}, nil
}

// VariantTag returns the constructor tag of pd, for dispatching on
// enum redeemers.
func VariantTag(pd data.PlutusData) (uint, error) {
	constr, ok := pd.(*data.Constr)
	if !ok {
		return 0, fmt.Errorf(
			"%w: expected constructor, got %T",
			ErrMalformedDatum,
			pd,
		)
	}
	return constr.Tag, nil
}

// FieldReader walks the positional fields of a decoded constructor.
type FieldReader struct {
	fields []data.PlutusData
	pos    int
}

func (r *FieldReader) next() (data.PlutusData, error) {
	if r.pos >= len(r.fields) {
		return nil, fmt.Errorf(
			"%w: field %d out of range",
			ErrMalformedDatum,
			r.pos,
		)
	}
	pd := r.fields[r.pos]
	r.pos++
	return pd, nil
}

// Bytes reads the next field as a byte string.
func (r *FieldReader) Bytes() ([]byte, error) {
	pd, err := r.next()
	if err != nil {
		return nil, err
	}
	bs, ok := pd.(*data.ByteString)
	if !ok {
		return nil, fmt.Errorf(
			"%w: field %d: expected bytes, got %T",
			ErrMalformedDatum,
			r.pos-1,
			pd,
		)
	}
	return bs.Inner, nil
}

// Integer reads the next field as an int64.
func (r *FieldReader) Integer() (int64, error) {
	pd, err := r.next()
	if err != nil {
		return 0, err
	}
	iv, ok := pd.(*data.Integer)
	if !ok {
		return 0, fmt.Errorf(
			"%w: field %d: expected integer, got %T",
			ErrMalformedDatum,
			r.pos-1,
			pd,
		)
	}
	if !iv.Inner.IsInt64() {
		return 0, fmt.Errorf(
			"%w: field %d: integer out of int64 range",
			ErrMalformedDatum,
			r.pos-1,
		)
	}
	return iv.Inner.Int64(), nil
}

// Bool reads the next field as an on-chain Bool.
func (r *FieldReader) Bool() (bool, error) {
	pd, err := r.next()
	if err != nil {
		return false, err
	}
	constr, ok := pd.(*data.Constr)
	if !ok || len(constr.Fields) != 0 {
		return false, fmt.Errorf(
			"%w: field %d: expected bool constructor",
			ErrMalformedDatum,
			r.pos-1,
		)
	}
	switch constr.Tag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf(
			"%w: field %d: bool constructor tag %d",
			ErrMalformedDatum,
			r.pos-1,
			constr.Tag,
		)
	}
}

// OptionalInteger reads the next field as an on-chain Option of
// integer. An absent value decodes as (0, false, nil).
func (r *FieldReader) OptionalInteger() (int64, bool, error) {
	pd, err := r.next()
	if err != nil {
		return 0, false, err
	}
	constr, ok := pd.(*data.Constr)
	if !ok {
		return 0, false, fmt.Errorf(
			"%w: field %d: expected option constructor",
			ErrMalformedDatum,
			r.pos-1,
		)
	}
	switch constr.Tag {
	case 0:
		if len(constr.Fields) != 1 {
			return 0, false, fmt.Errorf(
				"%w: field %d: malformed Some",
				ErrMalformedDatum,
				r.pos-1,
			)
		}
		iv, ok := constr.Fields[0].(*data.Integer)
		if !ok || !iv.Inner.IsInt64() {
			return 0, false, fmt.Errorf(
				"%w: field %d: Some payload not integer",
				ErrMalformedDatum,
				r.pos-1,
			)
		}
		return iv.Inner.Int64(), true, nil
	case 1:
		if len(constr.Fields) != 0 {
			return 0, false, fmt.Errorf(
				"%w: field %d: malformed None",
				ErrMalformedDatum,
				r.pos-1,
			)
		}
		return 0, false, nil
	default:
		return 0, false, fmt.Errorf(
			"%w: field %d: option constructor tag %d",
			ErrMalformedDatum,
			r.pos-1,
			constr.Tag,
		)
	}
}

// Nested reads the next field as a nested constructor with the given
// tag and field count.
func (r *FieldReader) Nested(
	wantTag uint,
	wantFields int,
) (*FieldReader, error) {
	pd, err := r.next()
	if err != nil {
		return nil, err
	}
	return Unwrap(pd, wantTag, wantFields)
}
