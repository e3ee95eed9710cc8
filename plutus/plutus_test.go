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

package plutus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstrRoundTrip(t *testing.T) {
	encoded, err := Encode(Constr(
		0,
		Bytes([]byte{0xaa, 0xbb}),
		Integer(42),
		Bool(true),
	))
	require.NoError(t, err)

	pd, err := Decode(encoded)
	require.NoError(t, err)
	reader, err := Unwrap(pd, 0, 3)
	require.NoError(t, err)

	b, err := reader.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{0xaa, 0xbb}, b)
	i, err := reader.Integer()
	require.NoError(t, err)
	assert.Equal(t, int64(42), i)
	v, err := reader.Bool()
	require.NoError(t, err)
	assert.True(t, v)
}

func TestUnwrapMismatches(t *testing.T) {
	encoded, err := Encode(Constr(1, Integer(1)))
	require.NoError(t, err)
	pd, err := Decode(encoded)
	require.NoError(t, err)

	_, err = Unwrap(pd, 0, 1)
	assert.ErrorIs(t, err, ErrMalformedDatum)

	_, err = Unwrap(pd, 1, 2)
	assert.ErrorIs(t, err, ErrMalformedDatum)

	// Non-constructor payload
	intEncoded, err := Encode(Integer(5))
	require.NoError(t, err)
	intPd, err := Decode(intEncoded)
	require.NoError(t, err)
	_, err = Unwrap(intPd, 0, 0)
	assert.ErrorIs(t, err, ErrMalformedDatum)
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x13})
	assert.ErrorIs(t, err, ErrMalformedDatum)
}

func TestVariantTag(t *testing.T) {
	encoded, err := Encode(Constr(EscrowTagRefund))
	require.NoError(t, err)
	pd, err := Decode(encoded)
	require.NoError(t, err)

	tag, err := VariantTag(pd)
	require.NoError(t, err)
	assert.Equal(t, EscrowTagRefund, tag)
}

func TestOption(t *testing.T) {
	encoded, err := Encode(Constr(0, Some(Integer(99)), None()))
	require.NoError(t, err)
	pd, err := Decode(encoded)
	require.NoError(t, err)
	reader, err := Unwrap(pd, 0, 2)
	require.NoError(t, err)

	v, present, err := reader.OptionalInteger()
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, int64(99), v)

	v, present, err = reader.OptionalInteger()
	require.NoError(t, err)
	assert.False(t, present)
	assert.Equal(t, int64(0), v)
}

func TestBoolEncoding(t *testing.T) {
	// False is constructor 0, True is constructor 1
	for _, tc := range []struct {
		value bool
		tag   uint
	}{
		{false, 0},
		{true, 1},
	} {
		encoded, err := Encode(Bool(tc.value))
		require.NoError(t, err)
		pd, err := Decode(encoded)
		require.NoError(t, err)
		tag, err := VariantTag(pd)
		require.NoError(t, err)
		assert.Equal(t, tc.tag, tag)
	}
}

func TestNested(t *testing.T) {
	encoded, err := Encode(Constr(
		0,
		Constr(2, Integer(7)),
	))
	require.NoError(t, err)
	pd, err := Decode(encoded)
	require.NoError(t, err)
	outer, err := Unwrap(pd, 0, 1)
	require.NoError(t, err)

	inner, err := outer.Nested(2, 1)
	require.NoError(t, err)
	v, err := inner.Integer()
	require.NoError(t, err)
	assert.Equal(t, int64(7), v)
}

func TestReaderExhaustion(t *testing.T) {
	encoded, err := Encode(Constr(0, Integer(1)))
	require.NoError(t, err)
	pd, err := Decode(encoded)
	require.NoError(t, err)
	reader, err := Unwrap(pd, 0, 1)
	require.NoError(t, err)

	_, err = reader.Integer()
	require.NoError(t, err)
	_, err = reader.Integer()
	assert.ErrorIs(t, err, ErrMalformedDatum)
}

func TestEncodingIsDeterministic(t *testing.T) {
	build := func() ([]byte, error) {
		return Encode(Constr(
			0,
			Bytes([]byte{0x01, 0x02, 0x03}),
			Integer(1_000_000),
			Some(Integer(5)),
		))
	}
	first, err := build()
	require.NoError(t, err)
	second, err := build()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
