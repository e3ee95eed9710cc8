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

package escrow

import (
	"fmt"

	"github.com/blinklabs-io/classly/plutus"
)

// Datum is the on-chain state of a two-party escrow. Credential
// hashes are payment key hashes, never full addresses. The deadline
// is unix milliseconds.
type Datum struct {
	StudentKeyHash []byte
	TeacherKeyHash []byte
	LockedAmount   int64
	NftPolicyID    []byte
	NftAssetName   []byte
	RefundDeadline int64
}

// MarshalPlutus encodes the datum in the validator's wire format.
func (d *Datum) MarshalPlutus() ([]byte, error) {
	return plutus.Encode(plutus.Constr(
		0,
		plutus.Bytes(d.StudentKeyHash),
		plutus.Bytes(d.TeacherKeyHash),
		plutus.Integer(d.LockedAmount),
		plutus.Bytes(d.NftPolicyID),
		plutus.Bytes(d.NftAssetName),
		plutus.Integer(d.RefundDeadline),
	))
}

// UnmarshalPlutus decodes datum bytes. Failures report
// plutus.ErrMalformedDatum so scans can skip non-escrow outputs.
func (d *Datum) UnmarshalPlutus(buf []byte) error {
	pd, err := plutus.Decode(buf)
	if err != nil {
		return err
	}
	r, err := plutus.Unwrap(pd, 0, 6)
	if err != nil {
		return err
	}
	if d.StudentKeyHash, err = r.Bytes(); err != nil {
		return fmt.Errorf("student credential: %w", err)
	}
	if d.TeacherKeyHash, err = r.Bytes(); err != nil {
		return fmt.Errorf("teacher credential: %w", err)
	}
	if d.LockedAmount, err = r.Integer(); err != nil {
		return fmt.Errorf("locked amount: %w", err)
	}
	if d.NftPolicyID, err = r.Bytes(); err != nil {
		return fmt.Errorf("nft policy: %w", err)
	}
	if d.NftAssetName, err = r.Bytes(); err != nil {
		return fmt.Errorf("nft asset name: %w", err)
	}
	if d.RefundDeadline, err = r.Integer(); err != nil {
		return fmt.Errorf("refund deadline: %w", err)
	}
	return nil
}

// ReleaseRedeemer selects the teacher-release validator branch.
func ReleaseRedeemer() ([]byte, error) {
	return plutus.Encode(plutus.Constr(plutus.EscrowTagRelease))
}

// RefundRedeemer selects the student-refund validator branch.
func RefundRedeemer() ([]byte, error) {
	return plutus.Encode(plutus.Constr(plutus.EscrowTagRefund))
}
