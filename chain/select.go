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

package chain

import (
	"cmp"
	"slices"
)

// MinSelectableLovelace is the minimum base-currency amount a UTXO
// must hold to qualify for unique selection (2 ADA).
const MinSelectableLovelace = 2_000_000

// SelectUnique picks one eligible UTXO from the set. A UTXO holding
// only the base currency at or above MinSelectableLovelace is
// preferred; otherwise any UTXO at or above the threshold qualifies.
//
// The selected UTXO's OutRef is later embedded in a mint redeemer as
// a one-time proof, so selection is deterministic for a given input
// set: candidates are ordered by OutRef before choosing, which keeps
// the proof reproducible across retries.
func SelectUnique(utxos []Utxo) (Utxo, error) {
	candidates := make([]Utxo, 0, len(utxos))
	for _, u := range utxos {
		if u.Value.Lovelace() >= MinSelectableLovelace {
			candidates = append(candidates, u)
		}
	}
	if len(candidates) == 0 {
		return Utxo{}, ErrNoEligibleUtxo
	}
	slices.SortFunc(candidates, func(a, b Utxo) int {
		if c := cmp.Compare(a.Ref.TxID, b.Ref.TxID); c != 0 {
			return c
		}
		return cmp.Compare(a.Ref.Index, b.Ref.Index)
	})
	for _, u := range candidates {
		if u.Value.OnlyLovelace() {
			return u, nil
		}
	}
	return candidates[0], nil
}
