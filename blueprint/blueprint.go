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

// Package blueprint loads a compiled validator blueprint (plutus.json)
// and resolves script references from it. The blueprint is loaded once
// and treated as immutable; resolved references are memoized for the
// process lifetime.
package blueprint

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"

	lcommon "github.com/blinklabs-io/gouroboros/ledger/common"
	"golang.org/x/crypto/blake2b"
)

// ErrScriptNotFound is returned when no blueprint validator matches the
// requested title.
var ErrScriptNotFound = errors.New("script not found in blueprint")

// Validator titles used by the Classly on-chain layer. Lookups are by
// exact title string.
const (
	TitleEscrowSpend       = "escrow.escrow_validator.spend"
	TitleClassroomNftMint  = "classroom_nft.classroom_nft_policy.mint"
	TitleReputationSpend   = "reputation.reputation_validator.spend"
	TitleMilestoneSpend    = "escrow.escrow.spend"
	TitleCompletionNftMint = "completion_nft_policy.completion_nft_policy.mint"
)

// Plutus language tags used as the script hash prefix
const (
	PlutusV1 = 0x01
	PlutusV2 = 0x02
	PlutusV3 = 0x03
)

// Validator is a single compiled validator entry from the blueprint.
type Validator struct {
	Title        string `json:"title"`
	CompiledCode string `json:"compiledCode"`
	Hash         string `json:"hash"`
}

// Blueprint is the on-disk manifest shape produced by the Aiken build.
type Blueprint struct {
	Validators []Validator `json:"validators"`
}

// ScriptReference is a resolved validator: the compiled script bytes
// plus the derived script hash. Immutable once resolved.
type ScriptReference struct {
	Title      string
	PlutusTag  byte
	Script     []byte
	ScriptHash lcommon.Blake2b224
}

// PolicyID returns the minting policy identifier for the script.
func (s *ScriptReference) PolicyID() string {
	return s.ScriptHash.String()
}

// Address derives the script payment address for the given network.
func (s *ScriptReference) Address(
	networkID uint8,
) (lcommon.Address, error) {
	addr, err := lcommon.NewAddressFromParts(
		lcommon.AddressTypeScriptNone,
		networkID,
		s.ScriptHash.Bytes(),
		nil,
	)
	if err != nil {
		return lcommon.Address{}, fmt.Errorf(
			"derive script address for %s: %w",
			s.Title,
			err,
		)
	}
	return addr, nil
}

// ContractSet is the closed set of contract locations the rest of the
// off-chain layer works against.
type ContractSet struct {
	EscrowAddress     lcommon.Address
	NftPolicyID       string
	ReputationAddress lcommon.Address
}

// Store resolves validators from a loaded blueprint and memoizes the
// results.
type Store struct {
	mu         sync.Mutex
	validators map[string]Validator
	resolved   map[string]*ScriptReference
	plutusTag  byte
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*Store)

// WithPlutusVersion overrides the Plutus language tag used when
// deriving script hashes. The default is PlutusV2, matching the
// deployed Classly validators.
func WithPlutusVersion(tag byte) StoreOption {
	return func(s *Store) {
		s.plutusTag = tag
	}
}

// New creates a Store from an already-parsed blueprint.
func New(bp Blueprint, opts ...StoreOption) *Store {
	s := &Store{
		validators: make(map[string]Validator, len(bp.Validators)),
		resolved:   make(map[string]*ScriptReference),
		plutusTag:  PlutusV2,
	}
	for _, v := range bp.Validators {
		s.validators[v.Title] = v
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewFromFile loads plutus.json from the given path.
func NewFromFile(path string, opts ...StoreOption) (*Store, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading blueprint file: %w", err)
	}
	var bp Blueprint
	if err := json.Unmarshal(buf, &bp); err != nil {
		return nil, fmt.Errorf("parsing blueprint file: %w", err)
	}
	return New(bp, opts...), nil
}

// Resolve returns the script reference for the given validator title.
// The first resolution decodes and hashes the compiled script; later
// calls return the memoized reference.
func (s *Store) Resolve(title string) (*ScriptReference, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ref, ok := s.resolved[title]; ok {
		return ref, nil
	}
	v, ok := s.validators[title]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrScriptNotFound, title)
	}
	script, err := hex.DecodeString(v.CompiledCode)
	if err != nil {
		return nil, fmt.Errorf(
			"decoding compiled code for %s: %w",
			title,
			err,
		)
	}
	ref := &ScriptReference{
		Title:     title,
		PlutusTag: s.plutusTag,
		Script:    script,
	}
	// Prefer the hash recorded in the blueprint; derive it from the
	// script bytes when absent.
	if v.Hash != "" {
		hashBytes, err := hex.DecodeString(v.Hash)
		if err != nil || len(hashBytes) != 28 {
			return nil, fmt.Errorf(
				"invalid script hash in blueprint for %s",
				title,
			)
		}
		ref.ScriptHash = lcommon.NewBlake2b224(hashBytes)
	} else {
		ref.ScriptHash = scriptHash(s.plutusTag, script)
	}
	s.resolved[title] = ref
	return ref, nil
}

// Contracts resolves the full Classly contract set at once.
func (s *Store) Contracts(networkID uint8) (*ContractSet, error) {
	escrowRef, err := s.Resolve(TitleEscrowSpend)
	if err != nil {
		return nil, err
	}
	escrowAddr, err := escrowRef.Address(networkID)
	if err != nil {
		return nil, err
	}
	nftRef, err := s.Resolve(TitleClassroomNftMint)
	if err != nil {
		return nil, err
	}
	repRef, err := s.Resolve(TitleReputationSpend)
	if err != nil {
		return nil, err
	}
	repAddr, err := repRef.Address(networkID)
	if err != nil {
		return nil, err
	}
	return &ContractSet{
		EscrowAddress:     escrowAddr,
		NftPolicyID:       nftRef.PolicyID(),
		ReputationAddress: repAddr,
	}, nil
}

// scriptHash computes the script hash over the language tag followed by
// the compiled script bytes.
func scriptHash(tag byte, script []byte) lcommon.Blake2b224 {
	prefixed := make([]byte, 0, len(script)+1)
	prefixed = append(prefixed, tag)
	prefixed = append(prefixed, script...)
	sum, err := blake2b.New(28, nil)
	if err != nil {
		// blake2b.New only fails on invalid key/size arguments
		panic(err)
	}
	sum.Write(prefixed)
	return lcommon.NewBlake2b224(sum.Sum(nil))
}
