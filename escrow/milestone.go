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
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/plutus"
	"github.com/blinklabs-io/classly/tx"
	"github.com/blinklabs-io/classly/wallet"
	"github.com/google/uuid"
)

var (
	// ErrInvalidProof is returned when an oracle proof fails
	// verification.
	ErrInvalidProof = errors.New("invalid oracle proof")
	// ErrPhaseAlreadyReleased is returned when a phase transition
	// was already performed on the datum.
	ErrPhaseAlreadyReleased = errors.New("phase already released")
	// ErrDisputeWindowClosed is returned when a sender refund is
	// attempted after the dispute window has elapsed.
	ErrDisputeWindowClosed = errors.New("dispute window closed")
)

// DisputeWindow is how long the sender may still dispute after the
// milestone is reached. The final release only becomes valid once
// this window has elapsed.
const DisputeWindow = 14 * 24 * time.Hour

// Phase percentages of the 30/40/30 split.
const (
	phase1Percent = 30
	phase2Percent = 40
)

// MilestoneDatum is the on-chain state of a three-phase escrow.
// Phase 1 is disbursed at lock time, phase 2 on an oracle-signed
// milestone proof, phase 3 after the dispute window. All times are
// unix milliseconds.
type MilestoneDatum struct {
	EscrowID           []byte
	SenderKeyHash      []byte
	ReceiverKeyHash    []byte
	TotalLocked        int64
	Phase1Amount       int64
	Phase2Amount       int64
	Phase3Amount       int64
	Phase1Released     bool
	Phase2Released     bool
	Phase3Released     bool
	MilestoneReached   bool
	DisputeWindowStart int64
	ResourceID         []byte
	OraclePubKey       []byte
	CreatedAt          int64
}

// MarshalPlutus encodes the datum in the validator's wire format.
// DisputeWindowStart is an Option, present only once the milestone
// has been reached.
func (d *MilestoneDatum) MarshalPlutus() ([]byte, error) {
	disputeWindow := plutus.None()
	if d.MilestoneReached {
		disputeWindow = plutus.Some(
			plutus.Integer(d.DisputeWindowStart),
		)
	}
	return plutus.Encode(plutus.Constr(
		0,
		plutus.Bytes(d.EscrowID),
		plutus.Bytes(d.SenderKeyHash),
		plutus.Bytes(d.ReceiverKeyHash),
		plutus.Integer(d.TotalLocked),
		plutus.Integer(d.Phase1Amount),
		plutus.Integer(d.Phase2Amount),
		plutus.Integer(d.Phase3Amount),
		plutus.Bool(d.Phase1Released),
		plutus.Bool(d.Phase2Released),
		plutus.Bool(d.Phase3Released),
		plutus.Bool(d.MilestoneReached),
		disputeWindow,
		plutus.Bytes(d.ResourceID),
		plutus.Bytes(d.OraclePubKey),
		plutus.Integer(d.CreatedAt),
	))
}

// UnmarshalPlutus decodes datum bytes. Failures report
// plutus.ErrMalformedDatum so scans can skip non-milestone outputs.
func (d *MilestoneDatum) UnmarshalPlutus(buf []byte) error {
	pd, err := plutus.Decode(buf)
	if err != nil {
		return err
	}
	r, err := plutus.Unwrap(pd, 0, 15)
	if err != nil {
		return err
	}
	if d.EscrowID, err = r.Bytes(); err != nil {
		return fmt.Errorf("escrow id: %w", err)
	}
	if d.SenderKeyHash, err = r.Bytes(); err != nil {
		return fmt.Errorf("sender credential: %w", err)
	}
	if d.ReceiverKeyHash, err = r.Bytes(); err != nil {
		return fmt.Errorf("receiver credential: %w", err)
	}
	if d.TotalLocked, err = r.Integer(); err != nil {
		return fmt.Errorf("total locked: %w", err)
	}
	if d.Phase1Amount, err = r.Integer(); err != nil {
		return fmt.Errorf("phase 1 amount: %w", err)
	}
	if d.Phase2Amount, err = r.Integer(); err != nil {
		return fmt.Errorf("phase 2 amount: %w", err)
	}
	if d.Phase3Amount, err = r.Integer(); err != nil {
		return fmt.Errorf("phase 3 amount: %w", err)
	}
	if d.Phase1Released, err = r.Bool(); err != nil {
		return fmt.Errorf("phase 1 released: %w", err)
	}
	if d.Phase2Released, err = r.Bool(); err != nil {
		return fmt.Errorf("phase 2 released: %w", err)
	}
	if d.Phase3Released, err = r.Bool(); err != nil {
		return fmt.Errorf("phase 3 released: %w", err)
	}
	if d.MilestoneReached, err = r.Bool(); err != nil {
		return fmt.Errorf("milestone reached: %w", err)
	}
	d.DisputeWindowStart, _, err = r.OptionalInteger()
	if err != nil {
		return fmt.Errorf("dispute window start: %w", err)
	}
	if d.ResourceID, err = r.Bytes(); err != nil {
		return fmt.Errorf("resource id: %w", err)
	}
	if d.OraclePubKey, err = r.Bytes(); err != nil {
		return fmt.Errorf("oracle public key: %w", err)
	}
	if d.CreatedAt, err = r.Integer(); err != nil {
		return fmt.Errorf("created at: %w", err)
	}
	return nil
}

// checkSplit verifies the phase arithmetic invariant.
func (d *MilestoneDatum) checkSplit() error {
	sum := d.Phase1Amount + d.Phase2Amount + d.Phase3Amount
	if sum != d.TotalLocked {
		return fmt.Errorf(
			"phase amounts sum to %d, total locked is %d",
			sum,
			d.TotalLocked,
		)
	}
	return nil
}

// SplitPhases divides a total into the 30/40/30 phase amounts.
// Rounding remainders land in phase 3 so the amounts always sum to
// the total.
func SplitPhases(total int64) (p1, p2, p3 int64) {
	p1 = total * phase1Percent / 100
	p2 = total * phase2Percent / 100
	p3 = total - p1 - p2
	return p1, p2, p3
}

// MilestoneProof is an oracle-signed attestation that the receiver
// completed at least half of the resource.
type MilestoneProof struct {
	SenderKeyHash        []byte
	ResourceID           []byte
	CompletionPercentage int
	Timestamp            int64
	Nonce                []byte
	Signature            []byte
}

// message is the canonical byte string the oracle signs.
func (p *MilestoneProof) message() []byte {
	return fmt.Appendf(
		nil,
		"%x|%x|%d|%d|%x",
		p.SenderKeyHash,
		p.ResourceID,
		p.CompletionPercentage,
		p.Timestamp,
		p.Nonce,
	)
}

// Verify checks the proof against the datum's oracle key and
// resource. The milestone threshold is 50 percent.
func (p *MilestoneProof) Verify(datum *MilestoneDatum) error {
	if p.CompletionPercentage < 50 {
		return fmt.Errorf(
			"%w: completion %d%% below milestone threshold",
			ErrInvalidProof,
			p.CompletionPercentage,
		)
	}
	if !bytes.Equal(p.ResourceID, datum.ResourceID) {
		return fmt.Errorf("%w: resource mismatch", ErrInvalidProof)
	}
	if !bytes.Equal(p.SenderKeyHash, datum.SenderKeyHash) {
		return fmt.Errorf("%w: sender mismatch", ErrInvalidProof)
	}
	if len(datum.OraclePubKey) != ed25519.PublicKeySize {
		return fmt.Errorf(
			"%w: oracle key is %d bytes",
			ErrInvalidProof,
			len(datum.OraclePubKey),
		)
	}
	if !ed25519.Verify(
		ed25519.PublicKey(datum.OraclePubKey),
		p.message(),
		p.Signature,
	) {
		return fmt.Errorf("%w: bad signature", ErrInvalidProof)
	}
	return nil
}

// MilestoneReleaseRedeemer carries the oracle proof into the
// validator's milestone-release branch.
func MilestoneReleaseRedeemer(proof *MilestoneProof) ([]byte, error) {
	return plutus.Encode(plutus.Constr(
		plutus.MilestoneTagRelease,
		plutus.Bytes(proof.Signature),
		plutus.Integer(int64(proof.CompletionPercentage)),
		plutus.Integer(proof.Timestamp),
		plutus.Bytes(proof.Nonce),
	))
}

// FinalReleaseRedeemer selects the post-dispute-window final
// release branch.
func FinalReleaseRedeemer() ([]byte, error) {
	return plutus.Encode(plutus.Constr(plutus.MilestoneTagFinal))
}

// MilestoneRefundRedeemer selects the sender refund branch.
func MilestoneRefundRedeemer() ([]byte, error) {
	return plutus.Encode(plutus.Constr(plutus.MilestoneTagRefund))
}

// Milestone is the three-phase escrow service.
type Milestone struct {
	logger        *slog.Logger
	provider      chain.Provider
	wallet        wallet.Wallet
	script        *blueprint.ScriptReference
	scriptAddress string
	now           func() time.Time
}

// NewMilestone creates a milestone escrow service bound to the
// milestone spending validator.
func NewMilestone(cfg Config) (*Milestone, error) {
	if cfg.Provider == nil {
		return nil, errors.New("milestone escrow: no provider")
	}
	if cfg.Wallet == nil {
		return nil, errors.New("milestone escrow: no wallet")
	}
	if cfg.Script == nil {
		return nil, errors.New("milestone escrow: no validator script")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	addr, err := cfg.Script.Address(cfg.NetworkID)
	if err != nil {
		return nil, err
	}
	return &Milestone{
		logger:        logger.With("component", "milestone_escrow"),
		provider:      cfg.Provider,
		wallet:        cfg.Wallet,
		script:        cfg.Script,
		scriptAddress: addr.String(),
		now:           now,
	}, nil
}

// ScriptAddress returns the milestone script address for this
// network.
func (m *Milestone) ScriptAddress() string {
	return m.scriptAddress
}

// MilestoneLockParams describes a new milestone escrow lock.
type MilestoneLockParams struct {
	SenderAddress   string
	ReceiverAddress string
	Total           uint64
	ResourceID      []byte
	OraclePubKey    ed25519.PublicKey
}

// Lock splits the total 30/40/30, pays phase 1 to the receiver
// immediately, and locks the remaining 70 percent at the script
// under a fresh datum. Returns the escrow id and the transaction
// id.
func (m *Milestone) Lock(
	ctx context.Context,
	params MilestoneLockParams,
) (string, string, error) {
	senderHash, err := wallet.PaymentKeyHash(params.SenderAddress)
	if err != nil {
		return "", "", fmt.Errorf(
			"%w: sender: %s", ErrInvalidParty, err,
		)
	}
	receiverHash, err := wallet.PaymentKeyHash(params.ReceiverAddress)
	if err != nil {
		return "", "", fmt.Errorf(
			"%w: receiver: %s", ErrInvalidParty, err,
		)
	}
	if params.Total == 0 {
		return "", "", errors.New("escrow lock amount must be positive")
	}
	if len(params.OraclePubKey) != ed25519.PublicKeySize {
		return "", "", fmt.Errorf(
			"oracle public key is %d bytes, want %d",
			len(params.OraclePubKey),
			ed25519.PublicKeySize,
		)
	}

	escrowID := uuid.NewString()
	p1, p2, p3 := SplitPhases(int64(params.Total)) // #nosec G115
	datum := MilestoneDatum{
		EscrowID:        []byte(escrowID),
		SenderKeyHash:   senderHash,
		ReceiverKeyHash: receiverHash,
		TotalLocked:     p1 + p2 + p3,
		Phase1Amount:    p1,
		Phase2Amount:    p2,
		Phase3Amount:    p3,
		Phase1Released:  true,
		ResourceID:      params.ResourceID,
		OraclePubKey:    params.OraclePubKey,
		CreatedAt:       m.now().UnixMilli(),
	}
	if err := datum.checkSplit(); err != nil {
		return "", "", err
	}
	datumBytes, err := datum.MarshalPlutus()
	if err != nil {
		return "", "", fmt.Errorf("encoding milestone datum: %w", err)
	}

	walletUtxos, err := m.wallet.Utxos(ctx)
	if err != nil {
		return "", "", fmt.Errorf("querying wallet utxos: %w", err)
	}

	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		PayTo(
			params.ReceiverAddress,
			chain.Value{chain.LovelaceUnit: uint64(p1)},
			nil,
		).
		PayTo(
			m.scriptAddress,
			chain.Value{chain.LovelaceUnit: uint64(p2 + p3)},
			datumBytes,
		).
		ChangeTo(params.SenderAddress).
		Build()
	if err != nil {
		return "", "", err
	}

	txID, err := m.finalize(ctx, draft)
	if err != nil {
		return "", "", err
	}
	m.logger.Info(
		"locked milestone escrow",
		"escrow_id", escrowID,
		"total", params.Total,
		"tx_id", txID,
	)
	return escrowID, txID, nil
}

// ReleaseMilestoneParams describes a phase 2 release backed by an
// oracle milestone proof.
type ReleaseMilestoneParams struct {
	ReceiverAddress string
	EscrowUtxo      chain.Utxo
	Proof           *MilestoneProof
}

// ReleaseMilestone pays phase 2 to the receiver on a valid oracle
// proof, marks the milestone reached, opens the dispute window, and
// re-locks phase 3 under the updated datum.
func (m *Milestone) ReleaseMilestone(
	ctx context.Context,
	params ReleaseMilestoneParams,
) (string, error) {
	if params.Proof == nil {
		return "", fmt.Errorf("%w: no oracle proof", ErrMissingProof)
	}
	var datum MilestoneDatum
	if err := datum.UnmarshalPlutus(params.EscrowUtxo.InlineDatum); err != nil {
		return "", fmt.Errorf("decoding milestone datum: %w", err)
	}
	if datum.Phase2Released || datum.MilestoneReached {
		return "", fmt.Errorf("%w: phase 2", ErrPhaseAlreadyReleased)
	}
	receiverHash, err := wallet.PaymentKeyHash(params.ReceiverAddress)
	if err != nil {
		return "", fmt.Errorf("%w: receiver: %s", ErrInvalidParty, err)
	}
	if !bytes.Equal(receiverHash, datum.ReceiverKeyHash) {
		return "", fmt.Errorf(
			"%w: %s is not the escrow receiver",
			ErrInvalidParty,
			params.ReceiverAddress,
		)
	}
	if err := params.Proof.Verify(&datum); err != nil {
		return "", err
	}

	next := datum
	next.Phase2Released = true
	next.MilestoneReached = true
	next.DisputeWindowStart = m.now().UnixMilli()
	if err := next.checkSplit(); err != nil {
		return "", err
	}
	nextBytes, err := next.MarshalPlutus()
	if err != nil {
		return "", fmt.Errorf("encoding milestone datum: %w", err)
	}
	redeemer, err := MilestoneReleaseRedeemer(params.Proof)
	if err != nil {
		return "", err
	}

	walletUtxos, err := m.wallet.Utxos(ctx)
	if err != nil {
		return "", fmt.Errorf("querying wallet utxos: %w", err)
	}

	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		SpendScript(params.EscrowUtxo, m.script.Script, redeemer).
		PayTo(
			params.ReceiverAddress,
			chain.Value{
				chain.LovelaceUnit: uint64(datum.Phase2Amount),
			},
			nil,
		).
		PayTo(
			m.scriptAddress,
			chain.Value{
				chain.LovelaceUnit: uint64(datum.Phase3Amount),
			},
			nextBytes,
		).
		RequireSigner(receiverHash).
		ChangeTo(params.ReceiverAddress).
		Build()
	if err != nil {
		return "", err
	}

	txID, err := m.finalize(ctx, draft)
	if err != nil {
		return "", err
	}
	m.logger.Info(
		"released milestone phase 2",
		"escrow_id", string(datum.EscrowID),
		"amount", datum.Phase2Amount,
		"tx_id", txID,
	)
	return txID, nil
}

// FinalReleaseParams describes the terminal phase 3 release.
type FinalReleaseParams struct {
	ReceiverAddress string
	EscrowUtxo      chain.Utxo
}

// FinalRelease pays phase 3 to the receiver once the dispute window
// has elapsed and closes the escrow. No new script output is
// produced.
func (m *Milestone) FinalRelease(
	ctx context.Context,
	params FinalReleaseParams,
) (string, error) {
	var datum MilestoneDatum
	if err := datum.UnmarshalPlutus(params.EscrowUtxo.InlineDatum); err != nil {
		return "", fmt.Errorf("decoding milestone datum: %w", err)
	}
	if datum.Phase3Released {
		return "", fmt.Errorf("%w: phase 3", ErrPhaseAlreadyReleased)
	}
	if !datum.MilestoneReached {
		return "", fmt.Errorf(
			"%w: milestone not reached",
			ErrDeadlineNotReached,
		)
	}
	receiverHash, err := wallet.PaymentKeyHash(params.ReceiverAddress)
	if err != nil {
		return "", fmt.Errorf("%w: receiver: %s", ErrInvalidParty, err)
	}
	if !bytes.Equal(receiverHash, datum.ReceiverKeyHash) {
		return "", fmt.Errorf(
			"%w: %s is not the escrow receiver",
			ErrInvalidParty,
			params.ReceiverAddress,
		)
	}
	windowEnd := datum.DisputeWindowStart + DisputeWindow.Milliseconds()
	if m.now().UnixMilli() < windowEnd {
		return "", fmt.Errorf(
			"%w: dispute window open until %s",
			ErrDeadlineNotReached,
			time.UnixMilli(windowEnd).UTC(),
		)
	}

	redeemer, err := FinalReleaseRedeemer()
	if err != nil {
		return "", err
	}
	walletUtxos, err := m.wallet.Utxos(ctx)
	if err != nil {
		return "", fmt.Errorf("querying wallet utxos: %w", err)
	}

	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		SpendScript(params.EscrowUtxo, m.script.Script, redeemer).
		PayTo(
			params.ReceiverAddress,
			chain.Value{
				chain.LovelaceUnit: uint64(datum.Phase3Amount),
			},
			nil,
		).
		RequireSigner(receiverHash).
		ValidFrom(uint64(windowEnd)). // #nosec G115
		ChangeTo(params.ReceiverAddress).
		Build()
	if err != nil {
		return "", err
	}

	txID, err := m.finalize(ctx, draft)
	if err != nil {
		return "", err
	}
	m.logger.Info(
		"released milestone final phase",
		"escrow_id", string(datum.EscrowID),
		"amount", datum.Phase3Amount,
		"tx_id", txID,
	)
	return txID, nil
}

// MilestoneRefundParams describes a sender refund.
type MilestoneRefundParams struct {
	SenderAddress string
	EscrowUtxo    chain.Utxo
}

// Refund returns the script-held funds to the sender. Before the
// milestone the sender reclaims phases 2 and 3; after the milestone
// the sender may reclaim phase 3 only, and only while the dispute
// window is open.
func (m *Milestone) Refund(
	ctx context.Context,
	params MilestoneRefundParams,
) (string, error) {
	var datum MilestoneDatum
	if err := datum.UnmarshalPlutus(params.EscrowUtxo.InlineDatum); err != nil {
		return "", fmt.Errorf("decoding milestone datum: %w", err)
	}
	senderHash, err := wallet.PaymentKeyHash(params.SenderAddress)
	if err != nil {
		return "", fmt.Errorf("%w: sender: %s", ErrInvalidParty, err)
	}
	if !bytes.Equal(senderHash, datum.SenderKeyHash) {
		return "", fmt.Errorf(
			"%w: %s is not the escrow sender",
			ErrInvalidParty,
			params.SenderAddress,
		)
	}

	var refund int64
	if !datum.MilestoneReached {
		refund = datum.Phase2Amount + datum.Phase3Amount
	} else {
		windowEnd := datum.DisputeWindowStart +
			DisputeWindow.Milliseconds()
		if m.now().UnixMilli() >= windowEnd {
			return "", fmt.Errorf(
				"%w: window ended %s",
				ErrDisputeWindowClosed,
				time.UnixMilli(windowEnd).UTC(),
			)
		}
		refund = datum.Phase3Amount
	}

	redeemer, err := MilestoneRefundRedeemer()
	if err != nil {
		return "", err
	}
	walletUtxos, err := m.wallet.Utxos(ctx)
	if err != nil {
		return "", fmt.Errorf("querying wallet utxos: %w", err)
	}

	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		SpendScript(params.EscrowUtxo, m.script.Script, redeemer).
		PayTo(
			params.SenderAddress,
			chain.Value{chain.LovelaceUnit: uint64(refund)},
			nil,
		).
		RequireSigner(senderHash).
		ChangeTo(params.SenderAddress).
		Build()
	if err != nil {
		return "", err
	}

	txID, err := m.finalize(ctx, draft)
	if err != nil {
		return "", err
	}
	m.logger.Info(
		"refunded milestone escrow",
		"escrow_id", string(datum.EscrowID),
		"amount", refund,
		"tx_id", txID,
	)
	return txID, nil
}

// Utxos returns all outputs currently at the milestone script
// address.
func (m *Milestone) Utxos(ctx context.Context) ([]chain.Utxo, error) {
	return m.provider.UtxosAt(ctx, m.scriptAddress)
}

// MilestoneRecords yields the milestone datums among the given
// outputs, silently skipping outputs whose datum does not decode.
func MilestoneRecords(
	utxos []chain.Utxo,
) iter.Seq2[chain.Utxo, MilestoneDatum] {
	return func(yield func(chain.Utxo, MilestoneDatum) bool) {
		for _, utxo := range utxos {
			if len(utxo.InlineDatum) == 0 {
				continue
			}
			var datum MilestoneDatum
			if err := datum.UnmarshalPlutus(utxo.InlineDatum); err != nil {
				continue
			}
			if !yield(utxo, datum) {
				return
			}
		}
	}
}

// FindByID returns the milestone escrow output with the given
// escrow id, or ErrNotFound.
func (m *Milestone) FindByID(
	ctx context.Context,
	escrowID string,
) (chain.Utxo, MilestoneDatum, error) {
	utxos, err := m.Utxos(ctx)
	if err != nil {
		return chain.Utxo{}, MilestoneDatum{}, err
	}
	for utxo, datum := range MilestoneRecords(utxos) {
		if string(datum.EscrowID) == escrowID {
			return utxo, datum, nil
		}
	}
	return chain.Utxo{}, MilestoneDatum{}, fmt.Errorf(
		"%w: no milestone escrow %s",
		ErrNotFound,
		escrowID,
	)
}

func (m *Milestone) finalize(
	ctx context.Context,
	draft *tx.Draft,
) (string, error) {
	signed, err := m.wallet.SignTx(ctx, draft)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	txID, err := m.provider.SubmitTx(ctx, signed)
	if err != nil {
		return "", err
	}
	return txID, nil
}
