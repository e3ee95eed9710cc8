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

// Package reputation maintains per-teacher rating aggregates as
// versioned on-chain datums. Updates use optimistic concurrency:
// the ledger arbitrates races, and a lost race surfaces as a stale
// UTXO which this package retries a bounded number of times.
package reputation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"sort"
	"time"

	"github.com/blinklabs-io/classly/blueprint"
	"github.com/blinklabs-io/classly/chain"
	"github.com/blinklabs-io/classly/plutus"
	"github.com/blinklabs-io/classly/tx"
	"github.com/blinklabs-io/classly/wallet"
	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidRating is returned for ratings outside [1,5].
	ErrInvalidRating = errors.New("rating must be between 1 and 5")
	// ErrNotFound is returned when no reputation datum exists for a
	// teacher.
	ErrNotFound = errors.New("reputation record not found")
)

// Deposit is the lovelace locked with every reputation datum. It is
// preserved exactly across updates.
const Deposit uint64 = 2_000_000

// maxStaleRetries bounds how often a rating update is retried after
// losing an optimistic-concurrency race.
const maxStaleRetries = 3

// Datum is the versioned on-chain rating aggregate for one teacher.
// Times are unix milliseconds.
type Datum struct {
	TeacherKeyHash    []byte
	TotalRatingSum    int64
	TotalRatingsCount int64
	LastUpdated       int64
	Version           int64
}

// MarshalPlutus encodes the datum in the validator's wire format.
func (d *Datum) MarshalPlutus() ([]byte, error) {
	return plutus.Encode(plutus.Constr(
		0,
		plutus.Bytes(d.TeacherKeyHash),
		plutus.Integer(d.TotalRatingSum),
		plutus.Integer(d.TotalRatingsCount),
		plutus.Integer(d.LastUpdated),
		plutus.Integer(d.Version),
	))
}

// UnmarshalPlutus decodes datum bytes. Failures report
// plutus.ErrMalformedDatum so scans can skip non-reputation
// outputs.
func (d *Datum) UnmarshalPlutus(buf []byte) error {
	pd, err := plutus.Decode(buf)
	if err != nil {
		return err
	}
	r, err := plutus.Unwrap(pd, 0, 5)
	if err != nil {
		return err
	}
	if d.TeacherKeyHash, err = r.Bytes(); err != nil {
		return fmt.Errorf("teacher credential: %w", err)
	}
	if d.TotalRatingSum, err = r.Integer(); err != nil {
		return fmt.Errorf("rating sum: %w", err)
	}
	if d.TotalRatingsCount, err = r.Integer(); err != nil {
		return fmt.Errorf("ratings count: %w", err)
	}
	if d.LastUpdated, err = r.Integer(); err != nil {
		return fmt.Errorf("last updated: %w", err)
	}
	if d.Version, err = r.Integer(); err != nil {
		return fmt.Errorf("version: %w", err)
	}
	return nil
}

// Average returns the mean rating, zero when no ratings exist.
func (d *Datum) Average() decimal.Decimal {
	if d.TotalRatingsCount == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(d.TotalRatingSum).
		Div(decimal.NewFromInt(d.TotalRatingsCount))
}

// AddRatingRedeemer carries the new rating and the rater's
// credential into the validator.
func AddRatingRedeemer(
	rating int,
	raterKeyHash []byte,
) ([]byte, error) {
	return plutus.Encode(plutus.Constr(
		plutus.ReputationTagAddRating,
		plutus.Constr(
			0,
			plutus.Integer(int64(rating)),
			plutus.Bytes(raterKeyHash),
		),
	))
}

// Config is the wiring for the reputation aggregator.
type Config struct {
	Logger    *slog.Logger
	Provider  chain.Provider
	Wallet    wallet.Wallet
	Script    *blueprint.ScriptReference
	NetworkID uint8
	Now       func() time.Time
}

// Aggregator manages reputation datums at the reputation validator
// address.
type Aggregator struct {
	logger        *slog.Logger
	provider      chain.Provider
	wallet        wallet.Wallet
	script        *blueprint.ScriptReference
	scriptAddress string
	now           func() time.Time
}

// New creates a reputation aggregator.
func New(cfg Config) (*Aggregator, error) {
	if cfg.Provider == nil {
		return nil, errors.New("reputation: no provider")
	}
	if cfg.Wallet == nil {
		return nil, errors.New("reputation: no wallet")
	}
	if cfg.Script == nil {
		return nil, errors.New("reputation: no validator script")
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
	return &Aggregator{
		logger:        logger.With("component", "reputation"),
		provider:      cfg.Provider,
		wallet:        cfg.Wallet,
		script:        cfg.Script,
		scriptAddress: addr.String(),
		now:           now,
	}, nil
}

// ScriptAddress returns the reputation script address for this
// network.
func (a *Aggregator) ScriptAddress() string {
	return a.scriptAddress
}

// Initialize creates the version-0 datum for a teacher and locks
// the deposit with it.
func (a *Aggregator) Initialize(
	ctx context.Context,
	teacherAddress string,
) (string, error) {
	teacherHash, err := wallet.PaymentKeyHash(teacherAddress)
	if err != nil {
		return "", fmt.Errorf("teacher address: %w", err)
	}
	datum := Datum{
		TeacherKeyHash: teacherHash,
		LastUpdated:    a.now().UnixMilli(),
	}
	datumBytes, err := datum.MarshalPlutus()
	if err != nil {
		return "", fmt.Errorf("encoding reputation datum: %w", err)
	}

	walletUtxos, err := a.wallet.Utxos(ctx)
	if err != nil {
		return "", fmt.Errorf("querying wallet utxos: %w", err)
	}

	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		PayTo(
			a.scriptAddress,
			chain.Value{chain.LovelaceUnit: Deposit},
			datumBytes,
		).
		ChangeTo(teacherAddress).
		Build()
	if err != nil {
		return "", err
	}

	txID, err := a.finalize(ctx, draft)
	if err != nil {
		return "", err
	}
	a.logger.Info(
		"initialized reputation",
		"teacher", fmt.Sprintf("%x", teacherHash),
		"tx_id", txID,
	)
	return txID, nil
}

// AddRating applies a rating to a teacher's aggregate. The current
// datum is fetched fresh on each attempt; when the submission loses
// an optimistic-concurrency race the update is retried against the
// new version, up to maxStaleRetries times.
func (a *Aggregator) AddRating(
	ctx context.Context,
	teacherAddress string,
	raterAddress string,
	rating int,
) (string, error) {
	if rating < 1 || rating > 5 {
		return "", fmt.Errorf("%w: got %d", ErrInvalidRating, rating)
	}
	teacherHash, err := wallet.PaymentKeyHash(teacherAddress)
	if err != nil {
		return "", fmt.Errorf("teacher address: %w", err)
	}
	raterHash, err := wallet.PaymentKeyHash(raterAddress)
	if err != nil {
		return "", fmt.Errorf("rater address: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= maxStaleRetries; attempt++ {
		utxo, current, err := a.findByHash(ctx, teacherHash)
		if err != nil {
			return "", err
		}
		txID, err := a.submitRating(
			ctx, utxo, current, raterAddress, raterHash, rating,
		)
		if err == nil {
			return txID, nil
		}
		if !errors.Is(err, chain.ErrStaleUtxo) {
			return "", err
		}
		lastErr = err
		a.logger.Warn(
			"rating update lost utxo race, retrying",
			"teacher", fmt.Sprintf("%x", teacherHash),
			"version", current.Version,
			"attempt", attempt+1,
		)
	}
	return "", fmt.Errorf(
		"rating update exhausted %d retries: %w",
		maxStaleRetries,
		lastErr,
	)
}

func (a *Aggregator) submitRating(
	ctx context.Context,
	utxo chain.Utxo,
	current Datum,
	raterAddress string,
	raterHash []byte,
	rating int,
) (string, error) {
	next := Datum{
		TeacherKeyHash:    current.TeacherKeyHash,
		TotalRatingSum:    current.TotalRatingSum + int64(rating),
		TotalRatingsCount: current.TotalRatingsCount + 1,
		LastUpdated:       a.now().UnixMilli(),
		Version:           current.Version + 1,
	}
	nextBytes, err := next.MarshalPlutus()
	if err != nil {
		return "", fmt.Errorf("encoding reputation datum: %w", err)
	}
	redeemer, err := AddRatingRedeemer(rating, raterHash)
	if err != nil {
		return "", err
	}

	walletUtxos, err := a.wallet.Utxos(ctx)
	if err != nil {
		return "", fmt.Errorf("querying wallet utxos: %w", err)
	}

	// The deposit carries over to the new script output unchanged
	draft, err := tx.NewBuilder().
		SpendFrom(walletUtxos...).
		SpendScript(utxo, a.script.Script, redeemer).
		PayTo(
			a.scriptAddress,
			chain.Value{chain.LovelaceUnit: utxo.Value.Lovelace()},
			nextBytes,
		).
		RequireSigner(raterHash).
		ChangeTo(raterAddress).
		Build()
	if err != nil {
		return "", err
	}

	txID, err := a.finalize(ctx, draft)
	if err != nil {
		return "", err
	}
	a.logger.Info(
		"added rating",
		"rating", rating,
		"version", next.Version,
		"tx_id", txID,
	)
	return txID, nil
}

// Records yields the reputation datums among the given outputs,
// silently skipping outputs whose datum does not decode.
func Records(utxos []chain.Utxo) iter.Seq2[chain.Utxo, Datum] {
	return func(yield func(chain.Utxo, Datum) bool) {
		for _, utxo := range utxos {
			if len(utxo.InlineDatum) == 0 {
				continue
			}
			var datum Datum
			if err := datum.UnmarshalPlutus(utxo.InlineDatum); err != nil {
				continue
			}
			if !yield(utxo, datum) {
				return
			}
		}
	}
}

// Find returns the reputation output for the given teacher, or
// ErrNotFound.
func (a *Aggregator) Find(
	ctx context.Context,
	teacherAddress string,
) (chain.Utxo, Datum, error) {
	teacherHash, err := wallet.PaymentKeyHash(teacherAddress)
	if err != nil {
		return chain.Utxo{}, Datum{}, fmt.Errorf(
			"teacher address: %w", err,
		)
	}
	return a.findByHash(ctx, teacherHash)
}

func (a *Aggregator) findByHash(
	ctx context.Context,
	teacherHash []byte,
) (chain.Utxo, Datum, error) {
	utxos, err := a.provider.UtxosAt(ctx, a.scriptAddress)
	if err != nil {
		return chain.Utxo{}, Datum{}, err
	}
	for utxo, datum := range Records(utxos) {
		if bytes.Equal(datum.TeacherKeyHash, teacherHash) {
			return utxo, datum, nil
		}
	}
	return chain.Utxo{}, Datum{}, fmt.Errorf(
		"%w: teacher %x",
		ErrNotFound,
		teacherHash,
	)
}

// Details is the human-facing view of one teacher's aggregate.
type Details struct {
	TeacherKeyHash    string
	TotalRatingSum    int64
	TotalRatingsCount int64
	AverageRating     decimal.Decimal
	PercentageScore   decimal.Decimal
	LastUpdated       time.Time
	Version           int64
}

// DatumDetails derives the display view from a datum. The
// percentage score maps the 1 to 5 scale onto 0 to 100.
func DatumDetails(d Datum) Details {
	avg := d.Average()
	return Details{
		TeacherKeyHash:    fmt.Sprintf("%x", d.TeacherKeyHash),
		TotalRatingSum:    d.TotalRatingSum,
		TotalRatingsCount: d.TotalRatingsCount,
		AverageRating:     avg,
		PercentageScore: avg.Div(decimal.NewFromInt(5)).
			Mul(decimal.NewFromInt(100)),
		LastUpdated: time.UnixMilli(d.LastUpdated),
		Version:     d.Version,
	}
}

// Entry is one teacher's aggregate with its derived average.
type Entry struct {
	TeacherKeyHash string
	Average        decimal.Decimal
	RatingsCount   int64
	Version        int64
}

// Leaderboard returns all reputation records sorted by average
// rating, highest first. Ties keep a stable order by credential.
func (a *Aggregator) Leaderboard(
	ctx context.Context,
) ([]Entry, error) {
	utxos, err := a.provider.UtxosAt(ctx, a.scriptAddress)
	if err != nil {
		return nil, err
	}
	var entries []Entry
	for _, datum := range Records(utxos) {
		entries = append(entries, Entry{
			TeacherKeyHash: fmt.Sprintf("%x", datum.TeacherKeyHash),
			Average:        datum.Average(),
			RatingsCount:   datum.TotalRatingsCount,
			Version:        datum.Version,
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if !entries[i].Average.Equal(entries[j].Average) {
			return entries[i].Average.GreaterThan(entries[j].Average)
		}
		return entries[i].TeacherKeyHash < entries[j].TeacherKeyHash
	})
	return entries, nil
}

// HasMinimum reports whether the teacher's average rating meets the
// threshold with at least one rating recorded.
func (a *Aggregator) HasMinimum(
	ctx context.Context,
	teacherAddress string,
	minimum decimal.Decimal,
) (bool, error) {
	_, datum, err := a.Find(ctx, teacherAddress)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if datum.TotalRatingsCount == 0 {
		return false, nil
	}
	return datum.Average().GreaterThanOrEqual(minimum), nil
}

func (a *Aggregator) finalize(
	ctx context.Context,
	draft *tx.Draft,
) (string, error) {
	signed, err := a.wallet.SignTx(ctx, draft)
	if err != nil {
		return "", fmt.Errorf("signing transaction: %w", err)
	}
	txID, err := a.provider.SubmitTx(ctx, signed)
	if err != nil {
		return "", err
	}
	return txID, nil
}
