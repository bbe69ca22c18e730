// Package commit turns an extracted reward or program suggestion into
// persisted reward records, gated by the merchant's PIN. A commit is all or
// nothing: either every reward lands in every location or none do.
package commit

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"tapassist/internal/model"
)

var (
	ErrInvalidPin    = fmt.Errorf("pin must be exactly 4 digits")
	ErrNotAuthorized = fmt.Errorf("pin does not match")
	ErrEmptyProgram  = fmt.Errorf("program has no rewards")
)

// PersistenceError wraps a storage failure so callers can distinguish it from
// validation errors.
type PersistenceError struct {
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("commit persistence failed: %v", e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// RewardStore persists a committed batch atomically.
type RewardStore interface {
	SaveAll(ctx context.Context, rewards []*model.PersistedReward) error
}

// PinVerifier checks a merchant's PIN against the merchant record.
type PinVerifier interface {
	Verify(ctx context.Context, merchantID, pin string) error
}

// Selection is the sealed input to a commit: exactly one reward or one
// program, as produced by the reply parser.
type Selection interface {
	rewards() []model.Reward
	programName() string
	isProgram() bool
}

// RewardSelection commits a single standalone reward.
type RewardSelection struct {
	Reward model.Reward
}

func (s RewardSelection) rewards() []model.Reward { return []model.Reward{s.Reward} }
func (s RewardSelection) programName() string     { return "" }
func (s RewardSelection) isProgram() bool         { return false }

// ProgramSelection commits every reward in a program under one shared
// program identifier.
type ProgramSelection struct {
	Program model.Program
}

func (s ProgramSelection) rewards() []model.Reward { return s.Program.Rewards }
func (s ProgramSelection) programName() string     { return s.Program.ProgramName }
func (s ProgramSelection) isProgram() bool         { return true }

// Engine builds and persists reward records.
type Engine struct {
	store    RewardStore
	verifier PinVerifier
	now      func() time.Time
	suffix   func() string
}

func NewEngine(store RewardStore, verifier PinVerifier) *Engine {
	return &Engine{
		store:    store,
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
		suffix:   randomSuffix,
	}
}

var pinRe = regexp.MustCompile(`^\d{4}$`)

// Commit validates the PIN, assigns identifiers, and persists the selection
// atomically. Program rewards share a program id derived from the commit
// timestamp; every reward id embeds its own timestamp slot plus a random
// suffix so a re-commit of the same suggestion always produces fresh records.
func (e *Engine) Commit(ctx context.Context, merchantID string, sel Selection, pin string, status model.RewardStatus) (*model.CommitSummary, error) {
	if !pinRe.MatchString(pin) {
		return nil, ErrInvalidPin
	}
	if e.verifier != nil {
		if err := e.verifier.Verify(ctx, merchantID, pin); err != nil {
			return nil, err
		}
	}
	if status != model.StatusDraft && status != model.StatusLive {
		return nil, fmt.Errorf("unknown status: %s", status)
	}

	rewards := sel.rewards()
	programName := sel.programName()
	if sel.isProgram() && len(rewards) == 0 {
		return nil, ErrEmptyProgram
	}
	if len(rewards) == 0 {
		return nil, fmt.Errorf("nothing to commit")
	}

	now := e.now()
	baseTs := now.UnixMilli()

	var programID string
	if sel.isProgram() {
		programID = fmt.Sprintf("program-%d", baseTs)
	}

	records := make([]*model.PersistedReward, 0, len(rewards))
	for i, reward := range rewards {
		reward.Conversation = ""
		reward.IsActive = status == model.StatusLive

		var id string
		if programID != "" {
			id = fmt.Sprintf("%s-reward-%d-%s", programID, baseTs+int64(i), e.suffix())
		} else {
			id = fmt.Sprintf("%d-%s", baseTs, e.suffix())
		}

		records = append(records, &model.PersistedReward{
			Reward:      reward,
			ID:          id,
			ProgramID:   programID,
			ProgramName: programName,
			MerchantID:  merchantID,
			PIN:         pin,
			Status:      status,
			Category:    model.CategoryIndividual,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	if err := e.store.SaveAll(ctx, records); err != nil {
		return nil, &PersistenceError{Err: err}
	}

	log.Info().
		Str("merchant_id", merchantID).
		Str("program_id", programID).
		Int("rewards", len(records)).
		Str("status", string(status)).
		Msg("rewards committed")

	return &model.CommitSummary{
		RewardsCommitted: len(records),
		ProgramID:        programID,
	}, nil
}

const suffixAlphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// randomSuffix is a 9-character base36 string, enough entropy to keep ids
// unique within a single millisecond slot.
func randomSuffix() string {
	var b strings.Builder
	for i := 0; i < 9; i++ {
		b.WriteByte(suffixAlphabet[rand.Intn(len(suffixAlphabet))])
	}
	return b.String()
}
