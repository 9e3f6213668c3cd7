package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/veloxcart/catalog-cache/internal/repo"
	"github.com/veloxcart/catalog-cache/pkg/db/models"
	"github.com/veloxcart/catalog-cache/pkg/enums"
	"github.com/veloxcart/catalog-cache/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// SlotOne and SlotTwo are the only generation identities.
	SlotOne = 1
	SlotTwo = 2

	// DefaultStalenessThreshold is how long a warming build may run
	// before it is considered abandoned.
	DefaultStalenessThreshold = 15 * time.Minute
)

// Store tracks the two cache generations and their lifecycle.
type Store struct {
	base      repo.Base
	logg      *logger.Logger
	staleness time.Duration
}

// NewStore builds a generation store. A zero staleness threshold falls
// back to the 15 minute default.
func NewStore(db *gorm.DB, logg *logger.Logger, staleness time.Duration) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if staleness <= 0 {
		staleness = DefaultStalenessThreshold
	}
	return &Store{base: repo.NewBase(db), logg: logg, staleness: staleness}, nil
}

// EnsureSlots seeds the two generation rows if they do not exist yet.
func (s *Store) EnsureSlots(ctx context.Context) error {
	for _, id := range []int{SlotOne, SlotTwo} {
		row := models.Generation{ID: id, State: enums.GenerationStateEmpty}
		err := s.base.DB(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(&row).Error
		if err != nil {
			return fmt.Errorf("seeding generation %d: %w", id, err)
		}
	}
	return nil
}

// Get loads one generation row.
func (s *Store) Get(ctx context.Context, id int) (*models.Generation, error) {
	var gen models.Generation
	if err := s.base.DB(ctx).First(&gen, "id = ?", id).Error; err != nil {
		return nil, fmt.Errorf("loading generation %d: %w", id, err)
	}
	return &gen, nil
}

// Ready returns the currently serving generation id, or 0 when no
// generation is ready.
func (s *Store) Ready(ctx context.Context) (int, error) {
	var gen models.Generation
	err := s.base.DB(ctx).
		Where("state = ?", enums.GenerationStateReady).
		Order("id").
		First(&gen).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("loading ready generation: %w", err)
	}
	return gen.ID, nil
}

// Acquire picks the generation to warm next and flips it to warming in
// one transaction. It returns 0 when no slot needs warming. A slot stuck
// in warming longer than the staleness threshold is treated as an
// abandoned build, reset to empty, and becomes eligible again.
func (s *Store) Acquire(ctx context.Context) (int, error) {
	var target int
	err := s.base.DB(ctx).Transaction(func(tx *gorm.DB) error {
		var gens []models.Generation
		if err := tx.Order("id").Find(&gens).Error; err != nil {
			return fmt.Errorf("loading generations: %w", err)
		}
		if len(gens) != 2 {
			return fmt.Errorf("expected 2 generation rows, found %d", len(gens))
		}

		for i := range gens {
			if s.isAbandoned(gens[i]) {
				s.logg.Warn(s.logg.WithGeneration(ctx, gens[i].ID), "resetting abandoned warming generation")
				if err := resetTx(tx, gens[i].ID); err != nil {
					return err
				}
				gens[i].State = enums.GenerationStateEmpty
				gens[i].WarmingSince = nil
			}
		}

		for _, gen := range gens {
			if gen.State == enums.GenerationStateWarming {
				// a live build owns a slot already
				return nil
			}
		}

		target = selectTarget(gens)
		if target == 0 {
			return nil
		}
		return markWarmingTx(tx, target)
	})
	if err != nil {
		return 0, err
	}
	return target, nil
}

func (s *Store) isAbandoned(gen models.Generation) bool {
	if gen.State != enums.GenerationStateWarming {
		return false
	}
	if gen.WarmingSince == nil {
		return true
	}
	return time.Since(*gen.WarmingSince) > s.staleness
}

func selectTarget(gens []models.Generation) int {
	var ready, empty int
	for _, gen := range gens {
		switch gen.State {
		case enums.GenerationStateReady:
			ready = gen.ID
		case enums.GenerationStateEmpty:
			empty = gen.ID
		}
	}
	if ready == 0 {
		// nothing serves yet; always start with slot one
		return SlotOne
	}
	return empty
}

func markWarmingTx(tx *gorm.DB, id int) error {
	now := time.Now().UTC()
	res := tx.Model(&models.Generation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":         enums.GenerationStateWarming,
			"warming_since": now,
			"ready_at":      nil,
		})
	if res.Error != nil {
		return fmt.Errorf("marking generation %d warming: %w", id, res.Error)
	}
	return nil
}

// Promote flips the target generation to ready and the other slot to
// empty in a single transaction, so readers switch atomically.
func (s *Store) Promote(ctx context.Context, id int) error {
	other := otherSlot(id)
	return s.base.DB(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.Generation{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"state":         enums.GenerationStateReady,
				"ready_at":      now,
				"warming_since": nil,
			})
		if res.Error != nil {
			return fmt.Errorf("promoting generation %d: %w", id, res.Error)
		}
		if err := resetTx(tx, other); err != nil {
			return err
		}
		return nil
	})
}

// Reset returns the generation to empty. Used after failed builds.
func (s *Store) Reset(ctx context.Context, id int) error {
	return resetTx(s.base.DB(ctx), id)
}

func resetTx(tx *gorm.DB, id int) error {
	res := tx.Model(&models.Generation{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"state":         enums.GenerationStateEmpty,
			"warming_since": nil,
			"ready_at":      nil,
		})
	if res.Error != nil {
		return fmt.Errorf("resetting generation %d: %w", id, res.Error)
	}
	return nil
}

func otherSlot(id int) int {
	if id == SlotOne {
		return SlotTwo
	}
	return SlotOne
}
