package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fieldkeeper/fieldsync/internal/client/access"
	"github.com/fieldkeeper/fieldsync/internal/client/client"
	"github.com/fieldkeeper/fieldsync/internal/client/identity"
	"github.com/fieldkeeper/fieldsync/internal/client/models"
	"github.com/fieldkeeper/fieldsync/internal/client/reconcile"
	"github.com/fieldkeeper/fieldsync/internal/client/store"
	"github.com/fieldkeeper/fieldsync/internal/common"
	"github.com/fieldkeeper/fieldsync/internal/logging"
	"github.com/google/uuid"
)

// NewID returns an id for a record created on this device.
func NewID() string { return uuid.NewString() }

// RequiredLevel is the access level needed to change rows of table.
func RequiredLevel(table models.Table) models.AccessLevel {
	switch table {
	case models.TableVisit, models.TablePhoneCall:
		return models.AccessUser
	case models.TableAddress, models.TableHouse, models.TablePhoneNumber:
		return models.AccessModerator
	}
	return models.AccessAdmin
}

// MutationService sends changes to the server and folds the confirmed rows
// back into the local store.
type MutationService struct {
	client     client.Client
	store      *store.Store
	reconciler *reconcile.Reconciler
	identity   identity.Provider
	sync       Coordinator
	log        logging.Logger
	now        func() time.Time
}

func NewMutationService(c client.Client, s *store.Store, r *reconcile.Reconciler, p identity.Provider, sync Coordinator, log logging.Logger) *MutationService {
	return &MutationService{
		client:     c,
		store:      s,
		reconciler: r,
		identity:   p,
		sync:       sync,
		log:        log.With("module", "mutations"),
		now:        time.Now,
	}
}

// Apply checks that the active identity may perform m, sends it and folds
// the result into the store. When the fold finds the local hierarchy out of
// date a full resync is requested and the server result is still returned.
func (s *MutationService) Apply(ctx context.Context, m models.Mutation) (models.MutationResult, error) {
	if err := m.Validate(); err != nil {
		return models.MutationResult{}, err
	}
	if err := s.authorize(ctx, m); err != nil {
		return models.MutationResult{}, err
	}

	res, err := s.client.Mutate(ctx, m)
	if err != nil {
		return models.MutationResult{}, fmt.Errorf("%s %s: %w", m.Op, m.Table, err)
	}

	tables, err := s.reconciler.Fold(ctx, res)
	switch {
	case errors.Is(err, common.ErrNotFound):
		s.log.Warn(ctx, "confirmed change does not fit local data, resyncing", "table", res.Table, "id", res.ID, "error", err)
		s.sync.RequestResync(fmt.Sprintf("fold %s %s", res.Table, res.ID))
	case err != nil:
		return res, err
	default:
		s.log.Debug(ctx, "mutation applied", "op", res.Op, "table", res.Table, "id", res.ID, "changed", tables)
	}
	return res, nil
}

func (s *MutationService) authorize(ctx context.Context, m models.Mutation) error {
	id, err := s.identity.Identity(ctx)
	if err != nil {
		return err
	}
	var (
		res  *access.Resolver
		root models.Root
	)
	err = s.store.View(ctx, func(ctx context.Context, r store.Reader) error {
		var err error
		if res, err = access.Load(ctx, r, id, s.now()); err != nil {
			return err
		}
		root, err = rootOf(ctx, r, m)
		return err
	})
	if err != nil {
		return err
	}

	level := res.Level(root)
	if res.Admin(root.CongregationID, root.Table == models.TablePhoneTerritory) {
		level = models.AccessAdmin
	}
	if !level.AtLeast(RequiredLevel(m.Table)) {
		return fmt.Errorf("%s %s %s needs %s, have %s: %w", m.Op, m.Table, m.ID, RequiredLevel(m.Table), level, common.ErrPermissionDenied)
	}
	return nil
}

// rootOf finds the hierarchy root governing m. Roots created by m itself
// are taken from the record.
func rootOf(ctx context.Context, r store.Reader, m models.Mutation) (models.Root, error) {
	if m.Op == models.OpDelete {
		return r.RootOf(ctx, m.Table, m.ID)
	}
	rec := m.Record
	switch m.Table {
	case models.TableCongregation:
		return models.Root{Table: m.Table, ID: rec.Key(), CongregationID: rec.Key()}, nil
	case models.TableTerritory, models.TablePhoneTerritory, models.TableToken:
		return models.Root{Table: m.Table, ID: rec.Key(), CongregationID: rec.ParentKey()}, nil
	}
	return r.RootOf(ctx, m.Table.Parent(), rec.ParentKey())
}
