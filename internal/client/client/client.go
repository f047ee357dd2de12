package client

import (
	"context"

	"github.com/fieldkeeper/fieldsync/internal/client/models"
)

type Client interface {
	// FetchAllData returns every main-congregation row for congregationID.
	FetchAllData(ctx context.Context, congregationID string) (models.Snapshot, error)
	// FetchAllPhoneData returns every phone-book row for congregationID.
	FetchAllPhoneData(ctx context.Context, congregationID string) (models.PhoneSnapshot, error)
	Mutate(ctx context.Context, m models.Mutation) (models.MutationResult, error)
	Ping(ctx context.Context) error
	Close() error
}
