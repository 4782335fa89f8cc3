package storage

import (
	"context"
	"errors"

	"stakeScope/internal/model"
)

// Storage defines a sink for position snapshots.
type Storage interface {
	PutSnapshotBatch(ctx context.Context, snapshots []model.PositionSnapshot) error
}

// Multi fans a batch out to every sink and joins their errors.
type Multi []Storage

func (m Multi) PutSnapshotBatch(ctx context.Context, snapshots []model.PositionSnapshot) error {
	var errs []error
	for _, sink := range m {
		if err := sink.PutSnapshotBatch(ctx, snapshots); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
