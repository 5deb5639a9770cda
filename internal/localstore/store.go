package localstore

import (
	"github.com/raymonnguyen/baubiz-sub000/internal/domain"
)

// Store persists per-user cart snapshots and the sync-failed flag on the
// local device. It is a best-effort layer: the engine logs Save failures and
// keeps going, and Load treats a corrupt snapshot as an empty one.
//
// The store is shared between processes on the same machine. There is no
// cross-process locking; concurrent writers race and the last writer wins.
type Store interface {
	// SaveCart replaces the snapshot for userID.
	SaveCart(userID string, lines []domain.CartLine) error

	// LoadCart returns the last snapshot for userID, or an empty slice if
	// none exists or the stored payload cannot be decoded.
	LoadCart(userID string) ([]domain.CartLine, error)

	// DeleteCart removes the snapshot for userID.
	DeleteCart(userID string) error

	// SetSyncFailed records whether the last sync for userID failed. The flag
	// survives process restarts and is visible to other processes.
	SetSyncFailed(userID string, failed bool) error

	// SyncFailed reports the persisted sync-failed flag for userID. Read
	// errors are treated as "not failed".
	SyncFailed(userID string) bool

	Close() error
}
