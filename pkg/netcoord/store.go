package netcoord

import "context"

// StoreClient is the narrow command surface the shared-store coordinator
// needs. Implementations must not leak driver types; the same coordinator
// logic can drive any key-value store with a scored index.
type StoreClient interface {
	// ConnectAndValidate succeeds only when the store answers a health
	// probe.
	ConnectAndValidate(ctx context.Context) error

	// PublishSnapshot sets the keyed snapshot with a TTL and upserts
	// serverID into the sorted index scored by updatedAtMillis.
	PublishSnapshot(ctx context.Context, serverKey, indexKey string, ttlSeconds, updatedAtMillis int64, serverID, snapshotJSON string) error

	// EvictStaleServers removes index entries scored at or below cutoff,
	// returning the number removed.
	EvictStaleServers(ctx context.Context, indexKey string, cutoffMillis int64) (int64, error)

	// GetActiveServerIDs lists index entries scored at or above cutoff.
	GetActiveServerIDs(ctx context.Context, indexKey string, cutoffMillis int64) ([]string, error)

	// GetSnapshots multi-gets the raw snapshot documents; missing keys
	// yield empty strings at the matching positions.
	GetSnapshots(ctx context.Context, serverKeys []string) ([]string, error)

	Close() error
}
