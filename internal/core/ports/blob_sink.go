package ports

import "context"

// BlobSink persists uploaded photos and hands back the URL they are served
// from. Store must fail with an error wrapping domain.ErrStorage when the
// write does not complete.
type BlobSink interface {
	Store(ctx context.Context, file Upload) (string, error)
	// Remove deletes a previously stored object identified by the URL Store
	// returned. Unknown URLs are not an error.
	Remove(ctx context.Context, url string) error
	// Backend names the implementation for logs and metrics.
	Backend() string
}

// PhotoCleanupJob asks for a superseded photo to be removed from the sink.
type PhotoCleanupJob struct {
	OwnerID string
	URL     string
	Reason  string
}

// PhotoCleaner accepts cleanup jobs for asynchronous processing.
type PhotoCleaner interface {
	Enqueue(job PhotoCleanupJob)
}

// IdempotencyStore claims client-supplied Idempotency-Keys so that at most
// one create runs per owner and key.
type IdempotencyStore interface {
	// Reserve claims key for a new create. When the key is already held,
	// reserved is false and contactID names the contact recorded for it, or
	// is empty while the first request is still in flight.
	Reserve(ctx context.Context, ownerID, key string) (contactID string, reserved bool, err error)
	// Remember records the contact a reserved key produced.
	Remember(ctx context.Context, ownerID, key, contactID string) error
	// Release drops a reservation whose create did not complete.
	Release(ctx context.Context, ownerID, key string) error
}
