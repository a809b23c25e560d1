package lpn

import "context"

// MetaRevision pairs the meta document with its version for CAS.
type MetaRevision struct {
	Meta    MetaDocument
	Version string
}

// MetaStore abstracts the meta document with CAS update semantics.
type MetaStore interface {
	// GetMeta returns ErrMetaNotFound if no upload has completed yet.
	GetMeta(ctx context.Context) (*MetaRevision, error)

	// PutMetaIfMatch publishes meta with CAS protection.
	// CreateOnlyVersion means "create if absent"; empty means unconditional.
	PutMetaIfMatch(ctx context.Context, meta MetaDocument, expectedVersion string) (string, error)
}
