package core

import "context"

//go:generate mockgen -source=blob_iface.go -destination=mocks/mock_blob.go -package=mocks

// BlobStore turns a stored image reference into a URL a browser can fetch.
type BlobStore interface {
	Resolve(ctx context.Context, ref string) (string, error)
}
