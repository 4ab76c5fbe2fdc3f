package subscription

import "context"

type Repository interface {
	Upsert(ctx context.Context, device Device) error
	Get(ctx context.Context, deviceID string) (Device, bool, error)
	List(ctx context.Context) ([]Device, error)
	Delete(ctx context.Context, deviceID string) error
}
