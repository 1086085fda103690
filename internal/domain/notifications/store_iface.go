package notifications

import "context"

type StoreAPI interface {
	CreateNotification(ctx context.Context, n Notification) (string, error)
	ListNotifications(ctx context.Context, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context) (int, error)
	MarkRead(ctx context.Context, id, by string) error
}
