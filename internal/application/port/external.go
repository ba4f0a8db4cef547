package port

import "context"

// Directory answers organisational questions. Ids are opaque to the engine.
type Directory interface {
	RoleMembers(ctx context.Context, roleID string) ([]string, error)
	DepartmentManager(ctx context.Context, departmentID string) (string, error)
	ReportingManager(ctx context.Context, actorID string) (string, error)
	DepartmentOf(ctx context.Context, actorID string) (string, error)
}

// Message is a channel-neutral notification
type Message struct {
	Recipient string
	Subject   string
	Body      string
}

// MessageSender delivers notifications over one channel (Lark, email)
type MessageSender interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}
