package types

import "context"

// Sender is the outbound surface the flow executor drives
type Sender interface {
	SendText(ctx context.Context, creds Credentials, msg TextMessage) (*SendResult, error)
	SendMedia(ctx context.Context, creds Credentials, msg MediaMessage) (*SendResult, error)
	SendOptions(ctx context.Context, creds Credentials, msg OptionsMessage) (*SendResult, error)
	SendList(ctx context.Context, creds Credentials, msg ListMessage) (*SendResult, error)
	SendFlow(ctx context.Context, creds Credentials, msg FlowMessage) (*SendResult, error)
	SendTemplate(ctx context.Context, creds Credentials, msg TemplateMessage) (*SendResult, error)
}
