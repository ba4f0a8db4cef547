package lark

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	larkim "github.com/larksuite/oapi-sdk-go/v3/service/im/v1"
	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/port"
)

// Messenger delivers notifications as Lark post messages
type Messenger struct {
	client *SDKClient
	logger *zap.Logger
}

// NewMessenger creates a new Lark message sender
func NewMessenger(client *SDKClient, logger *zap.Logger) *Messenger {
	return &Messenger{client: client, logger: logger}
}

func (m *Messenger) Name() string {
	return "lark"
}

// Send posts msg to the recipient's chat with the bot
func (m *Messenger) Send(ctx context.Context, msg port.Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	content, err := postContent(msg.Subject, msg.Body)
	if err != nil {
		return err
	}

	req := larkim.NewCreateMessageReqBuilder().
		ReceiveIdType(m.client.IDType()).
		Body(larkim.NewCreateMessageReqBodyBuilder().
			ReceiveId(msg.Recipient).
			MsgType("post").
			Content(content).
			Build()).
		Build()

	resp, err := m.client.GetClient().Im.Message.Create(ctx, req)
	if err != nil {
		m.logger.Error("Failed to send message", zap.String("receive_id", msg.Recipient), zap.Error(err))
		return fmt.Errorf("failed to send message: %w", err)
	}
	if !resp.Success() {
		m.logger.Error("API returned failure",
			zap.String("receive_id", msg.Recipient),
			zap.Int("code", resp.Code),
			zap.String("msg", resp.Msg))
		return fmt.Errorf("API error: code=%d, msg=%s", resp.Code, resp.Msg)
	}
	return nil
}

// postContent renders a one-paragraph post. Lines of body become separate rows.
func postContent(title, body string) (string, error) {
	type element struct {
		Tag  string `json:"tag"`
		Text string `json:"text"`
	}
	type post struct {
		Title   string      `json:"title"`
		Content [][]element `json:"content"`
	}
	var rows [][]element
	for _, line := range strings.FieldsFunc(body, func(r rune) bool { return r == '\n' }) {
		rows = append(rows, []element{{Tag: "text", Text: line}})
	}
	b, err := json.Marshal(map[string]post{"zh_cn": {Title: title, Content: rows}})
	if err != nil {
		return "", fmt.Errorf("failed to encode message: %w", err)
	}
	return string(b), nil
}

var _ port.MessageSender = (*Messenger)(nil)
