package lark

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/store-approval/internal/application/port"
)

func TestPostContent(t *testing.T) {
	content, err := postContent("Approval required: Store #7", "Instance: AP-1\n\nTitle: \"Store\" #7\n")
	require.NoError(t, err)

	var decoded map[string]struct {
		Title   string `json:"title"`
		Content [][]struct {
			Tag  string `json:"tag"`
			Text string `json:"text"`
		} `json:"content"`
	}
	require.NoError(t, json.Unmarshal([]byte(content), &decoded))

	post := decoded["zh_cn"]
	assert.Equal(t, "Approval required: Store #7", post.Title)
	require.Len(t, post.Content, 2)
	assert.Equal(t, "Instance: AP-1", post.Content[0][0].Text)
	assert.Equal(t, `Title: "Store" #7`, post.Content[1][0].Text)
	assert.Equal(t, "text", post.Content[1][0].Tag)
}

func TestMessenger_RejectsEmptyRecipient(t *testing.T) {
	m := NewMessenger(NewSDKClient(Config{AppID: "cli_test", AppSecret: "secret"}, zap.NewNop()), zap.NewNop())

	err := m.Send(context.Background(), port.Message{Subject: "hi"})

	assert.Error(t, err)
	assert.Equal(t, "lark", m.Name())
}

func TestNewSDKClient_DefaultsIDType(t *testing.T) {
	c := NewSDKClient(Config{AppID: "cli_test", AppSecret: "secret"}, zap.NewNop())
	assert.Equal(t, "open_id", c.IDType())
	assert.NotNil(t, c.GetClient())

	c = NewSDKClient(Config{AppID: "cli_test", AppSecret: "secret", IDType: "user_id"}, zap.NewNop())
	assert.Equal(t, "user_id", c.IDType())
}
