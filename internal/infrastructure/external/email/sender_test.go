package email

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/garyjia/store-approval/internal/application/port"
)

type mockDialer struct {
	sendFunc func(m ...*gomail.Message) error
	sent     []*gomail.Message
}

func (d *mockDialer) DialAndSend(m ...*gomail.Message) error {
	d.sent = append(d.sent, m...)
	if d.sendFunc != nil {
		return d.sendFunc(m...)
	}
	return nil
}

func newTestSender(d dialer) *Sender {
	s := NewSender(Config{From: "approvals@stores.example", FromName: "Approvals", Domain: "stores.example"}, zap.NewNop())
	s.dialer = d
	return s
}

func TestSender_Address(t *testing.T) {
	s := newTestSender(&mockDialer{})

	addr, err := s.Address("alice")
	require.NoError(t, err)
	assert.Equal(t, "alice@stores.example", addr)

	addr, err = s.Address("bob@partner.example")
	require.NoError(t, err)
	assert.Equal(t, "bob@partner.example", addr)

	s.cfg.Domain = ""
	_, err = s.Address("alice")
	assert.Error(t, err)
}

func TestSender_Send(t *testing.T) {
	d := &mockDialer{}
	s := newTestSender(d)

	err := s.Send(context.Background(), port.Message{Recipient: "alice", Subject: "Approved: Store #7", Body: "Instance: AP-1"})

	require.NoError(t, err)
	require.Len(t, d.sent, 1)
	assert.Equal(t, []string{"alice@stores.example"}, d.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Approved: Store #7"}, d.sent[0].GetHeader("Subject"))
	assert.Equal(t, "email", s.Name())
}

func TestSender_SendFailure(t *testing.T) {
	d := &mockDialer{sendFunc: func(...*gomail.Message) error { return errors.New("535 auth failed") }}
	s := newTestSender(d)

	err := s.Send(context.Background(), port.Message{Recipient: "alice", Subject: "x"})

	assert.ErrorContains(t, err, "535 auth failed")
}

func TestSender_SendCancelled(t *testing.T) {
	d := &mockDialer{}
	s := newTestSender(d)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, s.Send(ctx, port.Message{Recipient: "alice"}), context.Canceled)
	assert.Empty(t, d.sent)
}
