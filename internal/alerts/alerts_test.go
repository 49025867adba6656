package alerts

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/northstaff/hragent/pkg/logging"
)

type fakeChats struct {
	all    []int64
	admins []int64
}

func (f *fakeChats) ListAlertChats(ctx context.Context, adminOnly bool) ([]int64, error) {
	if adminOnly {
		return f.admins, nil
	}
	return f.all, nil
}

type fakeSender struct {
	sent    map[int64]string
	failFor int64
}

func (f *fakeSender) SendMessage(ctx context.Context, chatID int64, threadID int64, text string, markdown bool) error {
	if chatID == f.failFor {
		return errors.New("blocked by user")
	}
	if f.sent == nil {
		f.sent = make(map[int64]string)
	}
	f.sent[chatID] = text
	return nil
}

func TestBroadcastReachesAllChats(t *testing.T) {
	sender := &fakeSender{failFor: 2}
	svc := New(&fakeChats{all: []int64{1, 2, 3}, admins: []int64{1}}, sender, logging.New("error"))

	svc.Broadcast(context.Background(), "баланс низкий")
	assert.Equal(t, "баланс низкий", sender.sent[1])
	assert.Equal(t, "баланс низкий", sender.sent[3])
	assert.NotContains(t, sender.sent, int64(2))
}

func TestAdminAlertOnlyAdmins(t *testing.T) {
	sender := &fakeSender{}
	svc := New(&fakeChats{all: []int64{1, 2}, admins: []int64{1}}, sender, logging.New("error"))

	svc.AdminAlert(context.Background(), "токен отозван")
	assert.Len(t, sender.sent, 1)
	assert.Equal(t, "токен отозван", sender.sent[1])
}

func TestLowBalanceText(t *testing.T) {
	text := LowBalance(123.456, 500)
	assert.Contains(t, text, "500.00")
	assert.Contains(t, text, "123.46")
}
