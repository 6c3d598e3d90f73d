package events

import (
	"testing"
	"time"

	natstest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap/zaptest"

	"github.com/zhouzirui/moment-map/backend/internal/config"
)

func TestSubject(t *testing.T) {
	if got := Subject("momentmap", "newBubble"); got != "momentmap.newBubble" {
		t.Fatalf("unexpected subject: %s", got)
	}
	if got := Subject("", "userLeft"); got != "userLeft" {
		t.Fatalf("unexpected subject without prefix: %s", got)
	}
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = Nop{}
	if err := p.Publish("onlineCount", []byte(`{}`)); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func runServer(t *testing.T) string {
	t.Helper()
	opts := natstest.DefaultTestOptions
	opts.Port = -1
	s := natstest.RunServer(&opts)
	t.Cleanup(s.Shutdown)
	return s.ClientURL()
}

func TestNATSPublisherDeliversOnPrefixedSubject(t *testing.T) {
	url := runServer(t)

	sub, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect subscriber: %v", err)
	}
	defer sub.Close()
	inbox, err := sub.SubscribeSync("momentmap.>")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush subscriber: %v", err)
	}

	pub, err := Connect(config.EventsConfig{NATSURL: url, SubjectPrefix: "momentmap"}, zaptest.NewLogger(t))
	if err != nil {
		t.Fatalf("connect publisher: %v", err)
	}

	payload := []byte(`{"type":"bubbleExpired","bubbleId":"b1"}`)
	if err := pub.Publish("bubbleExpired", payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := pub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	msg, err := inbox.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("expected a message: %v", err)
	}
	if msg.Subject != "momentmap.bubbleExpired" {
		t.Fatalf("unexpected subject: %s", msg.Subject)
	}
	if string(msg.Data) != string(payload) {
		t.Fatalf("unexpected data: %s", msg.Data)
	}
}

func TestConnectFailsWithoutServer(t *testing.T) {
	_, err := Connect(config.EventsConfig{NATSURL: "nats://127.0.0.1:1"}, zaptest.NewLogger(t))
	if err == nil {
		t.Fatal("expected connect error")
	}
}
