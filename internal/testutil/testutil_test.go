package testutil

import (
	"errors"
	"testing"

	"github.com/brianly1003/notepadtt/internal/domain"
	"github.com/brianly1003/notepadtt/internal/domain/events"
)

func TestMockSubscriber_Send(t *testing.T) {
	sub := NewMockSubscriber("conn-1")

	if err := sub.Send(events.NewTabContentEvent(domain.TabContent{FileID: "a"})); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if sub.EventCount() != 1 {
		t.Errorf("EventCount() = %d, want 1", sub.EventCount())
	}

	sendErr := errors.New("boom")
	sub.SetSendError(sendErr)
	if err := sub.Send(events.NewTabContentEvent(domain.TabContent{FileID: "b"})); !errors.Is(err, sendErr) {
		t.Errorf("Send() error = %v, want %v", err, sendErr)
	}
	if sub.EventCount() != 1 {
		t.Error("failed send should not be recorded")
	}

	sub.ClearEvents()
	if sub.EventCount() != 0 {
		t.Error("ClearEvents() left events behind")
	}
}

func TestMockSubscriber_Close(t *testing.T) {
	sub := NewMockSubscriber("conn-1")

	_ = sub.Close()
	_ = sub.Close()

	if !sub.IsClosed() {
		t.Error("IsClosed() = false after Close()")
	}
	select {
	case <-sub.Done():
	default:
		t.Error("Done() channel should be closed")
	}
}

func TestMockEventHub_Records(t *testing.T) {
	h := NewMockEventHub()

	h.Publish(events.NewTabContentEvent(domain.TabContent{FileID: "a"}))
	h.PublishTo([]string{"a", "b"}, events.NewTabContentEvent(domain.TabContent{FileID: "b"}))
	h.PublishExcept("a", events.NewTabContentEvent(domain.TabContent{FileID: "c"}))

	published := h.PublishedEvents()
	if len(published) != 3 {
		t.Fatalf("len(PublishedEvents()) = %d, want 3", len(published))
	}
	if published[0].Targets != nil || published[0].Except != "" {
		t.Errorf("Publish recorded %+v", published[0])
	}
	if len(published[1].Targets) != 2 {
		t.Errorf("PublishTo recorded %+v", published[1])
	}
	if published[2].Except != "a" {
		t.Errorf("PublishExcept recorded %+v", published[2])
	}
	if got := len(h.PublishedOfType(events.EventTypeTabContent)); got != 3 {
		t.Errorf("PublishedOfType() = %d, want 3", got)
	}

	h.Reset()
	if len(h.PublishedEvents()) != 0 {
		t.Error("Reset() left events behind")
	}
}

func TestMockEventHub_Subscribers(t *testing.T) {
	h := NewMockEventHub()
	_ = h.Start()

	h.Subscribe(NewMockSubscriber("a"))
	h.Subscribe(NewMockSubscriber("b"))
	h.Unsubscribe("a")

	if h.SubscriberCount() != 1 {
		t.Errorf("SubscriberCount() = %d, want 1", h.SubscriberCount())
	}
	if !h.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}
	_ = h.Stop()
	if h.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
}
