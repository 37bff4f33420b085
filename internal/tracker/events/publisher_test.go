package events

import (
	"sync"
	"testing"
	"time"

	"github.com/sebas/calltrack/internal/tracker/call"
	"github.com/sebas/calltrack/internal/tracker/cause"
)

func TestEventConstructors(t *testing.T) {
	e := PhoneStateChanged(PhoneRinging)
	if e.Type != TypePhoneState || e.PhoneState != PhoneRinging {
		t.Errorf("PhoneStateChanged() = %+v", e)
	}
	if e.ID == "" || e.Time.IsZero() {
		t.Errorf("event missing identity or timestamp: %+v", e)
	}

	e = PreciseStateChanged(call.RoleForeground, call.StateHolding)
	if e.SlotRole != call.RoleForeground || e.SlotState != call.StateHolding {
		t.Errorf("PreciseStateChanged() = %+v", e)
	}

	e = Disconnected("conn-1", cause.IncomingMissed)
	if e.ConnectionID != "conn-1" || e.DisconnectCause != cause.IncomingMissed {
		t.Errorf("Disconnected() = %+v", e)
	}
}

func TestChannelPublisher(t *testing.T) {
	pub := NewChannelPublisher(4)
	defer pub.Close()

	for i := 0; i < 3; i++ {
		pub.Publish(PhoneStateChanged(PhoneOffhook))
	}

	for i := 0; i < 3; i++ {
		select {
		case e := <-pub.Events():
			if e.Type != TypePhoneState {
				t.Errorf("got type %v, want phone_state", e.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
}

func TestChannelPublisherDropsOnFull(t *testing.T) {
	pub := NewChannelPublisher(1)
	defer pub.Close()

	pub.Publish(Ringback(true))
	pub.Publish(Ringback(false))

	if got := pub.DroppedCount(); got != 1 {
		t.Errorf("DroppedCount() = %d, want 1", got)
	}
}

func TestChannelPublisherPublishAfterClose(t *testing.T) {
	pub := NewChannelPublisher(1)
	pub.Close()

	// Must not panic on a closed channel.
	pub.Publish(Ringback(true))
}

func TestChannelPublisherConcurrentClose(t *testing.T) {
	pub := NewChannelPublisher(1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				pub.Publish(Ringback(true))
			}
		}()
	}
	pub.Close()
	wg.Wait()
}

func TestMultiPublisher(t *testing.T) {
	a := NewChannelPublisher(4)
	b := NewChannelPublisher(4)
	multi := NewMultiPublisher(a, b)
	defer multi.Close()

	multi.Publish(SuppServiceFailed("hold"))

	for _, pub := range []*ChannelPublisher{a, b} {
		select {
		case e := <-pub.Events():
			if e.Type != TypeSuppServiceFailed {
				t.Errorf("got type %v, want supp_service_failed", e.Type)
			}
		case <-time.After(time.Second):
			t.Fatal("fanout did not deliver event")
		}
	}
}
