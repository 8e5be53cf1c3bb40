package notify

import (
	"testing"

	"github.com/doctools/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMultiFansOutInOrder(t *testing.T) {
	var got []string
	a := SinkFunc(func(n models.Notification) { got = append(got, "a:"+n.Title) })
	b := SinkFunc(func(n models.Notification) { got = append(got, "b:"+n.Title) })

	Multi(a, nil, b).Notify(models.Notification{Title: "Files added"})

	assert.Equal(t, []string{"a:Files added", "b:Files added"}, got)
}

func TestLogSinkDoesNotPanic(t *testing.T) {
	for _, sev := range []models.Severity{models.SeverityInfo, models.SeveritySuccess, models.SeverityWarning, models.SeverityError} {
		LogSink{}.Notify(models.Notification{SessionID: "0123456789", Title: "t", Severity: sev})
	}
	Discard.Notify(models.Notification{})
}

func TestHubDeliversToSessionSubscribers(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe("s1")
	ch2, cancel2 := h.Subscribe("s2")
	defer cancel2()

	h.Notify(models.Notification{SessionID: "s1", Title: "one"})

	select {
	case n := <-ch1:
		assert.Equal(t, "one", n.Title)
	default:
		t.Fatal("expected notification for s1")
	}
	select {
	case n := <-ch2:
		t.Fatalf("unexpected notification for s2: %v", n)
	default:
	}

	assert.Equal(t, 1, h.Subscribers("s1"))
	cancel1()
	cancel1()
	assert.Equal(t, 0, h.Subscribers("s1"))

	_, open := <-ch1
	assert.False(t, open)
}

func TestHubDropsWhenSubscriberIsFull(t *testing.T) {
	h := NewHub()
	ch, cancel := h.Subscribe("s")
	defer cancel()

	for i := 0; i < SubscriberBuffer+10; i++ {
		h.Notify(models.Notification{SessionID: "s"})
	}
	require.Len(t, ch, SubscriberBuffer)
}

func TestHubDropEndsSessionSubscriptions(t *testing.T) {
	h := NewHub()
	ch1, cancel1 := h.Subscribe("closed")
	ch2, cancel2 := h.Subscribe("closed")
	other, cancelOther := h.Subscribe("open")
	defer cancelOther()

	h.Drop("closed")

	_, open := <-ch1
	assert.False(t, open)
	_, open = <-ch2
	assert.False(t, open)
	assert.Equal(t, 0, h.Subscribers("closed"))
	assert.Equal(t, 1, h.Subscribers("open"))

	// Cancelling after a drop is a no-op.
	cancel1()
	cancel2()

	h.Notify(models.Notification{SessionID: "open", Title: "still here"})
	n := <-other
	assert.Equal(t, "still here", n.Title)
}
