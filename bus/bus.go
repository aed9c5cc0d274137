// Package bus carries payload-free reload signals between surfaces. A
// signal names a topic and nothing else; receivers reload whatever state
// the topic covers. Delivery is at-least-once, so handlers must tolerate
// duplicates, and each channel (in-process, websocket) is independent.
package bus

// Topics understood by every surface.
const (
	// TopicStoreChanged tells surfaces to reload the transcript list.
	TopicStoreChanged = "transcripts_updated"
	// TopicOpenTranscript tells the viewer surface to show a transcript.
	TopicOpenTranscript = "open_transcript"
	// TopicToggleOverlay shows or hides the floating overlay.
	TopicToggleOverlay = "toggle_overlay"
)

// Bus publishes and subscribes to topics. Publish never blocks on slow
// receivers and never fails; a lost signal on one channel is covered by
// the others.
type Bus interface {
	Publish(topic string)
	Subscribe(topic string, fn func()) (cancel func())
}

// Fanout publishes to several independent channels at once.
type Fanout []Bus

func (f Fanout) Publish(topic string) {
	for _, b := range f {
		b.Publish(topic)
	}
}

func (f Fanout) Subscribe(topic string, fn func()) func() {
	cancels := make([]func(), 0, len(f))
	for _, b := range f {
		cancels = append(cancels, b.Subscribe(topic, fn))
	}
	return func() {
		for _, c := range cancels {
			c()
		}
	}
}
