// Package mediator implements the SessionMediator: the per-connection
// event loop that ties together a client's WebSocket, an LLM turn, and the
// voice-svc/video-svc WebSocket dials, so a live conversation stays a
// single state machine even though its inputs arrive from several
// goroutines concurrently.
package mediator

// event is the internal message shape fed into a Session's single-consumer
// loop. Exactly one of its fields is meaningful, selected by kind, mirroring
// the tagged-union style the client-facing wire protocol itself uses.
type event struct {
	kind       eventKind
	text       string
	voiceError string
	videoFrame []byte
}

type eventKind int

const (
	eventUserText eventKind = iota
	eventStopSpeaking
	eventVoiceReady
	eventVideoReady
	eventVoiceSpeechStart
	eventVoiceSpeechEnd
	eventVoiceError
	eventVideoFrame
	eventClientClosed
	eventVoiceClosed
)
