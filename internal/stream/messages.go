package stream

// Outbound message types on the sentiment stream.
const (
	TypeConnectionEstablished = "connection_established"
	TypeSentimentHistory      = "sentiment_history"
	TypeSentimentUpdate       = "sentiment_update"
	TypePong                  = "pong"
	TypeStreamingStopped      = "streaming_stopped"
	TypeError                 = "error"
)

// Inbound client commands.
const (
	CommandPing          = "ping"
	CommandGetHistory    = "get_history"
	CommandStopStreaming = "stop_streaming"
)

// Envelope is the JSON wire shape for every outbound message: a type tag
// plus optional payload fields.
type Envelope struct {
	Type    string `json:"type"`
	CallID  string `json:"call_id,omitempty"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Command is an inbound client message.
type Command struct {
	Type string `json:"type"`
}

func ConnectionEstablishedMessage(callID string) Envelope {
	return Envelope{
		Type:    TypeConnectionEstablished,
		CallID:  callID,
		Message: "Connected to real-time sentiment stream",
	}
}

func HistoryMessage(samples []Sample) Envelope {
	return Envelope{Type: TypeSentimentHistory, Data: samples}
}

func UpdateMessage(s Sample) Envelope {
	return Envelope{Type: TypeSentimentUpdate, Data: s}
}

func PongMessage() Envelope {
	return Envelope{Type: TypePong}
}

func StoppedMessage() Envelope {
	return Envelope{Type: TypeStreamingStopped, Message: "Sentiment streaming stopped"}
}

func ErrorMessage(msg string) Envelope {
	return Envelope{Type: TypeError, Message: msg}
}
