package door

import "strings"

// Command is an outbound device line, sent newline-terminated.
type Command string

const (
	CommandNone   Command = ""
	CommandOpen   Command = "OPEN"
	CommandClose  Command = "CLOSE"
	CommandStatus Command = "STATUS?"
)

// Message is the meaning of an inbound device line.
type Message int

const (
	MessageIgnored Message = iota
	MessageDoneOpen
	MessageDoneClose
	MessageAutoClose
	MessageSensorClosed
	MessageSensorOpened
	MessageReady
	MessageLocked
	MessageUnlocked
)

var messages = []struct {
	prefix string
	msg    Message
}{
	{"DONE: OPEN", MessageDoneOpen},
	{"DONE: CLOSE", MessageDoneClose},
	{"AUTO: CLOSE", MessageAutoClose},
	{"SENSOR: CLOSED", MessageSensorClosed},
	{"SENSOR: OPENED", MessageSensorOpened},
	{"READY", MessageReady},
	{"LOCKED", MessageLocked},
	{"UNLOCKED", MessageUnlocked},
}

// ParseLine trims line and matches it case-sensitively by prefix.
func ParseLine(line string) Message {
	line = strings.TrimSpace(line)
	if line == "" {
		return MessageIgnored
	}
	for _, m := range messages {
		if strings.HasPrefix(line, m.prefix) {
			return m.msg
		}
	}
	return MessageIgnored
}

func (m Message) String() string {
	for _, e := range messages {
		if e.msg == m {
			return e.prefix
		}
	}
	return "ignored"
}
