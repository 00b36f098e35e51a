// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat is the node-side edge of the interactive chat-mode line
// editor: a sink that the dispatcher delivers UTF-8 text and
// echo-response payloads to for display, and a producer-side frame
// source the radio-tx queue draws from when the operator sends a line.
// The line editor itself lives in the host console, not here.
package chat

import (
	"log/slog"
	"sync"

	"github.com/adrcs/ip400/internal/frame"
)

// Sink receives inbound text for display. The interactive line editor
// that renders it is an external collaborator; this package only
// specifies the interface it consumes.
type Sink interface {
	Deliver(from frame.Address, text string)
}

// LogSink is a Sink that writes received chat text to a structured
// logger, standing in for the VT100 console's message pane.
type LogSink struct {
	Log *slog.Logger
}

// Deliver logs the received text at info level.
func (s LogSink) Deliver(from frame.Address, text string) {
	s.Log.Info("chat message received", slog.Uint64("source_call", uint64(from.Call)), slog.String("text", text))
}

// RecentSink retains the last N delivered messages in memory, the way a
// diagnostic "show recent chat" command would read them back.
type RecentSink struct {
	Capacity int

	mu       sync.Mutex
	messages []Message
}

// Message is one delivered chat line.
type Message struct {
	From frame.Address
	Text string
}

// Deliver appends text, evicting the oldest message once Capacity is exceeded.
func (s *RecentSink) Deliver(from frame.Address, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = append(s.messages, Message{From: from, Text: text})
	if s.Capacity > 0 && len(s.messages) > s.Capacity {
		s.messages = s.messages[len(s.messages)-s.Capacity:]
	}
}

// Recent returns a snapshot of the retained messages, oldest first.
func (s *RecentSink) Recent() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Source supplies frames to transmit from operator-entered chat text. The
// line editor that produces the text is external; Source only frames it
// and holds no queue, so the caller enqueues the returned frame.
type Source struct {
	Local        frame.Address
	NextSequence func() uint32
}

// Frame builds a UTF-8 text frame addressed to dest carrying text, padding
// the payload up to the wire format's minimum.
func (s Source) Frame(dest frame.Address, text string, repeat bool) *frame.Frame {
	payload := []byte(text)
	if len(payload) < frame.MinPayloadSize {
		padded := make([]byte, frame.MinPayloadSize)
		copy(padded, payload)
		payload = padded
	}
	seq := uint32(0)
	if s.NextSequence != nil {
		seq = s.NextSequence()
	}
	return &frame.Frame{
		Source:   s.Local,
		Dest:     dest,
		Flags:    frame.Flags(0).WithCoding(frame.CodingUTF8Text).WithRepeat(repeat),
		Sequence: seq,
		Payload:  payload,
	}
}
