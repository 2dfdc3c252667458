package models

import "strings"

// WebhookPayload accepts both the flat inbound shape
// {from, body, mediaUrl, messageType, wahaMessageId} and the WAHA event envelope
// {event, session, payload: {...}}.
type WebhookPayload struct {
	From          string `json:"from"`
	Body          string `json:"body"`
	MediaURL      string `json:"mediaUrl,omitempty"`
	MessageType   string `json:"messageType,omitempty"`
	WahaMessageID string `json:"wahaMessageId,omitempty"`

	Event   string       `json:"event,omitempty"`
	Session string       `json:"session,omitempty"`
	Payload *WahaMessage `json:"payload,omitempty"`
}

// WahaMessage is the payload of a WAHA "message" event.
type WahaMessage struct {
	ID        string     `json:"id"`
	Timestamp int64      `json:"timestamp"`
	From      string     `json:"from"`
	FromMe    bool       `json:"fromMe"`
	Body      string     `json:"body"`
	HasMedia  bool       `json:"hasMedia"`
	Media     *WahaMedia `json:"media,omitempty"`
	Type      string     `json:"type,omitempty"`
}

// WahaMedia describes an attachment WAHA already downloaded.
type WahaMedia struct {
	URL      string `json:"url"`
	MimeType string `json:"mimetype"`
	Filename string `json:"filename,omitempty"`
}

// InboundMessage is the normalized message the pipeline processes.
type InboundMessage struct {
	From        string
	Body        string
	MediaURL    string
	MessageType string
	ExternalID  string
}

// Normalize flattens the payload. ok is false for payloads that carry no client
// message: other event types, our own outbound echoes and group chats.
func (p WebhookPayload) Normalize() (msg InboundMessage, ok bool) {
	if p.Payload == nil {
		msg = InboundMessage{
			From:        p.From,
			Body:        p.Body,
			MediaURL:    p.MediaURL,
			MessageType: strings.ToLower(p.MessageType),
			ExternalID:  p.WahaMessageID,
		}
		return msg, msg.From != "" && !isGroupChat(msg.From)
	}

	if p.Event != "" && p.Event != "message" && p.Event != "message.any" {
		return InboundMessage{}, false
	}
	w := p.Payload
	if w.FromMe || w.From == "" || isGroupChat(w.From) {
		return InboundMessage{}, false
	}

	msg = InboundMessage{From: w.From, Body: w.Body, ExternalID: w.ID, MessageType: "text"}
	if w.Type == "location" {
		msg.MessageType = "location"
	}
	if w.HasMedia && w.Media != nil {
		msg.MediaURL = w.Media.URL
		msg.MessageType = mediaKind(w.Media.MimeType)
	}
	return msg, true
}

func isGroupChat(from string) bool {
	return strings.HasSuffix(from, "@g.us")
}

func mediaKind(mimeType string) string {
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return "image"
	case strings.HasPrefix(mimeType, "video/"):
		return "video"
	case strings.HasPrefix(mimeType, "audio/"):
		return "audio"
	default:
		return "document"
	}
}
