package wecom

import (
	"encoding/xml"
	"fmt"
)

// Message types and events the bot acts on. Everything else is
// acknowledged and dropped.
const (
	MsgTypeText  = "text"
	MsgTypeEvent = "event"
	EventClick   = "click"
)

// AckXML is the passive reply returned to every delivery before any
// processing happens. Real replies go out through the messaging API.
const AckXML = `<xml><MsgType><![CDATA[text]]></MsgType><Content><![CDATA[]]></Content></xml>`

// Envelope is a parsed callback message. For encrypted deliveries only
// Encrypt is populated on the first parse; the decrypted XML is parsed
// into a second Envelope.
type Envelope struct {
	ToUserName   string `xml:"ToUserName"`
	FromUserName string `xml:"FromUserName"`
	CreateTime   int64  `xml:"CreateTime"`
	MsgType      string `xml:"MsgType"`
	Content      string `xml:"Content"`
	MsgID        string `xml:"MsgId"`
	AgentID      string `xml:"AgentID"`
	Event        string `xml:"Event"`
	EventKey     string `xml:"EventKey"`
	Encrypt      string `xml:"Encrypt"`
}

// ParseEnvelope parses a callback XML body.
func ParseEnvelope(body []byte) (*Envelope, error) {
	var env Envelope
	if err := xml.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("parse callback xml: %w", err)
	}
	return &env, nil
}

// Actionable reports whether this message should reach the dispatcher.
func (e *Envelope) Actionable() bool {
	switch e.MsgType {
	case MsgTypeText:
		return e.Content != ""
	case MsgTypeEvent:
		return e.Event == EventClick
	default:
		return false
	}
}
