package twilio

import (
	"bytes"
	"encoding/xml"

	log "github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go/twiml"
)

// MessageResponse renders text as a TwiML messaging reply:
// <Response><Message>text</Message></Response>.
func MessageResponse(text string) string {
	body, err := twiml.Messages([]twiml.Element{&twiml.MessagingMessage{Body: text}})
	if err != nil {
		log.Errorf("twiml: rendering reply: %v", err)
		return plainResponse(text)
	}
	return body
}

func plainResponse(text string) string {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<Response><Message>")
	xml.EscapeText(&buf, []byte(text))
	buf.WriteString("</Message></Response>")
	return buf.String()
}
