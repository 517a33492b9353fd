// Package graph implements a Transport that sends messages via the
// Microsoft Graph sendMail API.
package graph

import (
	"sort"
	"strings"

	"github.com/wujiyu305/worker-mailer/internal/email"
	"github.com/wujiyu305/worker-mailer/internal/encoding"
)

type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject                string           `json:"subject"`
	Body                   messageBody      `json:"body"`
	From                   *recipient       `json:"from,omitempty"`
	ToRecipients           []recipient      `json:"toRecipients"`
	CcRecipients           []recipient      `json:"ccRecipients,omitempty"`
	BccRecipients          []recipient      `json:"bccRecipients,omitempty"`
	ReplyTo                []recipient      `json:"replyTo,omitempty"`
	InternetMessageID      string           `json:"internetMessageId,omitempty"`
	InternetMessageHeaders []messageHeader  `json:"internetMessageHeaders,omitempty"`
	Attachments            []fileAttachment `json:"attachments,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

type messageHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type fileAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

type graphErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func toRecipients(list email.AddressList) []recipient {
	if len(list) == 0 {
		return nil
	}

	out := make([]recipient, 0, len(list))
	for _, a := range list {
		out = append(out, recipient{EmailAddress: emailAddress{Name: a.Name, Address: a.Email}})
	}

	return out
}

// buildSendMailRequest maps a message onto a sendMail request body. Graph
// only accepts custom internet headers prefixed with "X-".
func buildSendMailRequest(msg *email.Message, saveToSent bool) *sendMailRequest {
	body := messageBody{ContentType: "text", Content: msg.Text()}
	if msg.HTML() != "" {
		body = messageBody{ContentType: "html", Content: msg.HTML()}
	}

	m := sendMailMessage{
		Subject:           msg.Subject(),
		Body:              body,
		ToRecipients:      toRecipients(msg.To()),
		CcRecipients:      toRecipients(msg.CC()),
		BccRecipients:     toRecipients(msg.BCC()),
		InternetMessageID: msg.MessageID(),
	}

	if from := msg.From(); !from.IsZero() {
		m.From = &recipient{EmailAddress: emailAddress{Name: from.Name, Address: from.Email}}
	}
	if reply := msg.Reply(); reply != nil {
		m.ReplyTo = toRecipients(email.AddressList{*reply})
	}

	for name, value := range msg.CustomHeaders() {
		if isInternetHeader(name) {
			m.InternetMessageHeaders = append(m.InternetMessageHeaders, messageHeader{Name: name, Value: value})
		}
	}

	sort.Slice(m.InternetMessageHeaders, func(i, j int) bool {
		return m.InternetMessageHeaders[i].Name < m.InternetMessageHeaders[j].Name
	})

	for _, att := range msg.Attachments() {
		contentType := att.MIMEType
		if contentType == "" {
			contentType = encoding.MIMEType(att.Filename)
		}
		m.Attachments = append(m.Attachments, fileAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         att.Filename,
			ContentType:  contentType,
			ContentBytes: att.Content,
		})
	}

	return &sendMailRequest{Message: m, SaveToSentItems: saveToSent}
}

func isInternetHeader(name string) bool {
	return strings.HasPrefix(strings.ToLower(name), "x-")
}

// droppedHeaders returns the sorted custom header names that sendMail cannot
// carry.
func droppedHeaders(msg *email.Message) []string {
	var dropped []string
	for name := range msg.CustomHeaders() {
		if !isInternetHeader(name) {
			dropped = append(dropped, name)
		}
	}
	sort.Strings(dropped)

	return dropped
}
