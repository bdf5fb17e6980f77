package travel

import "strings"

// EmailRequest carries the parameters of a single email send.
type EmailRequest struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
}

// Normalize trims surrounding whitespace from every field.
func (r EmailRequest) Normalize() EmailRequest {
	return EmailRequest{
		From:    strings.TrimSpace(r.From),
		To:      strings.TrimSpace(r.To),
		Subject: strings.TrimSpace(r.Subject),
	}
}

// Complete reports whether sender, receiver and subject are all present.
func (r EmailRequest) Complete() bool {
	return r.From != "" && r.To != "" && r.Subject != ""
}
