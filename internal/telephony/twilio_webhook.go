package telephony

import (
	"net/http"
	"strconv"
	"strings"
)

// Webhook form parsing. Twilio sends application/x-www-form-urlencoded
// by default.
//
// Keep it minimal and provider-adapter-only. Business logic (what to do
// with a speech result) is not made here.

// VoiceForm captures the subset of voice webhook fields we care about.
type VoiceForm struct {
	CallSid    string
	AccountSid string
	From       string
	To         string
	CallStatus CallStatus

	// SpeechResult is the final transcript of a Gather; Confidence is the
	// recognizer's score for it.
	SpeechResult string
	Confidence   float64

	// UnstableSpeechResult arrives on partial-result callbacks while the
	// callee is still talking.
	UnstableSpeechResult string

	Language  string
	Timestamp string
}

func ParseVoiceForm(r *http.Request) (VoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return VoiceForm{}, err
	}
	confidence, _ := strconv.ParseFloat(r.PostFormValue("Confidence"), 64)
	return VoiceForm{
		CallSid:              r.PostFormValue("CallSid"),
		AccountSid:           r.PostFormValue("AccountSid"),
		From:                 strings.TrimSpace(r.PostFormValue("From")),
		To:                   strings.TrimSpace(r.PostFormValue("To")),
		CallStatus:           CallStatus(r.PostFormValue("CallStatus")),
		SpeechResult:         strings.TrimSpace(r.PostFormValue("SpeechResult")),
		Confidence:           confidence,
		UnstableSpeechResult: strings.TrimSpace(r.PostFormValue("UnstableSpeechResult")),
		Language:             r.PostFormValue("Language"),
		Timestamp:            r.PostFormValue("Timestamp"),
	}, nil
}

// StatusForm captures a call status callback.
type StatusForm struct {
	CallSid         string
	CallStatus      CallStatus
	CallDuration    int
	SipResponseCode string
	ErrorCode       string
}

func ParseStatusForm(r *http.Request) (StatusForm, error) {
	if err := r.ParseForm(); err != nil {
		return StatusForm{}, err
	}
	duration, _ := strconv.Atoi(r.PostFormValue("CallDuration"))
	return StatusForm{
		CallSid:         r.PostFormValue("CallSid"),
		CallStatus:      CallStatus(r.PostFormValue("CallStatus")),
		CallDuration:    duration,
		SipResponseCode: r.PostFormValue("SipResponseCode"),
		ErrorCode:       r.PostFormValue("ErrorCode"),
	}, nil
}
