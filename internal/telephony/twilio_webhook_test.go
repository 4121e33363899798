package telephony

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func formRequest(t *testing.T, target, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return r
}

func TestParseVoiceFormSpeechResult(t *testing.T) {
	r := formRequest(t, PathSpeech,
		"CallSid=CA123&From=%2B15551234567&To=%2B15557654321&SpeechResult=I+need+five+cases&Confidence=0.91")

	form, err := ParseVoiceForm(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallSid != "CA123" {
		t.Fatalf("expected CallSid, got %q", form.CallSid)
	}
	if form.SpeechResult != "I need five cases" {
		t.Fatalf("unexpected speech result: %q", form.SpeechResult)
	}
	if form.Confidence != 0.91 {
		t.Fatalf("unexpected confidence: %v", form.Confidence)
	}
}

func TestParseVoiceFormPartial(t *testing.T) {
	r := formRequest(t, PathPartial, "CallSid=CA123&UnstableSpeechResult=I+was+thinking")

	form, err := ParseVoiceForm(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.UnstableSpeechResult != "I was thinking" {
		t.Fatalf("unexpected partial: %q", form.UnstableSpeechResult)
	}
	if form.SpeechResult != "" {
		t.Fatalf("expected empty final result, got %q", form.SpeechResult)
	}
}

func TestParseStatusForm(t *testing.T) {
	r := formRequest(t, PathStatus, "CallSid=CA123&CallStatus=completed&CallDuration=83")

	form, err := ParseStatusForm(r)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if form.CallStatus != CallStatusCompleted {
		t.Fatalf("unexpected status: %q", form.CallStatus)
	}
	if !form.CallStatus.Terminal() {
		t.Fatal("expected completed to be terminal")
	}
	if form.CallStatus.Failed() {
		t.Fatal("expected completed not to be a failure")
	}
	if form.CallDuration != 83 {
		t.Fatalf("unexpected duration: %d", form.CallDuration)
	}
}

func TestCallStatusClassification(t *testing.T) {
	for _, s := range []CallStatus{CallStatusFailed, CallStatusBusy, CallStatusNoAnswer, CallStatusCanceled} {
		if !s.Terminal() || !s.Failed() {
			t.Fatalf("expected %q terminal and failed", s)
		}
	}
	for _, s := range []CallStatus{CallStatusQueued, CallStatusRinging, CallStatusInProgress} {
		if s.Terminal() {
			t.Fatalf("expected %q not terminal", s)
		}
	}
}
