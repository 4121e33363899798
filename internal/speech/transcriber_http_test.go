package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPTranscriberParsesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("expected multipart form, got %v", err)
		}
		if r.FormValue("sample_rate") != "8000" {
			t.Errorf("expected sample_rate 8000, got %q", r.FormValue("sample_rate"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"I need water","confidence":0.91,"is_final":true}`))
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(TranscriberConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("expected transcriber to build, got %v", err)
	}

	res, err := tr.Transcribe(context.Background(), []byte{1, 2, 3, 4})
	if err != nil {
		t.Fatalf("expected transcription to succeed, got %v", err)
	}
	if res.Text != "I need water" || !res.IsFinal {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.Confidence != 0.91 {
		t.Fatalf("expected confidence 0.91, got %v", res.Confidence)
	}
}

func TestHTTPTranscriberEmptyTextIsNoSpeech(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"text":"   ","confidence":0.1,"is_final":true}`))
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(TranscriberConfig{Endpoint: srv.URL})
	if err != nil {
		t.Fatalf("expected transcriber to build, got %v", err)
	}

	if _, err := tr.Transcribe(context.Background(), []byte{1, 2}); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
}

func TestHTTPTranscriberEmptyInputIsNoSpeech(t *testing.T) {
	tr, err := NewHTTPTranscriber(TranscriberConfig{Endpoint: "http://localhost:1"})
	if err != nil {
		t.Fatalf("expected transcriber to build, got %v", err)
	}
	if _, err := tr.Transcribe(context.Background(), nil); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("expected ErrNoSpeech, got %v", err)
	}
}

func TestHTTPTranscriberRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"text":"5 cases","confidence":0.8,"is_final":true}`))
	}))
	defer srv.Close()

	tr, err := NewHTTPTranscriber(TranscriberConfig{Endpoint: srv.URL, MaxRetries: 2})
	if err != nil {
		t.Fatalf("expected transcriber to build, got %v", err)
	}

	res, err := tr.Transcribe(context.Background(), []byte{1, 2})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if res.Text != "5 cases" {
		t.Fatalf("expected retried result, got %+v", res)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
}
