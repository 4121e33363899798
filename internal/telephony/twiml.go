package telephony

import (
	"bytes"
	"encoding/xml"
	"strconv"
)

// TwiML is a minimal Twilio Markup Language response builder.
// It intentionally avoids any provider SDK dependency.
//
// Rules:
// - Verbs render in the order they are added.
// - Speech capture uses Gather with input="speech"; audio placed inside
//   the Gather can be interrupted by the callee (barge-in).

const defaultGatherTimeoutSeconds = 10

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr,omitempty"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlGather struct {
	XMLName               xml.Name `xml:"Gather"`
	Input                 string   `xml:"input,attr"`
	Action                string   `xml:"action,attr,omitempty"`
	Method                string   `xml:"method,attr,omitempty"`
	Timeout               int      `xml:"timeout,attr,omitempty"`
	SpeechTimeout         string   `xml:"speechTimeout,attr,omitempty"`
	Language              string   `xml:"language,attr,omitempty"`
	BargeIn               string   `xml:"bargeIn,attr,omitempty"`
	PartialResultCallback string   `xml:"partialResultCallback,attr,omitempty"`
	Verbs                 []any    `xml:",any"`
}

// GatherOptions configures a speech Gather verb.
type GatherOptions struct {
	// Action receives the final speech result.
	Action string
	// PartialCallback receives interim speech results while the callee is
	// still talking. Optional.
	PartialCallback string
	// TimeoutSeconds is how long the provider waits for speech to start
	// before falling through to the verbs after the Gather. Zero means
	// the default of 10 seconds.
	TimeoutSeconds int
	Language       string
	// BargeIn lets the callee interrupt nested audio by speaking.
	BargeIn bool
}

// Response accumulates TwiML verbs and renders the document.
type Response struct {
	verbs []any
}

func NewResponse() *Response {
	return &Response{}
}

func (r *Response) Say(text string) *Response {
	r.verbs = append(r.verbs, twimlSay{Text: text})
	return r
}

func (r *Response) Play(url string) *Response {
	r.verbs = append(r.verbs, twimlPlay{URL: url})
	return r
}

func (r *Response) Pause(seconds int) *Response {
	r.verbs = append(r.verbs, twimlPause{Length: seconds})
	return r
}

func (r *Response) Redirect(url string) *Response {
	r.verbs = append(r.verbs, twimlRedirect{Method: "POST", URL: url})
	return r
}

func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, twimlHangup{})
	return r
}

// Gather adds a speech-capture verb. Audio to play while listening is
// added through the nested builder.
func (r *Response) Gather(opts GatherOptions, nested func(*Response)) *Response {
	timeout := opts.TimeoutSeconds
	if timeout == 0 {
		timeout = defaultGatherTimeoutSeconds
	}
	g := twimlGather{
		Input:                 "speech",
		Action:                opts.Action,
		Method:                "POST",
		Timeout:               timeout,
		SpeechTimeout:         "auto",
		Language:              opts.Language,
		BargeIn:               strconv.FormatBool(opts.BargeIn),
		PartialResultCallback: opts.PartialCallback,
	}
	if nested != nil {
		inner := &Response{}
		nested(inner)
		g.Verbs = inner.verbs
	}
	r.verbs = append(r.verbs, g)
	return r
}

// Render produces the TwiML document with the XML header.
func (r *Response) Render() (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(twimlResponse{Verbs: r.verbs}); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
