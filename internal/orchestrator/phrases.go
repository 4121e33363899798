package orchestrator

import "strings"

// endingPhrases is the fixed set scanned against assistant replies. A match
// ends the call after the audio finishes playing, never mid-sentence.
var endingPhrases = []string{
	"have a great day",
	"have a wonderful day",
	"have a good day",
	"have a nice day",
	"goodbye",
	"good bye",
	"talk to you later",
	"speak to you soon",
	"thank you for your time",
	"thanks for your time",
	"have a pleasant day",
	"take care",
}

// ContainsEndingPhrase reports whether the reply contains a call-ending
// phrase. Case-insensitive substring match against the fixed list; "thank
// you" alone is not an ending.
func ContainsEndingPhrase(reply string) bool {
	lower := strings.ToLower(reply)
	for _, p := range endingPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// customerDonePhrases mark the callee wrapping up their order.
var customerDonePhrases = []string{
	"that's all",
	"that is all",
	"that's it",
	"that is it",
	"nothing else",
	"that'll be all",
	"that will be all",
	"i'm done",
	"i am done",
}

func containsDonePhrase(speech string) bool {
	lower := strings.ToLower(speech)
	for _, p := range customerDonePhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// reorderPhrases mark the callee asking for their usual order again.
var reorderPhrases = []string{
	"usual order",
	"same as last time",
	"same order as last",
	"reorder",
	"re-order",
	"regular order",
}

func containsReorderPhrase(speech string) bool {
	lower := strings.ToLower(speech)
	for _, p := range reorderPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// Timeout ladder prompts. The first two retry; the third closes the call.
const (
	timeoutPromptFirst  = "Hello? Are you still there?"
	timeoutPromptSecond = "I'm still here. Can you hear me okay?"
	timeoutClosingLine  = "I'll try reaching you another time. Thank you for your time and have a great day!"

	// fallbackReply is the degraded turn spoken when the completion
	// capability fails; the session continues afterwards.
	fallbackReply = "I'm sorry, I'm having a little trouble on my end. Could you say that again?"
)

// timeoutPrompt returns the line to speak for the given attempt count.
func timeoutPrompt(attempts int) string {
	switch attempts {
	case 1:
		return timeoutPromptFirst
	case 2:
		return timeoutPromptSecond
	default:
		return timeoutClosingLine
	}
}
