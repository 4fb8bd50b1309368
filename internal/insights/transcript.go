package insights

import (
	"regexp"
	"strings"
)

// Transcripts are flat text blobs using a "Speaker: text" line convention.
// Lines without a speaker delimiter are dropped silently.

const (
	SpeakerAgent    = "agent"
	SpeakerCustomer = "customer"
)

// Utterance is a single parsed transcript line.
type Utterance struct {
	Speaker string // normalized to lowercase
	Text    string
}

var wordPattern = regexp.MustCompile(`\b\w+\b`)

// fillerWords are stripped before counting substantive words for the talk
// ratio. Matched per token, case-insensitive.
var fillerWords = map[string]bool{
	"um":        true,
	"uh":        true,
	"er":        true,
	"ah":        true,
	"like":      true,
	"basically": true,
	"actually":  true,
}

// ParseTranscript splits a transcript blob into utterances. The speaker
// label is whatever precedes the first colon, trimmed and lowercased.
func ParseTranscript(transcript string) []Utterance {
	var out []Utterance
	for _, line := range strings.Split(transcript, "\n") {
		speaker, text, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out = append(out, Utterance{
			Speaker: strings.ToLower(strings.TrimSpace(speaker)),
			Text:    strings.TrimSpace(text),
		})
	}
	return out
}

// TalkRatio returns the fraction of substantive (non-filler) words spoken by
// the agent over all substantive words spoken by the agent and the customer.
// Utterances from unrecognized speakers are ignored entirely. Returns 0.0
// when neither role spoke any substantive word.
func TalkRatio(transcript string) float64 {
	var agentWords, totalWords int

	for _, u := range ParseTranscript(transcript) {
		if u.Speaker != SpeakerAgent && u.Speaker != SpeakerCustomer {
			continue
		}
		n := countSubstantiveWords(u.Text)
		totalWords += n
		if u.Speaker == SpeakerAgent {
			agentWords += n
		}
	}

	if totalWords == 0 {
		return 0.0
	}
	return float64(agentWords) / float64(totalWords)
}

// CustomerText joins all customer utterances into one blob for sentiment
// classification. Returns "" when the customer never spoke.
func CustomerText(transcript string) string {
	var parts []string
	for _, u := range ParseTranscript(transcript) {
		if u.Speaker == SpeakerCustomer && u.Text != "" {
			parts = append(parts, u.Text)
		}
	}
	return strings.Join(parts, " ")
}

func countSubstantiveWords(text string) int {
	n := 0
	for _, w := range wordPattern.FindAllString(strings.ToLower(text), -1) {
		if !fillerWords[w] {
			n++
		}
	}
	return n
}
