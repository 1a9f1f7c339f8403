package classifier

import (
	"strings"
	"unicode/utf8"

	"github.com/evaly/scorepipe/internal/pkg/api"
)

const (
	// MinUserMessages - user message count making a session worth a full evaluation
	MinUserMessages = 5
	// MinUserTextLen - user text length (runes) making a session worth a full evaluation
	MinUserTextLen = 150
)

// Verdict is the sufficiency decision for a finished session
type Verdict struct {
	Sufficient   bool
	UserMessages int
	UserTextLen  int
}

// Classify decides if a session has enough user material for a full evaluation.
// Either of the two thresholds is enough
func Classify(msgs []api.Message) Verdict {
	res := Verdict{}
	for _, m := range msgs {
		if m.Source != api.SourceUser {
			continue
		}
		txt := strings.TrimSpace(m.Text)
		if txt == "" {
			continue
		}
		res.UserMessages++
		res.UserTextLen += utf8.RuneCountInString(txt)
	}
	res.Sufficient = res.UserMessages >= MinUserMessages || res.UserTextLen >= MinUserTextLen
	return res
}

// Parse restores messages from a plain transcript with "speaker: text" lines.
// Lines without a speaker prefix continue the previous message
func Parse(transcript string) []api.Message {
	var res []api.Message
	for _, line := range strings.Split(transcript, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		speaker, text, found := strings.Cut(line, ":")
		if !found || strings.ContainsAny(speaker, " \t") {
			if len(res) > 0 {
				res[len(res)-1].Text = res[len(res)-1].Text + "\n" + line
			}
			continue
		}
		res = append(res, api.Message{Source: sourceOf(speaker), Text: strings.TrimSpace(text)})
	}
	return res
}

func sourceOf(speaker string) string {
	switch strings.ToLower(strings.TrimSpace(speaker)) {
	case "user", "usuario":
		return api.SourceUser
	}
	return api.SourceCounterpart
}
