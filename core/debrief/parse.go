package debrief

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/kiongozi/core"
)

var (
	// ErrMalformedCompletion is an upstream error: the model answered without usable feedback.
	ErrMalformedCompletion = core.NewUpstreamError(nil, "debrief generation returned an unreadable answer")

	codeFenceRegex     = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")
	trailingCommaRegex = regexp.MustCompile(`,(\s*[}\]])`)
)

// parseFeedback reads the feedback JSON out of a model answer. In order it tries:
// the raw text, the text without code fences, without trailing commas,
// then the outermost {...} block.
func parseFeedback(text string) (feedback, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return feedback{}, errors.Wrap(ErrMalformedCompletion, "empty completion")
	}

	candidates := []string{text}
	if m := codeFenceRegex.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
		candidates = append(candidates, text)
	}
	cleaned := trailingCommaRegex.ReplaceAllString(text, "$1")
	candidates = append(candidates, cleaned)
	if start, end := strings.Index(cleaned, "{"), strings.LastIndex(cleaned, "}"); start >= 0 && end > start {
		candidates = append(candidates, cleaned[start:end+1])
	}

	var lastErr error
	for _, c := range candidates {
		var fb feedback
		if lastErr = json.Unmarshal([]byte(c), &fb); lastErr == nil {
			return fb, fb.check()
		}
	}
	return feedback{}, errors.Wrapf(ErrMalformedCompletion, "no JSON object found: %v", lastErr)
}

func (fb *feedback) check() error {
	fb.Summary = core.CleanString(fb.Summary)
	if fb.Summary == "" {
		return errors.Wrap(ErrMalformedCompletion, "missing summary")
	}
	if fb.Rating < 1 || fb.Rating > 5 {
		return errors.Wrapf(ErrMalformedCompletion, "rating %d out of 1..5", fb.Rating)
	}
	fb.Strengths = cleanList(fb.Strengths)
	fb.Improvements = cleanList(fb.Improvements)
	return nil
}

func cleanList(items []string) []string {
	res := make([]string, 0, len(items))
	for _, item := range items {
		if item = core.CleanString(item); item != "" {
			res = append(res, item)
		}
	}
	return res
}
