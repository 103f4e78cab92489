package data

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

var (
	ErrNoJSON = errors.New("no json found in answer")

	thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)
	boxed      = regexp.MustCompile(`(?s)\\boxed\{(.*?)\}`)
	fenced     = regexp.MustCompile("(?s)^```(?:json)?\\s*(.*?)\\s*```$")
)

// CleanOutput removes reasoning artifacts such as <think> blocks and \boxed{} wrappers.
func CleanOutput(text string) string {
	if text == "" {
		return ""
	}
	text = thinkBlock.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "<think>", "")
	text = strings.ReplaceAll(text, "</think>", "")
	text = boxed.ReplaceAllString(text, "$1")
	return strings.TrimSpace(text)
}

func StripFences(text string) string {
	text = strings.TrimSpace(text)
	if m := fenced.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return text
}

// SanitizeAnswer returns the JSON object embedded in a model answer.
func SanitizeAnswer(ans string) (string, error) {
	cleaned := CleanOutput(ans)
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}

	cleaned = StripFences(cleaned)
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}

	if i := strings.Index(cleaned, "```json"); i != -1 {
		cleaned = firstBlock(cleaned[i+len("```json"):])
	} else if i := strings.Index(cleaned, "```"); i != -1 {
		cleaned = firstBlock(cleaned[i+len("```"):])
	}
	cleaned = strings.TrimSpace(cleaned)
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end < start {
		return "", ErrNoJSON
	}
	snippet := cleaned[start : end+1]
	if json.Valid([]byte(snippet)) {
		return snippet, nil
	}

	lenient, err := normalizeLiteral(snippet)
	if err != nil {
		return "", err
	}
	return lenient, nil
}

// ExtractJSON decodes the JSON object embedded in a model answer into v.
func ExtractJSON(ans string, v any) error {
	match, err := SanitizeAnswer(ans)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(match), v)
}

// ExtractList decodes the first JSON array of strings found in a model answer.
func ExtractList(ans string) ([]string, error) {
	cleaned := CleanOutput(ans)
	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start == -1 || end < start {
		return nil, ErrNoJSON
	}
	var res []string
	if err := json.Unmarshal([]byte(cleaned[start:end+1]), &res); err != nil {
		return nil, err
	}
	return res, nil
}

func firstBlock(s string) string {
	if j := strings.Index(s, "```"); j != -1 {
		return s[:j]
	}
	return s
}
