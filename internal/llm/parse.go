package llm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/stemsi/nexus-backend/internal/model"
)

// ParseStatus tags a ParsedQuestion.
type ParseStatus int

const (
	StatusValid ParseStatus = iota
	StatusMalformed
)

// ParsedQuestion is one item of a model response after validation. Only
// Valid items carry a usable Question.
type ParsedQuestion struct {
	Status   ParseStatus
	Question model.Question
	Reason   string
	Index    int
}

func (p ParsedQuestion) Valid() bool {
	return p.Status == StatusValid
}

// Defaults fill fields the model left out. Subject, when set, overrides
// whatever subject the model reported.
type Defaults struct {
	Subject    model.Subject
	Chapter    string
	Difficulty string
}

// ParseQuestions decodes a model response into tagged items. It only fails
// when no JSON array of items can be recovered from text at all.
func ParseQuestions(text string, d Defaults) ([]ParsedQuestion, error) {
	items, err := DecodeItems(text)
	if err != nil {
		return nil, err
	}

	out := make([]ParsedQuestion, 0, len(items))
	for i, raw := range items {
		pq := validateItem(raw, d)
		pq.Index = i
		out = append(out, pq)
	}
	return out, nil
}

var trailingComma = regexp.MustCompile(`,\s*([\]}])`)

// DecodeItems extracts the list of question objects from text. It accepts a
// bare array, an object with a "questions" array or a single question
// object, and tolerates code fences, trailing commas and a truncated array.
func DecodeItems(text string) ([]json.RawMessage, error) {
	body := ExtractJSON(text)
	if body == "" {
		return nil, fmt.Errorf("%w: no JSON found", ErrMalformedResponse)
	}

	candidates := []string{body, trailingComma.ReplaceAllString(body, "$1")}
	if repaired, ok := repairTruncatedArray(candidates[1]); ok {
		candidates = append(candidates, repaired)
	}

	var lastErr error
	for _, c := range candidates {
		items, err := itemsOf([]byte(c))
		if err == nil {
			return items, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, lastErr)
}

// ExtractJSON strips markdown fences and returns the text between the first
// opening bracket and the last closing bracket.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```JSON")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")

	start := strings.IndexAny(text, "[{")
	if start < 0 {
		return ""
	}
	end := strings.LastIndexAny(text, "]}")
	if end < start {
		return text[start:]
	}
	return strings.TrimSpace(text[start : end+1])
}

func itemsOf(data []byte) ([]json.RawMessage, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("empty body")
	}

	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, err
		}
		return items, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return nil, err
	}
	if raw, ok := obj["questions"]; ok {
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, err
		}
		return items, nil
	}
	if _, ok := obj["statement"]; ok {
		return []json.RawMessage{json.RawMessage(data)}, nil
	}
	return nil, fmt.Errorf("object has no questions")
}

// repairTruncatedArray cuts s after the last complete element of its first
// array and closes the array. It returns false when no element completed.
func repairTruncatedArray(s string) (string, bool) {
	start := strings.IndexByte(s, '[')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString, escaped := false, false
	lastElementEnd := -1

	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '[', '{':
			depth++
		case ']', '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
			if depth == 1 && c == '}' {
				lastElementEnd = i
			}
		}
	}

	if lastElementEnd < 0 {
		return "", false
	}
	return s[start:lastElementEnd+1] + "]", true
}

type rawQuestion struct {
	Subject            string            `json:"subject"`
	Chapter            string            `json:"chapter"`
	Type               string            `json:"type"`
	Difficulty         string            `json:"difficulty"`
	Statement          string            `json:"statement"`
	Options            []json.RawMessage `json:"options"`
	CorrectAnswer      json.RawMessage   `json:"correctAnswer"`
	CorrectAnswerSnake json.RawMessage   `json:"correct_answer"`
	Solution           string            `json:"solution"`
	Explanation        string            `json:"explanation"`
	Concept            string            `json:"concept"`
	MarkingScheme      *struct {
		Positive *int `json:"positive"`
		Negative *int `json:"negative"`
	} `json:"markingScheme"`
}

func malformed(reason string) ParsedQuestion {
	return ParsedQuestion{Status: StatusMalformed, Reason: reason}
}

func validateItem(raw json.RawMessage, d Defaults) ParsedQuestion {
	var rq rawQuestion
	if err := json.Unmarshal(raw, &rq); err != nil {
		return malformed("decode: " + err.Error())
	}

	statement := strings.TrimSpace(rq.Statement)
	if statement == "" {
		return malformed("missing statement")
	}

	answerRaw := rq.CorrectAnswer
	if len(answerRaw) == 0 {
		answerRaw = rq.CorrectAnswerSnake
	}
	answer := strings.TrimSpace(answerText(answerRaw))
	if answer == "" {
		return malformed("missing correct answer")
	}

	options := make([]string, 0, len(rq.Options))
	for _, o := range rq.Options {
		if text := strings.TrimSpace(answerText(o)); text != "" {
			options = append(options, text)
		}
	}

	q := model.Question{
		Subject:     d.Subject,
		Chapter:     firstNonEmpty(rq.Chapter, d.Chapter, "General"),
		Difficulty:  firstNonEmpty(rq.Difficulty, d.Difficulty, "Hard"),
		Statement:   statement,
		Solution:    strings.TrimSpace(rq.Solution),
		Explanation: strings.TrimSpace(rq.Explanation),
		Concept:     strings.TrimSpace(rq.Concept),
	}
	if q.Subject == "" {
		q.Subject = parseSubject(rq.Subject)
		if q.Subject == "" {
			return malformed("unknown subject " + strconv.Quote(rq.Subject))
		}
	}

	if len(options) >= 2 {
		q.Type = model.QuestionTypeMCQ
		q.Options = options
		resolved, ok := resolveOptionAnswer(answer, options)
		if !ok {
			return malformed("answer " + strconv.Quote(answer) + " does not name an option")
		}
		q.CorrectAnswer = resolved
	} else {
		q.Type = model.QuestionTypeNumerical
		if _, err := strconv.ParseFloat(answer, 64); err != nil {
			return malformed("numerical answer " + strconv.Quote(answer) + " is not a number")
		}
		q.CorrectAnswer = answer
	}

	q.MarkingScheme = model.DefaultMarkingScheme(q.Type)
	if ms := rq.MarkingScheme; ms != nil {
		if ms.Positive != nil && *ms.Positive > 0 {
			q.MarkingScheme.Positive = *ms.Positive
		}
		if ms.Negative != nil && *ms.Negative >= 0 {
			q.MarkingScheme.Negative = *ms.Negative
		}
	}

	return ParsedQuestion{Status: StatusValid, Question: q}
}

// answerText renders a JSON string, number or array of those as text.
func answerText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '[':
		var parts []json.RawMessage
		if err := json.Unmarshal(raw, &parts); err != nil {
			return ""
		}
		texts := make([]string, 0, len(parts))
		for _, p := range parts {
			texts = append(texts, answerText(p))
		}
		return strings.Join(texts, ",")
	case '{':
		return ""
	default:
		return string(raw)
	}
}

// resolveOptionAnswer maps an answer to sorted comma-joined zero-based
// indices. Answers are read as indices first, since that is what the model
// is asked for, and only then as letters or option text. Options that are
// themselves numbers therefore never shadow an index.
func resolveOptionAnswer(answer string, options []string) (string, bool) {
	parts := strings.Split(answer, ",")

	if indices, ok := indexAnswer(parts, options); ok {
		return joinIndices(indices), true
	}

	for i, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), answer) {
			return strconv.Itoa(i), true
		}
	}

	indices := make([]int, 0, len(parts))
	for _, part := range parts {
		idx, ok := labelIndex(strings.TrimSpace(part), options)
		if !ok {
			return "", false
		}
		indices = append(indices, idx)
	}
	return joinIndices(indices), true
}

// indexAnswer succeeds only when every part is an in-range integer.
func indexAnswer(parts []string, options []string) ([]int, bool) {
	indices := make([]int, 0, len(parts))
	for _, part := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n >= len(options) {
			return nil, false
		}
		indices = append(indices, n)
	}
	return indices, true
}

// labelIndex resolves a single letter or an option's text.
func labelIndex(part string, options []string) (int, bool) {
	if len(part) == 1 {
		c := part[0] | 0x20 // lower-case ASCII letters
		if c >= 'a' && c <= 'z' {
			if idx := int(c - 'a'); idx < len(options) {
				return idx, true
			}
		}
	}
	for i, o := range options {
		if strings.EqualFold(strings.TrimSpace(o), part) {
			return i, true
		}
	}
	return 0, false
}

func joinIndices(indices []int) string {
	seen := make(map[int]struct{}, len(indices))
	uniq := make([]int, 0, len(indices))
	for _, n := range indices {
		if _, dup := seen[n]; !dup {
			seen[n] = struct{}{}
			uniq = append(uniq, n)
		}
	}
	sort.Ints(uniq)

	out := make([]string, len(uniq))
	for i, n := range uniq {
		out[i] = strconv.Itoa(n)
	}
	return strings.Join(out, ",")
}

func parseSubject(s string) model.Subject {
	for _, sub := range model.Subjects {
		if strings.EqualFold(strings.TrimSpace(s), string(sub)) {
			return sub
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
