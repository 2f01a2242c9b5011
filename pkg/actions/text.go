package actions

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/grovetools/kw/pkg/action"
	"github.com/grovetools/kw/pkg/models"
)

// A word ends a sentence when it has at least two letters, the last one
// lowercase, followed by terminal punctuation and optionally a closing
// quote or parenthesis.
var sentenceEnd = regexp.MustCompile(`\p{L}\p{Ll}([.?!]['"’”)]?|['"’”)][.?!]|[:;])$`)

// Sentences shorter than this are merged with the following one.
const minSentenceLen = 15

// SplitSentences splits text into sentences with a conservative heuristic
// that prefers too few breaks over too many.
func SplitSentences(text string) []string {
	var sentences, sentence []string
	length := 0
	for _, word := range strings.Fields(text) {
		sentence = append(sentence, word)
		length += len(word)
		if sentenceEnd.MatchString(word) && length+len(sentence)-1 >= minSentenceLen {
			sentences = append(sentences, strings.Join(sentence, " "))
			sentence = sentence[:0]
			length = 0
		}
	}
	if len(sentence) > 0 {
		sentences = append(sentences, strings.Join(sentence, " "))
	}
	return sentences
}

// Paragraphs splits a body on blank lines, dropping empty blocks.
func Paragraphs(body string) []string {
	var paras []string
	for _, block := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if block = strings.TrimSpace(block); block != "" {
			paras = append(paras, block)
		}
	}
	return paras
}

// isStructural reports whether a block is markdown structure that must not
// be reflowed.
func isStructural(block string) bool {
	switch {
	case strings.HasPrefix(block, "#"),
		strings.HasPrefix(block, ">"),
		strings.HasPrefix(block, "```"),
		strings.HasPrefix(block, "|"),
		strings.HasPrefix(block, "<"):
		return true
	}
	first, _, _ := strings.Cut(block, "\n")
	return listItem.MatchString(first)
}

var listItem = regexp.MustCompile(`^\s*([-*+]|\d+[.)])\s`)

// Reflow regroups prose into paragraphs of at most n sentences. Structural
// markdown blocks are kept as they are.
func Reflow(body string, n int) string {
	var out []string
	for _, block := range Paragraphs(body) {
		if isStructural(block) {
			out = append(out, block)
			continue
		}
		sentences := SplitSentences(block)
		for start := 0; start < len(sentences); start += n {
			end := min(start+n, len(sentences))
			out = append(out, strings.Join(sentences[start:end], " "))
		}
	}
	return strings.Join(out, "\n\n") + "\n"
}

// BreakIntoParagraphs regroups a text document into short paragraphs.
func BreakIntoParagraphs() *action.Spec {
	return &action.Spec{
		Name:          "break_into_paragraphs",
		Description:   "Reformat text as paragraphs of a few sentences each.",
		Preconditions: []string{"is_text_doc"},
		Arity:         action.Single,
		Version:       "1",
		Params: []action.Param{{
			Name:        "sentences",
			Description: "Maximum number of sentences per paragraph.",
			Default:     "5",
		}},
		Body: func(_ context.Context, in action.Input) ([]models.Payload, error) {
			n, err := strconv.Atoi(in.Param("sentences"))
			if err != nil || n < 1 {
				return nil, fmt.Errorf("sentences must be a positive integer, got %q", in.Param("sentences"))
			}
			item := in.Item()
			return []models.Payload{{
				Type:   item.Type,
				Format: item.Format,
				Title:  item.Title + " (in paragraphs)",
				URL:    item.URL,
				Body:   Reflow(item.Body, n),
			}}, nil
		},
	}
}

// Concat joins text documents into one markdown document, in input order.
func Concat() *action.Spec {
	return &action.Spec{
		Name:          "concat",
		Description:   "Concatenate text documents into one.",
		Preconditions: []string{"is_text_doc"},
		Arity:         action.List,
		Version:       "1",
		Body: func(_ context.Context, in action.Input) ([]models.Payload, error) {
			bodies := make([]string, len(in.Items))
			for i, item := range in.Items {
				bodies[i] = strings.TrimSpace(item.Body)
			}
			title := in.Item().Title
			if len(in.Items) > 1 {
				title = fmt.Sprintf("%s and %d more (combined)", title, len(in.Items)-1)
			}
			return []models.Payload{{
				Type:   models.TypeDoc,
				Format: models.FormatMarkdown,
				Title:  title,
				Body:   strings.Join(bodies, "\n\n") + "\n",
			}}, nil
		},
	}
}

// CopyItems produces a copy of each input with identical content.
func CopyItems() *action.Spec {
	return &action.Spec{
		Name:          "copy_items",
		Description:   "Copy items. Copies share the identity of their source.",
		Preconditions: []string{"has_body"},
		Arity:         action.Either,
		Version:       "1",
		Body: func(_ context.Context, in action.Input) ([]models.Payload, error) {
			payloads := make([]models.Payload, len(in.Items))
			for i, item := range in.Items {
				payloads[i] = item.Payload()
			}
			return payloads, nil
		},
	}
}
