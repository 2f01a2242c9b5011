package actions

import (
	"github.com/grovetools/kw/pkg/action"
)

// Compounds returns the built-in compound actions whose parts are
// registered in reg.
func Compounds(reg *action.Registry) ([]*action.Spec, error) {
	htmlToParagraphs, err := action.NewSequence(reg, "strip_html_to_paragraphs",
		"Convert an HTML page to plain text in short paragraphs.",
		"strip_html", "break_into_paragraphs")
	if err != nil {
		return nil, err
	}

	addParagraphs, err := action.NewCombo(reg, "add_paragraphs",
		"Keep the full text and follow it with a version broken into paragraphs.",
		"copy_items", "break_into_paragraphs")
	if err != nil {
		return nil, err
	}
	addParagraphs.Arity = action.Single

	specs := []*action.Spec{htmlToParagraphs, addParagraphs}

	if _, err := reg.Get("transcribe"); err == nil {
		transcribeAndFormat, err := action.NewSequence(reg, "transcribe_and_format",
			"Transcribe media and format the transcript into paragraphs.",
			"transcribe", "break_into_paragraphs")
		if err != nil {
			return nil, err
		}
		specs = append(specs, transcribeAndFormat)
	}
	return specs, nil
}
