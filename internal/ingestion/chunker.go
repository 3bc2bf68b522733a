package ingestion

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jdkato/prose/v2"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// CleanText normalizes report text before chunking. Some hospital systems
// export reports as HTML; markup is stripped so it never pollutes chunks or
// embeddings.
func CleanText(text string) string {
	if strings.Contains(text, "<") && strings.Contains(text, ">") {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(text)); err == nil {
			doc.Find("script, style, nav, footer, header").Each(func(i int, s *goquery.Selection) {
				s.Remove()
			})
			if body := doc.Find("body"); body.Length() > 0 {
				text = body.Text()
			} else {
				text = doc.Text()
			}
		}
	}

	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}

// SplitIntoChunks packs sentences into segments of at most maxChars. A chunk
// never ends mid-sentence unless a single sentence exceeds the budget, in
// which case that sentence alone is split on word boundaries.
func SplitIntoChunks(text string, maxChars int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	sentences := segmentSentences(text)

	var chunks []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}

	for _, sentence := range sentences {
		if len(sentence) > maxChars {
			flush()
			chunks = append(chunks, splitByWords(sentence, maxChars)...)
			continue
		}

		if current.Len() > 0 && current.Len()+1+len(sentence) > maxChars {
			flush()
		}

		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(sentence)
	}
	flush()

	return chunks
}

func segmentSentences(text string) []string {
	doc, err := prose.NewDocument(text,
		prose.WithTagging(false),
		prose.WithExtraction(false),
	)
	if err != nil {
		return []string{text}
	}

	var sentences []string
	for _, s := range doc.Sentences() {
		trimmed := strings.TrimSpace(s.Text)
		if trimmed != "" {
			sentences = append(sentences, trimmed)
		}
	}

	if len(sentences) == 0 {
		return []string{text}
	}
	return sentences
}

func splitByWords(sentence string, maxChars int) []string {
	words := strings.Fields(sentence)

	var parts []string
	var current strings.Builder

	for _, word := range words {
		if current.Len() > 0 && current.Len()+1+len(word) > maxChars {
			parts = append(parts, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString(" ")
		}
		current.WriteString(word)
	}
	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}
