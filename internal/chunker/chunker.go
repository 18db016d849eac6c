package chunker

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// avgCharsPerToken sizes the overlap seed. Exact token-boundary slicing
// is not required; the seed's real token count is measured after slicing.
const avgCharsPerToken = 4

// TokenCounter measures text length in tokens of the governing encoding.
// *tokenizer.Counter is the production implementation.
type TokenCounter interface {
	Count(text string) (int, error)
}

// Piece is a chunk candidate: the text of one chunk and its token count
// as measured by the governing tokenizer.
type Piece struct {
	Text       string
	TokenCount int
}

// TokenChunker splits document text into token-bounded, overlapping
// chunks. Paragraphs (blank-line delimited) and sentences are respected:
// a paragraph boundary inserts a separator but never forces a chunk
// break on its own. Output is deterministic for identical input.
type TokenChunker struct {
	counter       TokenCounter
	maxTokens     int
	overlapTokens int
	sentenceRe    *regexp.Regexp
	paragraphRe   *regexp.Regexp
}

func NewTokenChunker(counter TokenCounter, maxTokens, overlapTokens int) *TokenChunker {
	if maxTokens <= 0 {
		maxTokens = 800
	}
	if overlapTokens < 0 {
		overlapTokens = 0
	}
	return &TokenChunker{
		counter:       counter,
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		sentenceRe:    regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?]+)`),
		paragraphRe:   regexp.MustCompile(`\n\s*\n`),
	}
}

// Chunk splits text into chunk candidates. The token budget is soft at
// two points: a single sentence longer than the budget is emitted as
// its own oversized chunk rather than dropped or looped on, and the
// first sentence after an overlap seed always joins that seed even when
// the pair runs over. A chunk never consists of overlap text alone.
func (c *TokenChunker) Chunk(text string) ([]Piece, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var (
		pieces    []Piece
		buf       strings.Builder
		bufTokens int
		seeded    bool // buffer holds only an overlap seed, no sentence yet
	)

	appendText := func(s string, tokens int, sep string) {
		if buf.Len() > 0 {
			buf.WriteString(sep)
		}
		buf.WriteString(s)
		bufTokens += tokens
	}

	flush := func(seedNext bool) error {
		chunkText := strings.TrimSpace(buf.String())
		buf.Reset()
		bufTokens = 0
		seeded = false
		if chunkText == "" {
			return nil
		}
		n, err := c.counter.Count(chunkText)
		if err != nil {
			return err
		}
		pieces = append(pieces, Piece{Text: chunkText, TokenCount: n})
		if seedNext && c.overlapTokens > 0 {
			seed := trailingChars(chunkText, c.overlapTokens*avgCharsPerToken)
			if seed != "" {
				seedTokens, err := c.counter.Count(seed)
				if err != nil {
					return err
				}
				buf.WriteString(seed)
				bufTokens = seedTokens
				seeded = true
			}
		}
		return nil
	}

	paragraphs := c.paragraphRe.Split(text, -1)
	for _, para := range paragraphs {
		sentences := c.splitSentences(para)
		if len(sentences) == 0 {
			continue
		}
		firstInParagraph := true
		for _, sentence := range sentences {
			sep := " "
			if firstInParagraph {
				sep = "\n\n"
				firstInParagraph = false
			}
			tokens, err := c.counter.Count(sentence)
			if err != nil {
				return nil, err
			}
			if tokens > c.maxTokens {
				// Oversized sentence: close whatever is buffered, then
				// emit the sentence as a chunk of its own.
				if err := flush(false); err != nil {
					return nil, err
				}
				buf.WriteString(sentence)
				bufTokens = tokens
				if err := flush(true); err != nil {
					return nil, err
				}
				continue
			}
			if bufTokens+tokens > c.maxTokens && !seeded && buf.Len() > 0 {
				if err := flush(true); err != nil {
					return nil, err
				}
				sep = " "
			}
			appendText(sentence, tokens, sep)
			seeded = false
		}
	}
	if err := flush(false); err != nil {
		return nil, err
	}
	return pieces, nil
}

// splitSentences returns terminator-delimited sentences plus any
// unterminated remainder, all trimmed.
func (c *TokenChunker) splitSentences(para string) []string {
	var out []string
	last := 0
	for _, loc := range c.sentenceRe.FindAllStringIndex(para, -1) {
		s := strings.TrimSpace(para[loc[0]:loc[1]])
		if s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if rest := strings.TrimSpace(para[last:]); rest != "" {
		out = append(out, rest)
	}
	return out
}

// trailingChars returns at most n trailing bytes of s, advanced to the
// next rune boundary so the slice is valid UTF-8.
func trailingChars(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
