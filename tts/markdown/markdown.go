// Package markdown reduces Markdown documents to speakable plain text.
package markdown

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// Options controls what is read aloud.
type Options struct {
	IncludeCode bool // Read fenced and indented code blocks
	ExpandLinks bool // Prefix link text with "link to"
}

// Extractor turns Markdown into plain text blocks.
type Extractor struct {
	md   goldmark.Markdown
	opts Options
}

// NewExtractor creates an extractor.
func NewExtractor(opts Options) *Extractor {
	return &Extractor{
		md: goldmark.New(
			goldmark.WithParserOptions(
				parser.WithAutoHeadingID(),
			),
		),
		opts: opts,
	}
}

// Blocks returns the text of each block element in document order. Empty
// blocks are dropped.
func (e *Extractor) Blocks(source []byte) ([]string, error) {
	doc := e.md.Parser().Parse(text.NewReader(source))

	var blocks []string
	add := func(s string) {
		if s = normalizeSpace(s); s != "" {
			blocks = append(blocks, s)
		}
	}

	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch n := n.(type) {
		case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
			add(e.inline(n, source))
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if e.opts.IncludeCode {
				add(lines(n, source))
			}
			return ast.WalkSkipChildren, nil
		case *ast.HTMLBlock, *ast.ThematicBreak:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk markdown AST: %w", err)
	}
	return blocks, nil
}

// PlainText returns the document as blocks joined by blank lines.
func (e *Extractor) PlainText(source []byte) (string, error) {
	blocks, err := e.Blocks(source)
	if err != nil {
		return "", err
	}
	return strings.Join(blocks, "\n\n"), nil
}

func (e *Extractor) inline(n ast.Node, source []byte) string {
	var b strings.Builder
	var walk func(ast.Node)
	walk = func(n ast.Node) {
		for c := n.FirstChild(); c != nil; c = c.NextSibling() {
			switch c := c.(type) {
			case *ast.Text:
				b.Write(c.Segment.Value(source))
				if c.SoftLineBreak() || c.HardLineBreak() {
					b.WriteByte(' ')
				}
			case *ast.String:
				b.Write(c.Value)
			case *ast.AutoLink:
				b.Write(c.Label(source))
			case *ast.RawHTML:
			case *ast.Link:
				if e.opts.ExpandLinks {
					b.WriteString("link to ")
				}
				walk(c)
			default:
				walk(c)
			}
		}
	}
	walk(n)
	return b.String()
}

func lines(n ast.Node, source []byte) string {
	var b strings.Builder
	l := n.Lines()
	for i := 0; i < l.Len(); i++ {
		seg := l.At(i)
		b.Write(seg.Value(source))
	}
	return b.String()
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "sr": true, "jr": true,
	"st": true, "vs": true, "etc": true, "inc": true, "ltd": true, "co": true,
	"e.g": true, "i.e": true, "no": true, "vol": true, "fig": true,
}

// Sentences splits text at sentence ends, keeping the punctuation with the
// sentence. A period after a known abbreviation or a single letter does not
// end a sentence.
func Sentences(s string) []string {
	var out []string
	start := 0
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + 1
		for end < len(runes) && strings.ContainsRune(".!?\"')]", runes[end]) {
			end++
		}
		if end < len(runes) && !unicode.IsSpace(runes[end]) {
			continue
		}
		if r == '.' && isAbbreviation(runes[start:i]) {
			continue
		}
		if sentence := strings.TrimSpace(string(runes[start:end])); sentence != "" {
			out = append(out, sentence)
		}
		start = end
		i = end - 1
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func isAbbreviation(before []rune) bool {
	j := len(before)
	for j > 0 && !unicode.IsSpace(before[j-1]) {
		j--
	}
	word := strings.ToLower(strings.TrimLeft(string(before[j:]), "(\"'"))
	if word == "" {
		return false
	}
	if utf8.RuneCountInString(word) == 1 && unicode.IsLetter([]rune(word)[0]) {
		return true
	}
	return abbreviations[word]
}

// Chunk groups the sentences of text into pieces of at most maxBytes bytes.
// A sentence longer than maxBytes is split at word boundaries, or at rune
// boundaries when a single word is too long.
func Chunk(s string, maxBytes int) []string {
	if maxBytes <= 0 {
		return nil
	}
	var chunks []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}
	appendPiece := func(p string) {
		switch {
		case cur.Len() == 0:
			cur.WriteString(p)
		case cur.Len()+1+len(p) <= maxBytes:
			cur.WriteByte(' ')
			cur.WriteString(p)
		default:
			flush()
			cur.WriteString(p)
		}
	}

	for _, sentence := range Sentences(s) {
		if len(sentence) <= maxBytes {
			appendPiece(sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			for len(word) > maxBytes {
				cut := maxBytes
				for cut > 0 && !utf8.RuneStart(word[cut]) {
					cut--
				}
				if cut == 0 {
					_, cut = utf8.DecodeRuneInString(word)
				}
				flush()
				chunks = append(chunks, word[:cut])
				word = word[cut:]
			}
			appendPiece(word)
		}
	}
	flush()
	return chunks
}
