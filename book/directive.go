package book

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

// headerLine is "[chapter TITLE]" or "[section TITLE]" occupying the whole
// (trimmed) line. Title runs up to the last bracket and may hold brackets
// itself.
type headerLine struct {
	Kind  string `"[" @Keyword`
	Title string `( "]" | Space @(Text | Space | Open | Close | Keyword)+ )`
}

var headerLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "Open", Pattern: `\[`},
	{Name: "Close", Pattern: `\]`},
	{Name: "Keyword", Pattern: `chapter|section`},
	{Name: "Space", Pattern: `\s+`},
	{Name: "Text", Pattern: `[^\[\]\s]+`},
})

var headerParser = participle.MustBuild[headerLine](
	participle.Lexer(headerLexer),
)

const (
	kindChapter = "chapter"
	kindSection = "section"
)

func parseHeader(line string) (*headerLine, error) {
	h, err := headerParser.ParseString("", line)
	if err != nil {
		return nil, fmt.Errorf("malformed header %q: %w", line, err)
	}
	if len(h.Title) > 0 {
		title, ok := strings.CutSuffix(h.Title, "]")
		if !ok {
			return nil, fmt.Errorf("malformed header %q: text after closing bracket", line)
		}
		h.Title = title
	}
	h.Title = strings.TrimSpace(h.Title)
	return h, nil
}

// looksLikeHeader reports lines which are meant to be headers, so problems
// parsing them are worth a warning.
func looksLikeHeader(line string) bool {
	return strings.HasPrefix(line, "["+kindChapter) || strings.HasPrefix(line, "["+kindSection)
}

// imageArgs is the argument list of image tag: path followed by options
// (key=value), quoted caption and anything else.
type imageArgs struct {
	Path string      `@(String | Option | Word)`
	Args []*imageArg `@@*`
}

type imageArg struct {
	Option  string `  @Option`
	Caption string `| @String`
	Word    string `| @Word`
}

var imageLexer = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "String", Pattern: `"[^"]*"`},
	{Name: "Option", Pattern: `[A-Za-z][\w-]*=[^\s"]*`},
	{Name: "Word", Pattern: `[^\s"]+`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var imageParser = participle.MustBuild[imageArgs](
	participle.Lexer(imageLexer),
	participle.Elide("Whitespace"),
)

// parseImage returns image reference for argument list of image tag. Words
// which are neither options nor caption are returned separately.
func parseImage(args string) (ImageReference, []string, error) {
	parsed, err := imageParser.ParseString("", args)
	if err != nil {
		return ImageReference{}, nil, fmt.Errorf("malformed image arguments %q: %w", args, err)
	}
	ref := ImageReference{Name: unquote(parsed.Path)}
	var extra []string
	for _, arg := range parsed.Args {
		switch {
		case len(arg.Option) > 0:
			k, v, _ := strings.Cut(arg.Option, "=")
			if ref.Options == nil {
				ref.Options = make(map[string]string)
			}
			ref.Options[k] = v
		case len(arg.Caption) > 0:
			ref.Caption = unquote(arg.Caption)
		case len(arg.Word) > 0:
			extra = append(extra, arg.Word)
		}
	}
	if len(strings.TrimSpace(ref.Name)) == 0 {
		return ImageReference{}, nil, fmt.Errorf("image without name %q", args)
	}
	return ref, extra, nil
}

func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
