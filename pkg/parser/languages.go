// Package parser turns source text into parsetree nodes with tree-sitter and
// delivers parses for the reconciler asynchronously.
package parser

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"unsafe"

	forest "github.com/alexaandru/go-sitter-forest"
	golang "github.com/alexaandru/go-sitter-forest/go"
	"github.com/alexaandru/go-sitter-forest/python"
	sitter "github.com/alexaandru/go-tree-sitter-bare"
	"github.com/src-d/enry/v2"
)

// ErrUnsupportedLanguage is returned for a language no grammar is known for.
var ErrUnsupportedLanguage = errors.New("parser: unsupported language")

// builtin grammars are linked directly. Everything else goes through the
// forest registry.
var builtin = map[string]func() unsafe.Pointer{
	"go":     golang.GetLanguage,
	"python": python.GetLanguage,
}

var languageCache sync.Map

// Language returns the tree-sitter grammar for name.
func Language(name string) (*sitter.Language, error) {
	name = normalize(name)

	if cached, ok := languageCache.Load(name); ok {
		if lang, castOK := cached.(*sitter.Language); castOK {
			return lang, nil
		}
	}

	var lang *sitter.Language

	if fn, ok := builtin[name]; ok {
		lang = sitter.NewLanguage(fn())
	} else {
		lang = fromForest(name)
	}

	if lang == nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, name)
	}

	languageCache.Store(name, lang)

	return lang, nil
}

// fromForest looks name up in the forest registry, which panics for names
// it does not know.
func fromForest(name string) (lang *sitter.Language) {
	defer func() {
		if recover() != nil {
			lang = nil
		}
	}()

	return forest.GetLanguage(name)
}

// Detect guesses the language of a file from its name and, when the name
// is ambiguous, its content. It returns "" when nothing matches.
func Detect(filename string, content []byte) string {
	lang := enry.GetLanguage(filepath.Base(filename), content)
	if lang == "" {
		return ""
	}

	return normalize(lang)
}

// normalize maps enry and user spellings ("Go", "C#", "Common Lisp") to
// grammar names.
func normalize(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	switch name {
	case "golang":
		return "go"
	case "py", "python3":
		return "python"
	case "c#":
		return "c_sharp"
	case "c++":
		return "cpp"
	}

	return strings.NewReplacer(" ", "_", "-", "_").Replace(name)
}

// ForFile builds a parser for a file. lang wins when set; otherwise the
// language is detected from the name and content.
func ForFile(filename string, content []byte, lang string) (*TreeSitter, error) {
	if lang == "" {
		lang = Detect(filename, content)
	}

	if lang == "" {
		return nil, fmt.Errorf("%w: cannot detect the language of %s", ErrUnsupportedLanguage, filename)
	}

	return NewTreeSitter(lang)
}
