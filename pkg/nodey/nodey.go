// Package nodey defines the identity-bearing tree elements tracked by the
// version store: code nodes, code cells, markdown cells, execution outputs,
// and the notebook root.
//
// Nodes never hold pointers to each other. Parent, child, and right-sibling
// relations are names that resolve through a central store.
package nodey

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Kind tags the variant of a Nodey.
type Kind int

// Node kinds.
const (
	KindCode Kind = iota
	KindCodeCell
	KindMarkdown
	KindOutput
	KindNotebook
)

var kindNames = map[Kind]string{
	KindCode:     "code",
	KindCodeCell: "codecell",
	KindMarkdown: "markdown",
	KindOutput:   "output",
	KindNotebook: "notebook",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}

	return "unknown"
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}

	return 0, false
}

// Type characters used as the first segment of a node name.
const (
	CharCode     = "c"
	CharMarkdown = "m"
	CharOutput   = "o"
	CharNotebook = "n"
)

// TypeChar returns the name prefix for the kind. Code cells share
// the code prefix because they live in the same id space.
func (k Kind) TypeChar() string {
	switch k {
	case KindCode, KindCodeCell:
		return CharCode
	case KindMarkdown:
		return CharMarkdown
	case KindOutput:
		return CharOutput
	case KindNotebook:
		return CharNotebook
	default:
		panic("nodey: no type char for kind " + k.String())
	}
}

// NoVersion marks a node that has not been stored in a version chain yet.
const NoVersion = -1

// NoID marks a node that has not been assigned an identity yet.
const NoID = -1

// Base holds the fields every variant shares.
type Base struct {
	ID      int    `json:"id"`
	Version int    `json:"version"`
	Parent  string `json:"parent,omitempty"`
	Created int    `json:"created"`
}

// Nodey is the closed sum type of tracked nodes. Only types in this
// package implement it; callers dispatch with a type switch.
type Nodey interface {
	Kind() Kind
	Common() *Base
	// Clone returns a shallow copy whose slices are fresh, so appending to
	// or reordering the copy never touches the original.
	Clone() Nodey
	sealed()
}

// Key returns the identity key "typeChar.id" shared by all versions of a node.
func Key(n Nodey) string {
	return KeyOf(n.Kind().TypeChar(), n.Common().ID)
}

// KeyOf formats an identity key.
func KeyOf(typeChar string, id int) string {
	return typeChar + "." + strconv.Itoa(id)
}

// Name returns the committed name "typeChar.id.version".
func Name(n Nodey) string {
	return Key(n) + "." + strconv.Itoa(n.Common().Version)
}

// SplitName breaks a committed name ("c.4.2") or a star name ("*.c.4")
// into its segments. Unsaved names carry no identity and report ok=false.
func SplitName(name string) (typeChar string, id, version int, ok bool) {
	parts := strings.Split(name, ".")
	if len(parts) != 3 || parts[0] == UnsavedPrefix {
		return "", 0, 0, false
	}

	if parts[0] == StarPrefix {
		id, err := strconv.Atoi(parts[2])
		if err != nil {
			return "", 0, 0, false
		}

		return parts[1], id, NoVersion, true
	}

	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, 0, false
	}

	version, err = strconv.Atoi(parts[2])
	if err != nil {
		return "", 0, 0, false
	}

	return parts[0], id, version, true
}

// KeyFromName maps any committed or star name to the identity key.
func KeyFromName(name string) (string, bool) {
	typeChar, id, _, ok := SplitName(name)
	if !ok {
		return "", false
	}

	return KeyOf(typeChar, id), true
}

// Name prefixes for shadow entries.
const (
	StarPrefix    = "*"
	UnsavedPrefix = "TEMP"
)

// IsStarName reports whether name refers to a shadow of a committed node.
func IsStarName(name string) bool {
	return strings.HasPrefix(name, StarPrefix+".")
}

// IsUnsavedName reports whether name refers to a never-committed shadow.
func IsUnsavedName(name string) bool {
	return strings.HasPrefix(name, UnsavedPrefix+".")
}

// Pos is a zero-based line/column position in the live text.
type Pos struct {
	Line int `json:"line"`
	Ch   int `json:"ch"`
}

// Before reports whether p sorts strictly before q.
func (p Pos) Before(q Pos) bool {
	return p.Line < q.Line || (p.Line == q.Line && p.Ch < q.Ch)
}

// Span is a half-open text range.
type Span struct {
	Start Pos `json:"start"`
	End   Pos `json:"end"`
}

// Contains reports whether r lies fully inside s.
func (s Span) Contains(r Span) bool {
	return !r.Start.Before(s.Start) && !s.End.Before(r.End)
}

// SyntaxToken is a non-semantic leaf kept only so the source text can be
// reconstructed exactly.
type SyntaxToken struct {
	Tokens string `json:"syntok"`
}

// TokenKey is the JSON key that marks a syntax token in parser output
// and in persisted content lists.
const TokenKey = "syntok"

// Item is one entry of a code node's content: a child reference or a
// syntax token. Tokens are held by pointer so an entry can be located by
// identity even after its neighbours move.
type Item struct {
	Ref   string
	Token *SyntaxToken
}

// RefItem builds a child reference item.
func RefItem(name string) Item { return Item{Ref: name} }

// TokenItem builds a syntax token item.
func TokenItem(text string) Item { return Item{Token: &SyntaxToken{Tokens: text}} }

// IsToken reports whether the item is a syntax token.
func (it Item) IsToken() bool { return it.Token != nil }

// MarshalJSON encodes a reference as a plain string and a token as {"syntok": ...}.
func (it Item) MarshalJSON() ([]byte, error) {
	if it.Token != nil {
		return json.Marshal(it.Token)
	}

	return json.Marshal(it.Ref)
}

// UnmarshalJSON accepts either form written by MarshalJSON.
func (it *Item) UnmarshalJSON(data []byte) error {
	var ref string
	if err := json.Unmarshal(data, &ref); err == nil {
		*it = Item{Ref: ref}

		return nil
	}

	var tok SyntaxToken

	err := json.Unmarshal(data, &tok)
	if err != nil {
		return err
	}

	*it = Item{Token: &tok}

	return nil
}
