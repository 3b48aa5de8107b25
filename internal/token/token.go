// Package token defines the lexical tags produced by internal/lexer.
//
// Tags below 128 are single-byte punctuation passed through verbatim (the
// token's value equals the byte itself, e.g. '(' or ';'). Tags at or above
// 128 are the named classes from the specification, ordered so that the
// operator tags increase with precedence: code that compares two operator
// tags with >= is relying on this ordering.
package token

const (
	Num = 128 + iota // integer or character literal
	Id               // user identifier, not yet known to be a keyword

	Char
	Else
	Enum
	If
	Int
	Return
	Sizeof
	While

	// operators, ascending precedence
	Assign // =
	Cond   // ?
	Lor    // ||
	Lan    // &&
	Or     // |
	Xor    // ^
	And    // &
	Eq     // ==
	Ne     // !=
	Lt     // <
	Gt     // >
	Le     // <=
	Ge     // >=
	Shl    // <<
	Shr    // >>
	Add    // +
	Sub    // -
	Mul    // *
	Div    // /
	Mod    // %
	Inc    // ++
	Dec    // --
	Brak   // [
)

// String punctuation is carried through the lexer as the rune itself; these
// aliases exist only so call sites can write token.Quote instead of a bare
// '"' literal.
const (
	Quote      int = '"'
	Apostrophe int = '\''
)

var names = map[int]string{
	Num: "Num", Id: "Id", Char: "Char", Else: "Else", Enum: "Enum", If: "If",
	Int: "Int", Return: "Return", Sizeof: "Sizeof", While: "While",
	Assign: "Assign", Cond: "Cond", Lor: "Lor", Lan: "Lan", Or: "Or", Xor: "Xor",
	And: "And", Eq: "Eq", Ne: "Ne", Lt: "Lt", Gt: "Gt", Le: "Le", Ge: "Ge",
	Shl: "Shl", Shr: "Shr", Add: "Add", Sub: "Sub", Mul: "Mul", Div: "Div",
	Mod: "Mod", Inc: "Inc", Dec: "Dec", Brak: "Brak",
}

// String renders a token tag for diagnostics and trace output. Punctuation
// tags render as the literal character.
func String(tok int) string {
	if name, ok := names[tok]; ok {
		return name
	}
	if tok == 0 {
		return "EOF"
	}
	if tok > 0 && tok < 128 {
		return string(rune(tok))
	}
	return "?"
}
