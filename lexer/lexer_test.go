package lexer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sievecore/sievecore/token"
)

func tokenTypes(tokens []token.Token) []token.TokenType {
	types := make([]token.TokenType, len(tokens))
	for i, tok := range tokens {
		types[i] = tok.TokenType
	}
	return types
}

func TestScanPunctuation(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []token.TokenType
	}{
		{
			name:  "block delimiters and separators",
			input: "if true {} ; ,",
			want: []token.TokenType{
				token.IDENTIFIER, token.IDENTIFIER, token.LBRACE, token.RBRACE,
				token.SEMICOLON, token.COMMA, token.EOF,
			},
		},
		{
			name:  "argument list parens and brackets",
			input: `fileinto("INBOX") ["a", "b"]`,
			want: []token.TokenType{
				token.IDENTIFIER, token.LPAREN, token.STRING, token.RPAREN,
				token.LBRACKET, token.STRING, token.COMMA, token.STRING, token.RBRACKET,
				token.EOF,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lex := New(tt.input, 0)
			tokens, errs := lex.Scan()
			require.Empty(t, errs)
			assert.Equal(t, tt.want, tokenTypes(tokens))
		})
	}
}

func TestScanTag(t *testing.T) {
	lex := New(`header :contains "Subject" "test"`, 0)
	tokens, errs := lex.Scan()
	require.Empty(t, errs)

	require.Len(t, tokens, 5)
	assert.Equal(t, token.IDENTIFIER, tokens[0].TokenType)
	assert.Equal(t, token.TAG, tokens[1].TokenType)
	assert.Equal(t, "contains", tokens[1].Lexeme)
	assert.Equal(t, token.STRING, tokens[2].TokenType)
	assert.Equal(t, "Subject", tokens[2].Literal)
}

func TestScanNumberQuantitySuffix(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  int64
	}{
		{name: "plain", input: "100", want: 100},
		{name: "kilo", input: "1K", want: 1024},
		{name: "mega", input: "2M", want: 2 * 1024 * 1024},
		{name: "giga", input: "1G", want: 1024 * 1024 * 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lex := New(tt.input, 0)
			tokens, errs := lex.Scan()
			require.Empty(t, errs)
			require.Len(t, tokens, 2)
			assert.Equal(t, token.NUMBER, tokens[0].TokenType)
			assert.Equal(t, tt.want, tokens[0].Literal)
		})
	}
}

func TestScanQuotedStringEscapes(t *testing.T) {
	lex := New(`"a \"quoted\" \\word"`, 0)
	tokens, errs := lex.Scan()
	require.Empty(t, errs)
	require.Len(t, tokens, 2)
	assert.Equal(t, `a "quoted" \word`, tokens[0].Literal)
}

func TestScanMultilineString(t *testing.T) {
	input := "text: # this is a comment\r\nfirst line\r\n..escaped dot\r\n.\r\n"
	lex := New(input, 0)
	tokens, errs := lex.Scan()
	require.Empty(t, errs)
	require.Len(t, tokens, 2)
	assert.Equal(t, "first line\r\n.escaped dot", tokens[0].Literal)
}

func TestScanComments(t *testing.T) {
	input := "# line comment\nif /* bracket\ncomment */ true {}"
	lex := New(input, 0)
	tokens, errs := lex.Scan()
	require.Empty(t, errs)
	assert.Equal(t, []token.TokenType{
		token.IDENTIFIER, token.IDENTIFIER, token.LBRACE, token.RBRACE, token.EOF,
	}, tokenTypes(tokens))
}

func TestScanNestedBracketComment(t *testing.T) {
	input := "if /* outer /* inner */ still outer */ true {}"
	lex := New(input, 0)
	tokens, errs := lex.Scan()
	require.Empty(t, errs)
	assert.Equal(t, []token.TokenType{
		token.IDENTIFIER, token.IDENTIFIER, token.LBRACE, token.RBRACE, token.EOF,
	}, tokenTypes(tokens))
}

func TestScanUnterminatedStringReportsError(t *testing.T) {
	lex := New(`"never closed`, 0)
	_, errs := lex.Scan()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unterminated string literal")
}

func TestScanUnterminatedBracketCommentReportsError(t *testing.T) {
	lex := New("/* never closed", 0)
	_, errs := lex.Scan()
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "unterminated comment")
}

func TestScanAccumulatesMultipleErrors(t *testing.T) {
	lex := New("@ true $ false", 0)
	_, errs := lex.Scan()
	require.Len(t, errs, 2)
}

func TestScanScriptIDPropagation(t *testing.T) {
	lex := New("true", 7)
	tokens, errs := lex.Scan()
	require.Empty(t, errs)
	for _, tok := range tokens {
		assert.Equal(t, 7, tok.ScriptID)
	}
}
