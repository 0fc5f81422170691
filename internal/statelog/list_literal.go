package statelog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	listOpenSymbol                 = '['
	listCloseSymbol                = ']'
	listSeparatorSymbol            = ','
	singleQuoteSymbol              = '\''
	doubleQuoteSymbol              = '"'
	escapeSymbol                   = '\\'
	hexadecimalBase                = 16
	invalidListLiteralTemplate     = "invalid view list %q: %w"
	invalidEscapeSequenceTemplate  = "invalid escape sequence \\%c"
	unexpectedListSymbolTemplate   = "unexpected %q"
	hexadecimalEscapeWidthByte     = 2
	hexadecimalEscapeWidthRune     = 4
	hexadecimalEscapeWidthWideRune = 8
)

var (
	errListNotBracketed       = errors.New("expected a bracketed list")
	errUnterminatedListString = errors.New("unterminated string")
)

// parseListLiteral decodes a list of quoted strings such as ['Overview', "Owner's view"], the
// form logs written by the earlier Python tool carry in their view columns. Both quote styles
// and the usual backslash escapes are accepted; a trailing comma is allowed.
func parseListLiteral(value string) ([]string, error) {
	body := strings.TrimSpace(value)
	if len(body) < 2 || body[0] != listOpenSymbol || body[len(body)-1] != listCloseSymbol {
		return nil, fmt.Errorf(invalidListLiteralTemplate, value, errListNotBracketed)
	}

	remaining := strings.TrimSpace(body[1 : len(body)-1])
	var items []string
	for len(remaining) > 0 {
		quote := remaining[0]
		if quote != singleQuoteSymbol && quote != doubleQuoteSymbol {
			return nil, fmt.Errorf(invalidListLiteralTemplate, value, fmt.Errorf(unexpectedListSymbolTemplate, remaining[:1]))
		}

		item, rest, scanError := scanQuotedLiteral(remaining[1:], quote)
		if scanError != nil {
			return nil, fmt.Errorf(invalidListLiteralTemplate, value, scanError)
		}
		items = append(items, item)

		rest = strings.TrimSpace(rest)
		if len(rest) == 0 {
			break
		}
		if rest[0] != listSeparatorSymbol {
			return nil, fmt.Errorf(invalidListLiteralTemplate, value, fmt.Errorf(unexpectedListSymbolTemplate, rest[:1]))
		}
		remaining = strings.TrimSpace(rest[1:])
	}
	return items, nil
}

// scanQuotedLiteral reads up to the closing quote and returns the decoded text and the input after it.
func scanQuotedLiteral(input string, quote byte) (string, string, error) {
	var builder strings.Builder
	for index := 0; index < len(input); index++ {
		current := input[index]
		if current == quote {
			return builder.String(), input[index+1:], nil
		}
		if current != escapeSymbol {
			builder.WriteByte(current)
			continue
		}

		index++
		if index >= len(input) {
			return "", "", errUnterminatedListString
		}
		switch escaped := input[index]; escaped {
		case 'n':
			builder.WriteByte('\n')
		case 't':
			builder.WriteByte('\t')
		case 'r':
			builder.WriteByte('\r')
		case escapeSymbol, singleQuoteSymbol, doubleQuoteSymbol:
			builder.WriteByte(escaped)
		case 'x', 'u', 'U':
			width := hexadecimalEscapeWidthByte
			if escaped == 'u' {
				width = hexadecimalEscapeWidthRune
			} else if escaped == 'U' {
				width = hexadecimalEscapeWidthWideRune
			}
			if index+width >= len(input) {
				return "", "", fmt.Errorf(invalidEscapeSequenceTemplate, escaped)
			}
			codePoint, parseError := strconv.ParseUint(input[index+1:index+1+width], hexadecimalBase, 32)
			if parseError != nil || !utf8.ValidRune(rune(codePoint)) {
				return "", "", fmt.Errorf(invalidEscapeSequenceTemplate, escaped)
			}
			builder.WriteRune(rune(codePoint))
			index += width
		default:
			builder.WriteByte(escapeSymbol)
			builder.WriteByte(escaped)
		}
	}
	return "", "", errUnterminatedListString
}
