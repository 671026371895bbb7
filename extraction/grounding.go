package extraction

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// groundingPattern matches one grounding reference in raw model output:
// <|ref|>{label}<|/ref|><|det|>{coordinates}<|/det|>. Matching is non-greedy
// and spans newlines.
var groundingPattern = regexp.MustCompile(`(?s)<\|ref\|>(.*?)<\|/ref\|><\|det\|>(.*?)<\|/det\|>`)

// GroundingRef is one tagged region from model output: an element type label
// and the unparsed coordinate literal that follows it.
type GroundingRef struct {
	Label  string
	Coords string
}

// ParseGroundingReferences extracts grounding references from raw model
// output in order of appearance. Labels are taken verbatim and duplicates are
// kept.
func ParseGroundingReferences(text string) []GroundingRef {
	matches := groundingPattern.FindAllStringSubmatch(text, -1)
	refs := make([]GroundingRef, 0, len(matches))
	for _, m := range matches {
		refs = append(refs, GroundingRef{Label: m[1], Coords: m[2]})
	}
	return refs
}

// ParseCoordinates parses a coordinate literal like
// "[[10, 20, 300, 400], [15, 25, 35, 45]]" into a list of coordinate tuples.
// Only digits, signs, decimal points, commas, brackets and whitespace are
// accepted; any other token fails the parse. The literal is model output and
// must never be evaluated.
func ParseCoordinates(literal string) ([][]float64, error) {
	p := &coordParser{input: literal}
	p.skipSpace()
	coords, err := p.parseOuterList()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("unexpected trailing input at offset %d", p.pos)
	}
	return coords, nil
}

// coordParser is a minimal recursive-descent parser for the bracketed
// numeric-list grammar.
type coordParser struct {
	input string
	pos   int
}

func (p *coordParser) parseOuterList() ([][]float64, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var lists [][]float64
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return lists, nil
	}
	for {
		inner, err := p.parseInnerList()
		if err != nil {
			return nil, err
		}
		lists = append(lists, inner)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			p.skipSpace()
		case ']':
			p.pos++
			return lists, nil
		default:
			return nil, fmt.Errorf("expected ',' or ']' at offset %d", p.pos)
		}
	}
}

func (p *coordParser) parseInnerList() ([]float64, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var numbers []float64
	p.skipSpace()
	if p.peek() == ']' {
		p.pos++
		return numbers, nil
	}
	for {
		n, err := p.parseNumber()
		if err != nil {
			return nil, err
		}
		numbers = append(numbers, n)
		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
			p.skipSpace()
		case ']':
			p.pos++
			return numbers, nil
		default:
			return nil, fmt.Errorf("expected ',' or ']' at offset %d", p.pos)
		}
	}
}

func (p *coordParser) parseNumber() (float64, error) {
	start := p.pos
	if p.peek() == '-' {
		p.pos++
	}
	digits := 0
	for isDigit(p.peek()) {
		p.pos++
		digits++
	}
	if p.peek() == '.' {
		p.pos++
		for isDigit(p.peek()) {
			p.pos++
			digits++
		}
	}
	if digits == 0 {
		return 0, fmt.Errorf("expected number at offset %d", start)
	}
	n, err := strconv.ParseFloat(p.input[start:p.pos], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q at offset %d", p.input[start:p.pos], start)
	}
	return n, nil
}

func (p *coordParser) expect(c byte) error {
	if p.peek() != c {
		return fmt.Errorf("expected %q at offset %d", string(c), p.pos)
	}
	p.pos++
	return nil
}

func (p *coordParser) peek() byte {
	if p.pos >= len(p.input) {
		return 0
	}
	return p.input[p.pos]
}

func (p *coordParser) skipSpace() {
	for p.pos < len(p.input) && isSpace(p.input[p.pos]) {
		p.pos++
	}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isSpace(c byte) bool { return strings.ContainsRune(" \t\r\n", rune(c)) }
