package filter

import (
	"testing"

	ber "github.com/go-asn1-ber/asn1-ber"
)

// presentFilterBytes builds a raw context-tag-7 (present) Filter TLV for attrName.
// The attribute name itself is irrelevant to this walker — presence always
// yields PRESENT regardless of which attribute was named.
func presentFilterBytes(attrName string) []byte {
	p := ber.NewString(ber.ClassContext, ber.TypePrimitive, 7, attrName, "present")
	return p.Bytes()
}

// equalityFilterBytes builds a raw context-tag-3 (equalityMatch) Filter
// TLV: an AVA of { type, value }.
func equalityFilterBytes(attrType, value string) []byte {
	ava := ber.Encode(ber.ClassContext, ber.TypeConstructed, 3, nil, "equalityMatch")
	ava.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attrType, "type"))
	ava.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, value, "value"))
	return ava.Bytes()
}

// substringFilterBytes builds a raw context-tag-4 (substrings) Filter TLV
// with one "any" piece (context tag 1).
func substringFilterBytes(attrType string, anyPiece string) []byte {
	sub := ber.Encode(ber.ClassContext, ber.TypeConstructed, 4, nil, "substrings")
	sub.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, attrType, "type"))

	pieces := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "substrings")
	pieces.AppendChild(ber.NewString(ber.ClassContext, ber.TypePrimitive, 1, anyPiece, "any"))
	sub.AppendChild(pieces)

	return sub.Bytes()
}

func andFilterBytes(operands ...[]byte) []byte {
	and := ber.Encode(ber.ClassContext, ber.TypeConstructed, 0, nil, "and")
	for _, op := range operands {
		and.AppendChild(ber.DecodePacket(op))
	}
	return and.Bytes()
}

func orFilterBytes(operands ...[]byte) []byte {
	or := ber.Encode(ber.ClassContext, ber.TypeConstructed, 1, nil, "or")
	for _, op := range operands {
		or.AppendChild(ber.DecodePacket(op))
	}
	return or.Bytes()
}

func notFilterBytes(operand []byte) []byte {
	not := ber.Encode(ber.ClassContext, ber.TypeConstructed, 2, nil, "not")
	not.AppendChild(ber.DecodePacket(operand))
	return not.Bytes()
}

func TestParse_Present(t *testing.T) {
	node := Parse(presentFilterBytes("objectClass"))
	if node.Kind != KindPresent {
		t.Fatalf("expected PRESENT, got %v", node.Kind)
	}
}

func TestParse_EqualityMatch(t *testing.T) {
	node := Parse(equalityFilterBytes("cn", "Shack"))
	if node.Kind != KindTokens {
		t.Fatalf("expected TOKENS, got %v", node.Kind)
	}
	if len(node.Tokens) != 1 || node.Tokens[0] != "Shack" {
		t.Fatalf("unexpected tokens: %+v", node.Tokens)
	}
}

func TestParse_Substrings(t *testing.T) {
	node := Parse(substringFilterBytes("cn", "node"))
	if node.Kind != KindTokens {
		t.Fatalf("expected TOKENS, got %v", node.Kind)
	}
	if len(node.Tokens) != 1 || node.Tokens[0] != "node" {
		t.Fatalf("unexpected tokens: %+v", node.Tokens)
	}
}

func TestParse_AndOrNot(t *testing.T) {
	and := Parse(andFilterBytes(presentFilterBytes("objectClass"), equalityFilterBytes("cn", "x")))
	if and.Kind != KindAnd || len(and.Children) != 2 {
		t.Fatalf("unexpected AND node: %+v", and)
	}

	or := Parse(orFilterBytes(presentFilterBytes("objectClass"), equalityFilterBytes("cn", "x")))
	if or.Kind != KindOr || len(or.Children) != 2 {
		t.Fatalf("unexpected OR node: %+v", or)
	}

	not := Parse(notFilterBytes(presentFilterBytes("objectClass")))
	if not.Kind != KindNot || not.Child == nil || not.Child.Kind != KindPresent {
		t.Fatalf("unexpected NOT node: %+v", not)
	}
}

func TestParse_MalformedCollapsesToPresent(t *testing.T) {
	node := Parse([]byte{0xA3, 0x7F, 0x01}) // claims 127 bytes of content, has 1
	if node.Kind != KindPresent {
		t.Fatalf("expected PRESENT fail-open, got %v", node.Kind)
	}
}

func TestParse_DepthCapCollapsesDeepestToPresent(t *testing.T) {
	// Build a chain of 25 nested NOTs, exceeding maxFilterDepth (20).
	inner := presentFilterBytes("objectClass")
	for i := 0; i < 25; i++ {
		inner = notFilterBytes(inner)
	}

	node := Parse(inner)
	// The outer nodes decode fine; walk down until we hit a PRESENT
	// collapse forced by the depth cap rather than a genuine present filter.
	depth := 0
	for node.Kind == KindNot {
		node = node.Child
		depth++
	}
	if depth >= 25 {
		t.Fatalf("expected depth cap to truncate the NOT chain, walked %d levels", depth)
	}
}

func TestMatch_TokensCaseInsensitiveSubstring(t *testing.T) {
	node := Parse(equalityFilterBytes("cn", "SHACK"))
	if !Match(node, "shack radio room sip:10.0.0.5") {
		t.Fatal("expected case-insensitive substring match")
	}
	if Match(node, "other entry") {
		t.Fatal("expected no match against unrelated blob")
	}
}

func TestMatch_AndOrNotSemantics(t *testing.T) {
	a := tokensNode([]string{"shack"})
	b := tokensNode([]string{"missing-token"})

	and := &Node{Kind: KindAnd, Children: []*Node{a, b}}
	if Match(and, "shack room") {
		t.Fatal("AND with one failing child must not match")
	}

	or := &Node{Kind: KindOr, Children: []*Node{a, b}}
	if !Match(or, "shack room") {
		t.Fatal("OR with one matching child must match")
	}

	not := &Node{Kind: KindNot, Child: b}
	if !Match(not, "shack room") {
		t.Fatal("NOT of a non-matching child must match")
	}
}

func TestMatch_PresentAlwaysMatches(t *testing.T) {
	if !Match(present(), "anything at all") {
		t.Fatal("PRESENT must always match")
	}
}
