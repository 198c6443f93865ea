package ldapwire

import "fmt"

// BindParams is the subset of a BindRequest this bridge inspects: the
// simple bind name, for logging. Authentication material itself is never
// validated (see internal/ldapserver).
type BindParams struct {
	Name string
}

// DecodeBindRequest extracts the bind name from a BindRequest protocolOp:
// SEQUENCE { version INTEGER, name LDAPDN, authentication AuthenticationChoice }.
func DecodeBindRequest(msg *Message) (BindParams, error) {
	children := msg.Op.Children
	if len(children) < 2 {
		return BindParams{}, fmt.Errorf("bindRequest: expected at least 2 elements, got %d", len(children))
	}

	name, _ := children[1].Value.(string)
	return BindParams{Name: name}, nil
}

// SearchParams is the subset of a SearchRequest this bridge acts on: the
// base DN, scope, and the filter's raw TLV bytes (handed verbatim to
// internal/filter, which is schema-loose by design).
type SearchParams struct {
	BaseDN    string
	Scope     int64
	FilterRaw []byte
}

// DecodeSearchRequest extracts SearchParams from a SearchRequest protocolOp:
// SEQUENCE { baseObject LDAPDN, scope ENUMERATED, derefAliases ENUMERATED,
// sizeLimit INTEGER, timeLimit INTEGER, typesOnly BOOLEAN, filter Filter,
// attributes AttributeSelection }.
func DecodeSearchRequest(msg *Message) (SearchParams, error) {
	children := msg.Op.Children
	if len(children) < 7 {
		return SearchParams{}, fmt.Errorf("searchRequest: expected at least 7 elements, got %d", len(children))
	}

	base, _ := children[0].Value.(string)
	scope, _ := children[1].Value.(int64)
	filterRaw := children[6].Bytes()

	return SearchParams{BaseDN: base, Scope: scope, FilterRaw: filterRaw}, nil
}

// DecodeWriteDN extracts the target DN from a write-class protocolOp
// (modifyRequest, addRequest, delRequest, modifyDNRequest, compareRequest),
// for audit logging. modifyRequest/addRequest/modifyDNRequest/compareRequest
// all wrap the DN as the first element of their SEQUENCE; delRequest is
// itself a primitive LDAPDN with no SEQUENCE wrapper, so its raw content
// bytes are the DN.
func DecodeWriteDN(msg *Message) string {
	if len(msg.Op.Children) == 0 {
		if msg.Op.Data == nil {
			return ""
		}
		return msg.Op.Data.String()
	}

	first := msg.Op.Children[0]
	if dn, ok := first.Value.(string); ok {
		return dn
	}
	return string(first.ByteValue)
}
