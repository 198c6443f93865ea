package ldapwire

import (
	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"

	"github.com/aredn/aredn-ldap-bridge/internal/model"
)

// envelope builds the outer LDAPMessage SEQUENCE { messageID INTEGER, ... }
// and returns it; the caller appends the protocolOp.
func envelope(messageID int64) *ber.Packet {
	msg := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "LDAPMessage")
	msg.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagInteger, messageID, "messageID"))
	return msg
}

// resultOp builds the common { resultCode ENUMERATED, matchedDN LDAPDN,
// diagnosticMessage LDAPString } body shared by every result PDU. matchedDN
// and diagnosticMessage are always emitted empty, per the bridge's fixed
// response shape.
func resultOp(appTag ber.Tag, resultCode int64) *ber.Packet {
	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, appTag, nil, "protocolOp")
	op.AppendChild(ber.NewInteger(ber.ClassUniversal, ber.TypePrimitive, ber.TagEnumerated, resultCode, "resultCode"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "matchedDN"))
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, "", "diagnosticMessage"))
	return op
}

func encodeResult(appTag ber.Tag, messageID int64, resultCode int64) []byte {
	msg := envelope(messageID)
	msg.AppendChild(resultOp(appTag, resultCode))
	return msg.Bytes()
}

// EncodeBindResponse builds a bindResponse PDU.
func EncodeBindResponse(messageID int64, resultCode int64) []byte {
	return encodeResult(ber.Tag(ldap.ApplicationBindResponse), messageID, resultCode)
}

// EncodeSearchResultDone builds the terminal searchResDone PDU of a search.
func EncodeSearchResultDone(messageID int64, resultCode int64) []byte {
	return encodeResult(ber.Tag(ldap.ApplicationSearchResultDone), messageID, resultCode)
}

// EncodeModifyResponse builds a modifyResponse PDU.
func EncodeModifyResponse(messageID int64, resultCode int64) []byte {
	return encodeResult(ber.Tag(ldap.ApplicationModifyResponse), messageID, resultCode)
}

// EncodeAddResponse builds an addResponse PDU.
func EncodeAddResponse(messageID int64, resultCode int64) []byte {
	return encodeResult(ber.Tag(ldap.ApplicationAddResponse), messageID, resultCode)
}

// EncodeDelResponse builds a delResponse PDU.
func EncodeDelResponse(messageID int64, resultCode int64) []byte {
	return encodeResult(ber.Tag(ldap.ApplicationDelResponse), messageID, resultCode)
}

// EncodeModifyDNResponse builds a modifyDNResponse PDU.
func EncodeModifyDNResponse(messageID int64, resultCode int64) []byte {
	return encodeResult(ber.Tag(ldap.ApplicationModifyDNResponse), messageID, resultCode)
}

// EncodeCompareResponse builds a compareResponse PDU.
func EncodeCompareResponse(messageID int64, resultCode int64) []byte {
	return encodeResult(ber.Tag(ldap.ApplicationCompareResponse), messageID, resultCode)
}

// EncodeExtendedResponse builds an extendedResponse PDU for the fixed
// "unsupported" case: this bridge implements no extended operations.
func EncodeExtendedResponse(messageID int64, resultCode int64) []byte {
	return encodeResult(ber.Tag(ldap.ApplicationExtendedResponse), messageID, resultCode)
}

// EncodeSearchResultEntry builds a searchResEntry PDU for one directory
// entry, emitting uid, cn, telephoneNumber, and objectClass attributes in
// that order.
func EncodeSearchResultEntry(messageID int64, entry model.Entry) []byte {
	msg := envelope(messageID)

	op := ber.Encode(ber.ClassApplication, ber.TypeConstructed, ber.Tag(ldap.ApplicationSearchResultEntry), nil, "searchResEntry")
	op.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, entry.DN, "objectName"))

	attrs := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "attributes")
	attrs.AppendChild(encodeAttribute("uid", []string{entry.UID}))
	attrs.AppendChild(encodeAttribute("cn", []string{entry.CN}))
	attrs.AppendChild(encodeAttribute("telephoneNumber", []string{entry.TelephoneNumber}))
	attrs.AppendChild(encodeAttribute("objectClass", entry.ObjectClasses))
	op.AppendChild(attrs)

	msg.AppendChild(op)
	return msg.Bytes()
}

func encodeAttribute(name string, values []string) *ber.Packet {
	attr := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSequence, nil, "partialAttribute")
	attr.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, name, "type"))

	vals := ber.Encode(ber.ClassUniversal, ber.TypeConstructed, ber.TagSet, nil, "vals")
	for _, v := range values {
		vals.AppendChild(ber.NewString(ber.ClassUniversal, ber.TypePrimitive, ber.TagOctetString, v, "val"))
	}
	attr.AppendChild(vals)

	return attr
}
