// Package model defines the directory entry shape served to LDAP clients
// and the pure projection from an upstream AREDN service record into one.
package model

import (
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
)

// ObjectClasses is the fixed objectClass tuple emitted for every entry.
var ObjectClasses = [...]string{"top", "inetOrgPerson"}

// Entry is an immutable directory entry projected from an upstream service
// record (or from the static overlay, see staticentries.Load).
type Entry struct {
	UID             string
	CN              string
	TelephoneNumber string
	DN              string
	Link            string
	ObjectClasses   []string
}

// trailingTag strips one trailing bracketed marker like " [phone]" from a
// service display name.
var trailingTag = regexp.MustCompile(`\s*\[[^\]]+\]\s*$`)

// StableUID derives the stable 12-character lowercase hex uid for a given
// ip/name pair: the first 12 hex digits of SHA-1(ip + "|" + name).
func StableUID(ip, name string) string {
	sum := sha1.Sum([]byte(ip + "|" + name))
	return hex.EncodeToString(sum[:])[:12]
}

// Service is the subset of an upstream JSON service record this bridge
// consumes.
type Service struct {
	Name     string
	IP       string
	Link     string
	Protocol string
}

// displayName strips a trailing bracketed tag from a service name.
func displayName(name string) string {
	return strings.TrimSpace(trailingTag.ReplaceAllString(name, ""))
}

// telephoneNumber derives the sip: telephone number attribute from an ip and
// optional link. A link of the form "sip:..." (case-insensitive) has its
// "sip:" prefix stripped and any "/" removed from the remainder; otherwise
// the raw ip is used.
func telephoneNumber(ip, link string) string {
	if len(link) >= 4 && strings.EqualFold(link[:4], "sip:") {
		suffix := strings.ReplaceAll(link[4:], "/", "")
		if suffix == "" {
			return "sip:" + ip
		}
		return "sip:" + suffix
	}
	return "sip:" + ip
}

// EntriesFromServices projects a list of upstream service records into
// directory entries under baseDN. Records with an empty name or ip are
// dropped. Insertion order is preserved.
func EntriesFromServices(services []Service, baseDN string) []Entry {
	results := make([]Entry, 0, len(services))
	for _, svc := range services {
		name := strings.TrimSpace(svc.Name)
		ip := strings.TrimSpace(svc.IP)
		link := strings.TrimSpace(svc.Link)
		if name == "" || ip == "" {
			continue
		}
		uid := StableUID(ip, name)
		results = append(results, Entry{
			UID:             uid,
			CN:              displayName(name),
			TelephoneNumber: telephoneNumber(ip, link),
			DN:              "uid=" + uid + "," + baseDN,
			Link:            link,
			ObjectClasses:   ObjectClasses[:],
		})
	}
	return results
}

// StaticEntry builds a directory entry for a locally configured static
// overlay row (see internal/staticentries). Its uid is derived the same way
// as upstream entries, using the fixed pseudo-ip "static" so static rows
// never collide with a real upstream ip/name pair by construction.
func StaticEntry(cn, telephoneNumber, baseDN string) Entry {
	uid := StableUID("static", cn)
	return Entry{
		UID:             uid,
		CN:              cn,
		TelephoneNumber: telephoneNumber,
		DN:              "uid=" + uid + "," + baseDN,
		ObjectClasses:   ObjectClasses[:],
	}
}

// SearchBlob returns the lowercased text blob filter tokens are matched
// against: "cn telephoneNumber link".
func (e Entry) SearchBlob() string {
	return strings.ToLower(e.CN + " " + e.TelephoneNumber + " " + e.Link)
}
