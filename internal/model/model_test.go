package model

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"
)

func TestStableUID(t *testing.T) {
	sum := sha1.Sum([]byte("10.0.0.10|AREDN Echo Test"))
	want := hex.EncodeToString(sum[:])[:12]

	got := StableUID("10.0.0.10", "AREDN Echo Test")
	if got != want {
		t.Fatalf("StableUID mismatch: got %s want %s", got, want)
	}

	if len(got) != 12 {
		t.Fatalf("expected 12 hex chars, got %d (%s)", len(got), got)
	}

	// deterministic
	if got2 := StableUID("10.0.0.10", "AREDN Echo Test"); got2 != got {
		t.Fatalf("StableUID not deterministic: %s vs %s", got, got2)
	}
}

func TestEntriesFromServices_Projection(t *testing.T) {
	services := []Service{
		{Name: "Shack [phone]", IP: "10.0.0.5", Link: "sip:10.0.0.5"},
	}

	entries := EntriesFromServices(services, "dc=local,dc=mesh")
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	e := entries[0]
	if e.CN != "Shack" {
		t.Fatalf("expected cn=Shack, got %q", e.CN)
	}
	if e.TelephoneNumber != "sip:10.0.0.5" {
		t.Fatalf("expected telephoneNumber=sip:10.0.0.5, got %q", e.TelephoneNumber)
	}

	wantUID := StableUID("10.0.0.5", "Shack [phone]")
	if e.DN != "uid="+wantUID+",dc=local,dc=mesh" {
		t.Fatalf("unexpected dn: %q", e.DN)
	}
}

func TestEntriesFromServices_DropsIncomplete(t *testing.T) {
	services := []Service{
		{Name: "", IP: "10.0.0.1"},
		{Name: "No IP", IP: ""},
		{Name: "Valid", IP: "10.0.0.2"},
	}

	entries := EntriesFromServices(services, "dc=local,dc=mesh")
	if len(entries) != 1 || entries[0].CN != "Valid" {
		t.Fatalf("expected only the valid entry, got %+v", entries)
	}
}

func TestTelephoneNumber_NonSipLink(t *testing.T) {
	entries := EntriesFromServices([]Service{{Name: "Node", IP: "10.0.0.9", Link: "http://10.0.0.9"}}, "dc=local,dc=mesh")
	if entries[0].TelephoneNumber != "sip:10.0.0.9" {
		t.Fatalf("expected fallback to ip, got %q", entries[0].TelephoneNumber)
	}
}

func TestSearchBlob(t *testing.T) {
	e := Entry{CN: "Shack", TelephoneNumber: "sip:10.0.0.5", Link: "sip:10.0.0.5"}
	blob := e.SearchBlob()
	if blob != "shack sip:10.0.0.5 sip:10.0.0.5" {
		t.Fatalf("unexpected blob: %q", blob)
	}
}
