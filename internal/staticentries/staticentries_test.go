package staticentries

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aredn/aredn-ldap-bridge/internal/model"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "static.csv")

	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}

	return p
}

func TestLoad_EmptyPath(t *testing.T) {
	entries, err := Load("", "dc=local,dc=mesh")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected no entries for empty path, got %+v", entries)
	}
}

func TestLoad_OK(t *testing.T) {
	p := writeTemp(t, "cn,telephone_number\nAREDN Echo Test,sip:10.0.0.10\nAREDN Radio Room,sip:10.0.0.20\n")

	entries, err := Load(p, "dc=local,dc=mesh")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	want := model.StaticEntry("AREDN Echo Test", "sip:10.0.0.10", "dc=local,dc=mesh")
	if entries[0].UID != want.UID || entries[0].CN != want.CN || entries[0].DN != want.DN {
		t.Fatalf("unexpected first entry: %+v want %+v", entries[0], want)
	}
}

func TestLoad_HeaderError(t *testing.T) {
	p := writeTemp(t, "name,number\nfoo,bar\n")

	_, err := Load(p, "dc=local,dc=mesh")
	if err == nil || !strings.Contains(err.Error(), "cn,telephone_number") {
		t.Fatalf("expected header error, got %v", err)
	}
}

func TestLoad_SkipsBlankCN(t *testing.T) {
	p := writeTemp(t, "cn,telephone_number\n,sip:10.0.0.1\nValid,sip:10.0.0.2\n")

	entries, err := Load(p, "dc=local,dc=mesh")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if len(entries) != 1 || entries[0].CN != "Valid" {
		t.Fatalf("expected only valid row, got %+v", entries)
	}
}
