package auth

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDigestIsDeterministic(t *testing.T) {
	if Digest("hunter2") != Digest("hunter2") {
		t.Fatalf("digest must be deterministic")
	}
}

func TestVerify(t *testing.T) {
	d := Digest("hunter2")
	if !Verify("hunter2", d) {
		t.Fatalf("expected verify to succeed for matching password")
	}
	if Verify("wrong", d) {
		t.Fatalf("expected verify to fail for wrong password")
	}
}

func TestNFCNormalizationMakesEquivalentFormsMatch(t *testing.T) {
	composed := "café"   // é as a single code point
	decomposed := "café" // e + combining acute accent
	if Digest(composed) != Digest(decomposed) {
		t.Fatalf("NFC-equivalent passwords must hash identically")
	}
}

func TestCreateCredentialsNotRequired(t *testing.T) {
	c := NewCreateCredentials(false)
	if !c.CanCreate("anything") {
		t.Fatalf("expected open create-board policy to allow any password")
	}
}

func TestCreateCredentialsRequired(t *testing.T) {
	c := NewCreateCredentials(true)
	if err := c.LoadFromJSON([]byte(`["` + Digest("letmein") + `"]`)); err != nil {
		t.Fatalf("load: %v", err)
	}
	if !c.CanCreate("letmein") {
		t.Fatalf("expected allowed password to be accepted")
	}
	if c.CanCreate("nope") {
		t.Fatalf("expected disallowed password to be rejected")
	}
}

func TestWatchPasswdFileReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "passwd.json")
	if err := os.WriteFile(path, []byte(`[]`), 0640); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	creds := NewCreateCredentials(true)
	stop, err := WatchPasswdFile(path, creds)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer stop()

	if creds.CanCreate("letmein") {
		t.Fatalf("password should not be allowed before it is added")
	}

	updated := `["` + Digest("letmein") + `"]`
	if err := os.WriteFile(path, []byte(updated), 0640); err != nil {
		t.Fatalf("rewrite file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if creds.CanCreate("letmein") {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected hot reload to pick up the updated passwd.json")
}
