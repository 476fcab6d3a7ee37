package account

import (
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// Temporary passwords
// ---------------------------------------------------------------------------

func TestGenerateTemporaryPassword(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		pw, err := GenerateTemporaryPassword(16)
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if len(pw) != 16 {
			t.Fatalf("length = %d, want 16", len(pw))
		}
		for _, r := range pw {
			if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
				t.Fatalf("unexpected character %q in password", r)
			}
		}
		if seen[pw] {
			t.Fatal("duplicate password generated")
		}
		seen[pw] = true
	}
}

// ---------------------------------------------------------------------------
// Snapshot sealing
// ---------------------------------------------------------------------------

func TestSnapshotSealRoundTrip(t *testing.T) {
	plaintext := []byte(`{"metric":"user_signup","value":1}` + "\n")

	envelope, err := EncryptSnapshot(plaintext, "correct horse battery staple")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if parts := strings.Split(envelope, ":"); len(parts) != 4 {
		t.Fatalf("envelope has %d segments, want 4", len(parts))
	}

	decrypted, err := DecryptSnapshot(envelope, "correct horse battery staple")
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(decrypted) != string(plaintext) {
		t.Errorf("round trip mismatch: %q", decrypted)
	}
}

func TestSnapshotSeal_WrongPassphrase(t *testing.T) {
	envelope, err := EncryptSnapshot([]byte("secret rows"), "passphrase-one")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	if _, err := DecryptSnapshot(envelope, "passphrase-two"); err == nil {
		t.Error("decryption with the wrong passphrase must fail")
	}
}

func TestSnapshotSeal_TamperedCiphertext(t *testing.T) {
	envelope, err := EncryptSnapshot([]byte("secret rows"), "passphrase")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Flip a nibble in the ciphertext segment.
	parts := strings.Split(envelope, ":")
	ct := []byte(parts[3])
	if ct[0] == 'a' {
		ct[0] = 'b'
	} else {
		ct[0] = 'a'
	}
	parts[3] = string(ct)

	if _, err := DecryptSnapshot(strings.Join(parts, ":"), "passphrase"); err == nil {
		t.Error("tampered ciphertext must fail authentication")
	}
}

func TestSnapshotSeal_MalformedEnvelope(t *testing.T) {
	for _, envelope := range []string{"", "one:two", "zz:zz:zz:zz"} {
		if _, err := DecryptSnapshot(envelope, "passphrase"); err == nil {
			t.Errorf("envelope %q must be rejected", envelope)
		}
	}
}

func TestSnapshotSeal_FreshSaltPerCall(t *testing.T) {
	a, err := EncryptSnapshot([]byte("rows"), "passphrase")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	b, err := EncryptSnapshot([]byte("rows"), "passphrase")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if a == b {
		t.Error("identical envelopes for identical input, salt or IV is being reused")
	}
}
