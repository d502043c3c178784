package otp

import (
	"regexp"
	"strings"
	"testing"
)

var backupCodePattern = regexp.MustCompile(`^[0-9A-F]{4}-[0-9A-F]{4}$`)

func TestGenerateBackupCodesFormatAndUniqueness(t *testing.T) {
	codes, err := GenerateBackupCodes(DefaultBackupCodeCount)
	if err != nil {
		t.Fatalf("GenerateBackupCodes failed: %v", err)
	}
	if len(codes) != DefaultBackupCodeCount {
		t.Fatalf("expected %d codes, got %d", DefaultBackupCodeCount, len(codes))
	}
	seen := map[string]bool{}
	for _, c := range codes {
		if !backupCodePattern.MatchString(c) {
			t.Fatalf("code %q does not match XXXX-XXXX", c)
		}
		if seen[c] {
			t.Fatalf("duplicate code %q", c)
		}
		seen[c] = true
	}

	if _, err := GenerateBackupCodes(0); err == nil {
		t.Fatal("expected error for zero count")
	}
}

func TestConsumeBackupCodeIsSingleUse(t *testing.T) {
	codes, err := GenerateBackupCodes(3)
	if err != nil {
		t.Fatalf("GenerateBackupCodes failed: %v", err)
	}
	stored := HashBackupCodes("u1", codes)

	ok, remaining := ConsumeBackupCode("u1", stored, codes[1])
	if !ok {
		t.Fatal("expected first use to succeed")
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining, got %d", len(remaining))
	}

	ok, after := ConsumeBackupCode("u1", remaining, codes[1])
	if ok {
		t.Fatal("expected second use of the same code to fail")
	}
	if len(after) != 2 {
		t.Fatalf("expected set unchanged on miss, got %d", len(after))
	}
}

func TestConsumeBackupCodeAcceptsLooseInput(t *testing.T) {
	stored := HashBackupCodes("u1", []string{"ABCD-1234"})
	for _, in := range []string{"abcd-1234", "  ABCD-1234 ", "abcd1234"} {
		if ok, _ := ConsumeBackupCode("u1", stored, in); !ok {
			t.Fatalf("expected %q to match", in)
		}
	}
}

func TestConsumeBackupCodeIsBoundToUser(t *testing.T) {
	stored := HashBackupCodes("u1", []string{"ABCD-1234"})
	if ok, _ := ConsumeBackupCode("u2", stored, "ABCD-1234"); ok {
		t.Fatal("expected digest bound to a different user to miss")
	}
}

func TestHashBackupCodeDoesNotContainPlaintext(t *testing.T) {
	digest := HashBackupCode("u1", "ABCD-1234")
	if len(digest) != 64 {
		t.Fatalf("expected hex sha256 digest, got %d chars", len(digest))
	}
	if strings.Contains(strings.ToUpper(digest), "ABCD1234") {
		t.Fatal("digest leaks the code")
	}
}

func TestIsBackupCodeFormat(t *testing.T) {
	valid := []string{"ABCD-1234", "abcd-ef01", "0000FFFF"}
	invalid := []string{"", "ABCD-123", "ABCG-1234", "ABCD_1234", "ABCD-12345"}
	for _, c := range valid {
		if !IsBackupCodeFormat(c) {
			t.Fatalf("expected %q valid", c)
		}
	}
	for _, c := range invalid {
		if IsBackupCodeFormat(c) {
			t.Fatalf("expected %q invalid", c)
		}
	}
}
