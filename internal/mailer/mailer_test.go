package mailer

import (
	"strings"
	"testing"
)

func TestBodiesContainCode(t *testing.T) {
	code := "482913"
	if !strings.Contains(TextBody(code), code) {
		t.Fatalf("expected text body to contain the code")
	}
	if !strings.Contains(HTMLBody(code), code) {
		t.Fatalf("expected html body to contain the code")
	}
}

func TestBodiesMentionExpiry(t *testing.T) {
	if !strings.Contains(TextBody("000000"), "10 minutes") {
		t.Fatalf("expected text body to mention the validity window")
	}
	if !strings.Contains(HTMLBody("000000"), "10 minutes") {
		t.Fatalf("expected html body to mention the validity window")
	}
}
