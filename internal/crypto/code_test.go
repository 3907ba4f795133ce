package crypto

import "testing"

func TestGenerateVerificationCodeFormat(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := GenerateVerificationCode()
		if err != nil {
			t.Fatalf("generate error: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected 6 characters, got %q", code)
		}
		for _, c := range code {
			if c < '0' || c > '9' {
				t.Fatalf("expected digits only, got %q", code)
			}
		}
	}
}

func TestGenerateVerificationCodeDistribution(t *testing.T) {
	counts := make(map[rune]int)
	samples := 5000
	for i := 0; i < samples; i++ {
		code, err := GenerateVerificationCode()
		if err != nil {
			t.Fatalf("generate error: %v", err)
		}
		for _, c := range code {
			counts[c]++
		}
	}
	// 30000 digit samples, expected ~3000 per digit. A wide band keeps the
	// test stable while still catching a broken sampler.
	expected := samples * 6 / 10
	for digit := '0'; digit <= '9'; digit++ {
		if counts[digit] < expected/2 || counts[digit] > expected*2 {
			t.Fatalf("digit %c appeared %d times, expected around %d", digit, counts[digit], expected)
		}
	}
}
