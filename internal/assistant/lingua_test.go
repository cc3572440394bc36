package assistant

import "testing"

func TestLinguaDetector(t *testing.T) {
	detector, err := NewLinguaDetector([]string{"ta", "en", "kn", "te", "ml", "hi", "fr"})
	if err != nil {
		t.Fatalf("NewLinguaDetector failed: %v", err)
	}

	tests := []struct {
		text string
		want string
	}{
		{"I have not been sleeping well and I feel tired every morning.", "en"},
		{"Je ne dors pas bien et je suis fatigué tous les matins.", "fr"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			got, confidence := detector.Detect(tt.text)
			if got != tt.want {
				t.Errorf("Detect = %q, want %q", got, tt.want)
			}
			if confidence <= 0 || confidence > 1 {
				t.Errorf("Confidence out of range: %f", confidence)
			}
		})
	}

	if got, confidence := detector.Detect("12345 !!!"); got != UnknownLanguage || confidence != 0 {
		t.Errorf("Expected unknown for text without letters, got %q/%f", got, confidence)
	}
}

func TestNewLinguaDetectorNeedsTwoLanguages(t *testing.T) {
	if _, err := NewLinguaDetector([]string{"en", "zz", "EN"}); err == nil {
		t.Error("Expected error with a single known language")
	}
}
