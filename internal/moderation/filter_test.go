package moderation

import "testing"

func TestClassifyBlocked(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Category
	}{
		{"plain 10 digit number", "Call me at 9876543210", CategoryPhone},
		{"spaced digits", "my number is 98765 43210", CategoryPhone},
		{"country code", "+91-98765-43210 anytime", CategoryPhone},
		{"dotted digits", "reach 987.654.3210", CategoryPhone},
		{"whatsapp keyword", "ping me on WhatsApp", CategoryPhone},
		{"call me keyword", "just call me tonight", CategoryPhone},
		{"email address", "write to john.doe@example.com", CategoryEmail},
		{"provider mention", "my gmail is in my profile", CategoryEmail},
		{"email me keyword", "e-mail me for details", CategoryEmail},
		{"address keyword", "I'll share my address", CategoryAddress},
		{"pin code", "pin code 560001", CategoryAddress},
		{"landmark", "near the landmark opposite the mall", CategoryAddress},
		{"meet me", "meet me at the station", CategoryAddress},
		{"instagram", "DM me on Instagram", CategorySocial},
		{"insta short", "it's on my insta", CategorySocial},
		{"telegram", "Telegram works too", CategorySocial},
		{"bypass", "we can bypass the platform", CategoryOffPlatform},
		{"direct deal", "let's do a direct deal", CategoryOffPlatform},
		{"no commission", "cheaper with no commission", CategoryOffPlatform},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			if !got.Blocked {
				t.Fatalf("Classify(%q).Blocked = false, want true", tt.text)
			}
			found := false
			for _, r := range got.Reasons {
				if r == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("Classify(%q).Reasons = %v, want to contain %q", tt.text, got.Reasons, tt.want)
			}
		})
	}
}

func TestClassifyAllowed(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"plain question", "Is this job still open?"},
		{"short number", "I have 5 years of experience"},
		{"price", "My quote is 1500 for the full job"},
		{"nine digits", "order ref 123456789"},
		{"platform praise", "Great experience working through this site"},
		{"at sign without email", "available @ weekends"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			if got.Blocked {
				t.Errorf("Classify(%q).Blocked = true (reasons %v), want false", tt.text, got.Reasons)
			}
		})
	}
}

func TestClassifyMultipleCategories(t *testing.T) {
	got := Classify("call me at 9876543210 or find me on instagram")
	if !got.Blocked {
		t.Fatal("expected blocked")
	}
	if len(got.Reasons) < 2 {
		t.Errorf("Reasons = %v, want at least phone and social", got.Reasons)
	}
}

func TestClassifyNeverMutates(t *testing.T) {
	text := "Call me at 9876543210"
	_ = Classify(text)
	if text != "Call me at 9876543210" {
		t.Error("input text was mutated")
	}
}
