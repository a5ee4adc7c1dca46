package domain

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestFallbackWebsite(t *testing.T) {
	w := FallbackWebsite("https://example.com/missing")

	if w.URL != "https://example.com/missing" {
		t.Errorf("URL = %q, want identity echo", w.URL)
	}
	if w.Title != "" || w.CanonicalURL != "" || w.AmpURL != "" || w.FaviconURL != "" {
		t.Errorf("fallback should carry no metadata, got %+v", w)
	}
	if w.VisitCount != 1 {
		t.Errorf("VisitCount = %d, want 1", w.VisitCount)
	}
	if w.ThemeColor.Valid() {
		t.Errorf("ThemeColor = %v, want no color", w.ThemeColor)
	}
	if !w.IsFallback() {
		t.Error("IsFallback() = false, want true")
	}
}

func TestPreferredURLAndSafeLabel(t *testing.T) {
	tests := []struct {
		name          string
		website       Website
		wantPreferred string
		wantLabel     string
	}{
		{
			name:          "bare url",
			website:       Website{URL: "https://a.example"},
			wantPreferred: "https://a.example",
			wantLabel:     "https://a.example",
		},
		{
			name:          "canonical wins",
			website:       Website{URL: "https://a.example/?utm=x", CanonicalURL: "https://a.example/"},
			wantPreferred: "https://a.example/",
			wantLabel:     "https://a.example/",
		},
		{
			name:          "title wins for label",
			website:       Website{URL: "https://a.example", CanonicalURL: "https://b.example", Title: "A"},
			wantPreferred: "https://b.example",
			wantLabel:     "A",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.website.PreferredURL(); got != tt.wantPreferred {
				t.Errorf("PreferredURL() = %q, want %q", got, tt.wantPreferred)
			}
			if got := tt.website.SafeLabel(); got != tt.wantLabel {
				t.Errorf("SafeLabel() = %q, want %q", got, tt.wantLabel)
			}
		})
	}
}

func TestIsFallbackDetectsMetadata(t *testing.T) {
	w := FallbackWebsite("https://example.com")
	w.Title = "Example"
	if w.IsFallback() {
		t.Error("IsFallback() = true for a titled website")
	}

	w = FallbackWebsite("https://example.com")
	w.CreatedAt = time.Now()
	if w.IsFallback() {
		t.Error("IsFallback() = true for a stored website")
	}
}

func TestWebsiteJSONKeepsNoColor(t *testing.T) {
	w := FallbackWebsite("https://example.com")

	data, err := json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), `"theme_color":null`) {
		t.Fatalf("expected null theme color, got %s", data)
	}

	var decoded Website
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.ThemeColor != NoColor {
		t.Errorf("ThemeColor = %v, want NoColor", decoded.ThemeColor)
	}

	w.ThemeColor = RGB(0x33, 0x66, 0x99)
	data, err = json.Marshal(w)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if decoded.ThemeColor != w.ThemeColor {
		t.Errorf("ThemeColor = %v, want %v", decoded.ThemeColor, w.ThemeColor)
	}
}
