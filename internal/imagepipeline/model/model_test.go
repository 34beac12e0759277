package model

import "testing"

func TestPriorityString(t *testing.T) {
	cases := map[Priority]string{
		PriorityVeryLow:  "very_low",
		PriorityLow:      "low",
		PriorityNormal:   "normal",
		PriorityHigh:     "high",
		PriorityVeryHigh: "very_high",
		Priority(99):     "unknown",
	}
	for p, want := range cases {
		if got := p.String(); got != want {
			t.Errorf("Priority(%d).String() = %q, want %q", p, got, want)
		}
	}
}

func TestPriorityOrdering(t *testing.T) {
	if !(PriorityVeryLow < PriorityLow && PriorityLow < PriorityNormal &&
		PriorityNormal < PriorityHigh && PriorityHigh < PriorityVeryHigh) {
		t.Error("expected strictly increasing priority ordering")
	}
}

func TestRequestKeyHashesURLByDefault(t *testing.T) {
	a := Request{URL: "https://example.com/a.jpg"}
	b := Request{URL: "https://example.com/a.jpg"}
	c := Request{URL: "https://example.com/b.jpg"}

	if a.Key() != b.Key() {
		t.Errorf("Key() not stable for identical URLs: %q vs %q", a.Key(), b.Key())
	}
	if a.Key() == c.Key() {
		t.Errorf("Key() collided for distinct URLs: %q", a.Key())
	}
	if a.Key() == a.URL {
		t.Errorf("Key() = %q, want a hashed fingerprint, not the raw URL", a.Key())
	}
}

func TestRequestKeyUsesLoadingKey(t *testing.T) {
	req := Request{
		URL:        "https://example.com/a.jpg",
		LoadingKey: func(r Request) string { return "custom:" + r.URL },
	}
	want := "custom:https://example.com/a.jpg"
	if got := req.Key(); got != want {
		t.Errorf("Key() = %q, want %q", got, want)
	}
}

func TestNextTaskIDIsMonotonic(t *testing.T) {
	a := NextTaskID()
	b := NextTaskID()
	if b <= a {
		t.Errorf("expected b > a, got a=%d b=%d", a, b)
	}
}
