package emotion_test

import (
	"slices"
	"sync"
	"testing"

	"github.com/MrWong99/solace/internal/emotion"
)

func TestDetect(t *testing.T) {
	t.Parallel()
	d := emotion.New(nil)
	tests := []struct {
		text string
		want bool
	}{
		{"I feel hopeless today", true},
		{"I FEEL SAD", true},
		{"having suicidal thoughts", true},
		{"the crusade was long", true}, // substring, not whole word
		{"I had a great day", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			t.Parallel()
			if got := d.Detect(tt.text); got != tt.want {
				t.Errorf("Detect(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestMatch(t *testing.T) {
	t.Parallel()
	d := emotion.New(nil)
	got := d.Match("So Lonely and overwhelmed, all alone")
	want := []string{"alone", "overwhelmed", "lonely"}
	if !slices.Equal(got, want) {
		t.Errorf("Match = %v, want %v", got, want)
	}
	if m := d.Match("fine thanks"); m != nil {
		t.Errorf("Match on neutral text = %v, want nil", m)
	}
}

func TestSetKeywords(t *testing.T) {
	t.Parallel()
	d := emotion.New([]string{" Grief ", "", "grief", "LOSS"})
	if got := d.Keywords(); !slices.Equal(got, []string{"grief", "loss"}) {
		t.Errorf("Keywords = %v", got)
	}
	if d.Detect("I feel sad") {
		t.Error("default keyword matched after custom list")
	}
	if !d.Detect("the loss hit me") {
		t.Error("custom keyword not matched")
	}

	d.SetKeywords([]string{})
	if d.Detect("grief and loss") {
		t.Error("empty keyword list still matches")
	}
}

func TestDetector_ConcurrentReload(t *testing.T) {
	t.Parallel()
	d := emotion.New(nil)
	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for range 100 {
				d.Detect("I feel anxious")
			}
		}()
		go func() {
			defer wg.Done()
			for range 100 {
				if i%2 == 0 {
					d.SetKeywords(emotion.DefaultKeywords)
				} else {
					d.SetKeywords([]string{"anxious"})
				}
			}
		}()
	}
	wg.Wait()
	if !d.Detect("I feel anxious") {
		t.Error("anxious not detected after reloads")
	}
}
