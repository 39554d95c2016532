package locator

import (
	"testing"

	"github.com/devicelab-dev/keyflow/pkg/core"
)

func TestParseString(t *testing.T) {
	cases := []struct {
		in   string
		want Locator
	}{
		{"Home", Locator{Kind: KindText, Value: "Home"}},
		{"text:Save changes", Locator{Kind: KindText, Value: "Save changes"}},
		{"path:/root/form/login", Locator{Kind: KindPath, Value: "/root/form/login"}},
		{"//nav/button", Locator{Kind: KindPath, Value: "//nav/button"}},
		{"/root", Locator{Kind: KindPath, Value: "/root"}},
		{"image:home_icon", Locator{Kind: KindImage, Value: "home_icon"}},
	}
	for _, tc := range cases {
		if got := ParseString(tc.in); got != tc.want {
			t.Errorf("ParseString(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseValue(t *testing.T) {
	set, err := ParseValue("Home")
	if err != nil || len(set) != 1 || set[0].Kind != KindText {
		t.Fatalf("scalar parse failed: %v %v", set, err)
	}

	set, err = ParseValue([]interface{}{"Home", "image:home"})
	if err != nil {
		t.Fatalf("list parse failed: %v", err)
	}
	if len(set) != 2 || set[0].Kind != KindText || set[1].Kind != KindImage {
		t.Fatalf("list parse wrong: %v", set)
	}

	set, err = ParseValue(map[string]interface{}{"image": "logo"})
	if err != nil || set[0] != (Locator{Kind: KindImage, Value: "logo"}) {
		t.Fatalf("mapping parse failed: %v %v", set, err)
	}

	if _, err := ParseValue([]interface{}{}); err == nil {
		t.Error("empty list should be rejected")
	}
	if _, err := ParseValue(42); err == nil {
		t.Error("number should be rejected")
	}
	if _, err := ParseValue(map[string]interface{}{"css": "#x"}); err == nil {
		t.Error("unknown mapping key should be rejected")
	}
}

func TestSet_String(t *testing.T) {
	s := Set{{Kind: KindText, Value: "Home"}, {Kind: KindImage, Value: "home"}}
	if got := s.String(); got != "[text:Home, image:home]" {
		t.Errorf("String() = %q", got)
	}
}

func TestROI_Clamp(t *testing.T) {
	cases := []struct {
		name string
		in   ROI
		want ROI
	}{
		{"zero is full screen", ROI{}, FullScreen()},
		{"valid unchanged", ROI{X: 10, Y: 20, Width: 30, Height: 40}, ROI{X: 10, Y: 20, Width: 30, Height: 40}},
		{"negative origin", ROI{X: -5, Y: -10, Width: 50, Height: 50}, ROI{X: 0, Y: 0, Width: 50, Height: 50}},
		{"overflow width", ROI{X: 80, Y: 0, Width: 50, Height: 100}, ROI{X: 80, Y: 0, Width: 20, Height: 100}},
		{"origin past edge", ROI{X: 150, Y: 0, Width: 10, Height: 100}, ROI{X: 100, Y: 0, Width: 0, Height: 100}},
		{"negative size", ROI{X: 10, Y: 10, Width: -5, Height: -5}, ROI{X: 10, Y: 10, Width: 0, Height: 0}},
	}
	for _, tc := range cases {
		if got := tc.in.Clamp(); got != tc.want {
			t.Errorf("%s: Clamp(%+v) = %+v, want %+v", tc.name, tc.in, got, tc.want)
		}
	}
}

func TestROI_Bounds(t *testing.T) {
	r := ROI{X: 25, Y: 50, Width: 50, Height: 25}
	got := r.Bounds(200, 100)
	want := core.Bounds{X: 50, Y: 50, Width: 100, Height: 25}
	if got != want {
		t.Errorf("Bounds() = %+v, want %+v", got, want)
	}
}

func TestParseROI(t *testing.T) {
	r, err := ParseROI("10, 20, 30, 40")
	if err != nil || r != (ROI{X: 10, Y: 20, Width: 30, Height: 40}) {
		t.Fatalf("ParseROI = %+v, %v", r, err)
	}

	r, err = ParseROI("")
	if err != nil || !r.IsFull() {
		t.Fatalf("empty should be full screen: %+v, %v", r, err)
	}

	r, err = ParseROI("-10,0,200,100")
	if err != nil || r != (ROI{X: 0, Y: 0, Width: 100, Height: 100}) {
		t.Fatalf("out-of-range should clamp, got %+v, %v", r, err)
	}

	if _, err := ParseROI("1,2,3"); err == nil {
		t.Error("three fields should be rejected")
	}
	if _, err := ParseROI("a,b,c,d"); err == nil {
		t.Error("non-numeric should be rejected")
	}
}

func TestOrderSet(t *testing.T) {
	set := Set{
		{Kind: KindImage, Value: "i1"},
		{Kind: KindText, Value: "t1"},
		{Kind: KindImage, Value: "i2"},
		{Kind: KindPath, Value: "p1"},
	}
	got := orderSet(set, []Kind{KindText, KindPath, KindImage})
	want := Set{
		{Kind: KindText, Value: "t1"},
		{Kind: KindPath, Value: "p1"},
		{Kind: KindImage, Value: "i1"},
		{Kind: KindImage, Value: "i2"},
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("orderSet = %v, want %v", got, want)
		}
	}
}

func TestSelectMatches(t *testing.T) {
	matches := []core.ElementInfo{
		{Text: "a"}, {Text: "b"}, {Text: "c"},
	}

	all, ok := selectMatches(matches, -1)
	if !ok || len(all) != 3 {
		t.Errorf("no index should return all: %v %v", all, ok)
	}

	one, ok := selectMatches(matches, 1)
	if !ok || len(one) != 1 || one[0].Text != "b" {
		t.Errorf("index 1 should pick second: %v %v", one, ok)
	}

	if _, ok := selectMatches(matches, 7); ok {
		t.Error("out-of-range index should not select")
	}
	if _, ok := selectMatches(nil, -1); ok {
		t.Error("empty matches should not select")
	}
}

func TestDuplicate(t *testing.T) {
	kept := []core.ElementInfo{{Bounds: core.Bounds{X: 100, Y: 100, Width: 20, Height: 20}}}

	near := core.ElementInfo{Bounds: core.Bounds{X: 104, Y: 102, Width: 20, Height: 20}}
	if !duplicate(kept, near) {
		t.Error("near-identical center should be a duplicate")
	}

	far := core.ElementInfo{Bounds: core.Bounds{X: 300, Y: 100, Width: 20, Height: 20}}
	if duplicate(kept, far) {
		t.Error("distant candidate is not a duplicate")
	}
}
