package risk

import "testing"

func TestCategoryForScore(t *testing.T) {
	tests := []struct {
		score int
		want  Category
	}{
		{0, CategoryGreen},
		{39, CategoryGreen},
		{40, CategoryYellow},
		{69, CategoryYellow},
		{70, CategoryRed},
		{90, CategoryRed}, // the >=90 band folds into red
		{100, CategoryRed},
	}
	for _, tt := range tests {
		if got := CategoryForScore(tt.score); got != tt.want {
			t.Errorf("CategoryForScore(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClamp(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-50, 0},
		{-1, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{101, 100},
		{250, 100},
	}
	for _, tt := range tests {
		if got := Clamp(tt.in); got != tt.want {
			t.Errorf("Clamp(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestValidCategory(t *testing.T) {
	for _, c := range []Category{CategoryGreen, CategoryYellow, CategoryRed, CategoryBlack} {
		if !ValidCategory(c) {
			t.Errorf("ValidCategory(%s) = false, want true", c)
		}
	}
	for _, c := range []Category{"", "orange", "GREEN", "critical"} {
		if ValidCategory(c) {
			t.Errorf("ValidCategory(%q) = true, want false", c)
		}
	}
}
