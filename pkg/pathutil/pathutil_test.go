package pathutil

import (
	"reflect"
	"testing"
	"time"
)

func TestKeywordReplace(t *testing.T) {
	ctx := Context{
		CruiseID:            "AT42-01",
		LoweringID:          "AT42-01_001",
		LoweringDataBaseDir: "Lowering_Data",
		Now:                 time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC),
	}

	tests := []struct {
		name     string
		template string
		wantOK   bool
		want     string
	}{
		{
			name:     "cruise and lowering",
			template: "/data/{cruiseID}/{loweringDataBaseDir}/{loweringID}/",
			wantOK:   true,
			want:     "/data/AT42-01/Lowering_Data/AT42-01_001",
		},
		{
			name:     "unresolved lowering is a skip signal",
			template: "/data/{cruiseID}/{loweringID}/",
			wantOK:   false,
		},
		{
			name:     "root stays root",
			template: "/",
			wantOK:   true,
			want:     "/",
		},
		{
			name:     "date tokens expand to glob classes",
			template: "/dashboard/{YYYY}/{mm}/{DD}",
			wantOK:   true,
			want:     "/dashboard/[12][0-9][0-9][0-9]/[01][0-9]/[0-3][0-9]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ctx
			if tt.name == "unresolved lowering is a skip signal" {
				ctx.LoweringID = ""
			}
			got, ok := KeywordReplace(tt.template, ctx)
			if ok != tt.wantOK {
				t.Fatalf("KeywordReplace(%q) ok = %v, want %v", tt.template, ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("KeywordReplace(%q) = %q, want %q", tt.template, got, tt.want)
			}
		})
	}
}

func TestIsASCII(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"plain ascii", "CTD_cast_001.raw", true},
		{"empty string", "", true},
		{"unicode filename", "Température.csv", false},
		{"emoji", "data\U0001F41F.csv", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsASCII(tt.in); got != tt.want {
				t.Errorf("IsASCII(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsRsyncPartial(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"typical partial", ".sensor.dat.a1b2c3", true},
		{"short suffix", ".sensor.dat.a1b", false},
		{"no leading dot", "sensor.dat.a1b2c3", false},
		{"normal file", "sensor.dat", false},
		{"seven char suffix", ".sensor.dat.a1b2c3d", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRsyncPartial(tt.in); got != tt.want {
				t.Errorf("IsRsyncPartial(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestApplyFilters(t *testing.T) {
	include := []string{"**/*.raw", "**/*.csv"}
	exclude := []string{"**/tmp/**"}
	ignore := []string{"**/.DS_Store"}

	tests := []struct {
		name string
		path string
		want FilterVerdict
	}{
		{"plain include match", "CTD/cast001.raw", VerdictInclude},
		{"ignore wins outright", "CTD/.DS_Store", VerdictDrop},
		{"include and exclude both match", "CTD/tmp/cast001.raw", VerdictExclude},
		{"no include match falls to exclude", "CTD/readme.txt", VerdictExclude},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ApplyFilters(tt.path, include, exclude, ignore)
			if got != tt.want {
				t.Errorf("ApplyFilters(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestCondenseToRanges(t *testing.T) {
	tests := []struct {
		name string
		in   []int
		want []string
	}{
		{
			name: "mixed singles and runs",
			in:   []int{1, 2, 3, 5, 7, 8, 9},
			want: []string{"1-3", "5", "7-9"},
		},
		{
			name: "unsorted input with duplicates",
			in:   []int{9, 1, 2, 2, 8, 7, 3},
			want: []string{"1-3", "7-9"},
		},
		{
			name: "single value",
			in:   []int{42},
			want: []string{"42"},
		},
		{
			name: "empty",
			in:   nil,
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CondenseToRanges(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("CondenseToRanges(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParsePurgeInterval(t *testing.T) {
	tests := []struct {
		name    string
		phrase  string
		want    time.Duration
		wantErr bool
	}{
		{name: "empty", phrase: "", want: 0},
		{name: "hours", phrase: "12 hours", want: 12 * time.Hour},
		{name: "compound", phrase: "3 days 6 hours", want: 3*24*time.Hour + 6*time.Hour},
		{name: "singular unit", phrase: "1 day", want: 24 * time.Hour},
		{name: "weeks", phrase: "2 weeks", want: 2 * 7 * 24 * time.Hour},
		{name: "unknown unit", phrase: "12 fortnights", wantErr: true},
		{name: "garbage", phrase: "whenever", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePurgeInterval(tt.phrase)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParsePurgeInterval(%q) expected error, got nil", tt.phrase)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParsePurgeInterval(%q): %v", tt.phrase, err)
			}
			if got != tt.want {
				t.Errorf("ParsePurgeInterval(%q) = %v, want %v", tt.phrase, got, tt.want)
			}
		})
	}
}
