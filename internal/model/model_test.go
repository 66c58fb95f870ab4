package model

import "testing"

func TestBankIndex_Letter(t *testing.T) {
	tests := []struct {
		index BankIndex
		want  string
	}{
		{0, "A"},
		{1, "B"},
		{7, "H"},
		{15, "P"},
		{-1, "?"},
		{16, "?"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.index.Letter(); got != tt.want {
				t.Errorf("BankIndex(%d).Letter() = %q, want %q", tt.index, got, tt.want)
			}
		})
	}
}

func TestParseBankLetter(t *testing.T) {
	tests := []struct {
		input   string
		want    BankIndex
		wantErr bool
	}{
		{"A", 0, false},
		{"p", 15, false},
		{" h ", 7, false},
		{"Q", 0, true},
		{"", 0, true},
		{"AB", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseBankLetter(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseBankLetter(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseBankLetter(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("ParseBankLetter(%q) = %d, want %d", tt.input, got, tt.want)
			}
		})
	}
}

func TestBankIndex_Valid(t *testing.T) {
	for i := 0; i < NumBanks; i++ {
		if !BankIndex(i).Valid() {
			t.Errorf("BankIndex(%d).Valid() = false, want true", i)
		}
	}
	for _, i := range []BankIndex{-1, 16, 100} {
		if i.Valid() {
			t.Errorf("BankIndex(%d).Valid() = true, want false", i)
		}
	}
}

func TestFileTimestamps_Equal(t *testing.T) {
	base := FileTimestamps{ProjectFile: 100}
	for i := range base.BankFiles {
		base.BankFiles[i] = int64(1000 + i)
	}

	t.Run("identical", func(t *testing.T) {
		if !base.Equal(base) {
			t.Error("identical timestamps should be equal")
		}
	})

	t.Run("project file differs", func(t *testing.T) {
		other := base
		other.ProjectFile = 105
		if base.Equal(other) {
			t.Error("differing project_file should not be equal")
		}
	})

	t.Run("single bank file differs", func(t *testing.T) {
		for i := range base.BankFiles {
			other := base
			other.BankFiles[i]++
			if base.Equal(other) {
				t.Errorf("differing bank_files[%d] should not be equal", i)
			}
		}
	})

	t.Run("missing bank compared as zero", func(t *testing.T) {
		a := FileTimestamps{ProjectFile: 1}
		b := FileTimestamps{ProjectFile: 1}
		// Zero-valued arrays represent absent bank files on both sides.
		if !a.Equal(b) {
			t.Error("two all-zero bank arrays should be equal")
		}
	})
}

func TestSampleSlot_Empty(t *testing.T) {
	if !(SampleSlot{Number: 1}).Empty() {
		t.Error("slot without a path should be empty")
	}
	if (SampleSlot{Number: 1, Path: "AUDIO/kick.wav"}).Empty() {
		t.Error("slot with a path should not be empty")
	}
}
