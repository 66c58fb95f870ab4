package model

// FileTimestamps captures the modification times of every file making up a
// project on disk: the project descriptor plus the 16 bank files.
//
// Values are Unix mtimes as reported by the card filesystem. A bank file
// that does not exist is represented as 0, which is also what a stored
// timestamps record older than the bank's creation compares against.
//
// The cache stores a FileTimestamps snapshot next to each cached project;
// comparing it with a freshly produced snapshot decides staleness without
// re-reading any payload.
type FileTimestamps struct {
	ProjectFile int64            `json:"project_file"`
	BankFiles   [NumBanks]int64  `json:"bank_files"`
}

// Equal reports whether all 17 timestamps match exactly.
func (t FileTimestamps) Equal(o FileTimestamps) bool {
	if t.ProjectFile != o.ProjectFile {
		return false
	}
	for i := range t.BankFiles {
		if t.BankFiles[i] != o.BankFiles[i] {
			return false
		}
	}
	return true
}
