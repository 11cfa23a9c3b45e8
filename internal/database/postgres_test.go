package database

import "testing"

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name   string
		file   string
		want   int
		wantOK bool
	}{
		{"standard", "001_initial_schema.sql", 1, true},
		{"multi digit", "012_add_jobs_index.sql", 12, true},
		{"no padding", "2_second.sql", 2, true},
		{"not sql", "001_notes.txt", 0, false},
		{"no underscore", "README.sql", 0, false},
		{"non numeric prefix", "abc_schema.sql", 0, false},
		{"zero version", "000_reserved.sql", 0, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := migrationVersion(tc.file)
			if got != tc.want || ok != tc.wantOK {
				t.Errorf("migrationVersion(%q) = %d, %v, want %d, %v", tc.file, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}
