package mariadb

import (
	"strings"
	"testing"

	"github.com/kozaktomas/facegate/internal/config"
)

func TestNormalizeDSN(t *testing.T) {
	tests := []struct {
		name    string
		dsn     string
		want    []string
		wantErr bool
	}{
		{
			name: "adds parseTime",
			dsn:  "root:secret@tcp(127.0.0.1:3306)/enroll_recognize",
			want: []string{"root:secret@tcp(127.0.0.1:3306)/enroll_recognize", "parseTime=true"},
		},
		{
			name: "keeps existing params",
			dsn:  "door:pw@tcp(db:3306)/faces?charset=utf8mb4",
			want: []string{"charset=utf8mb4", "parseTime=true"},
		},
		{
			name:    "invalid",
			dsn:     "not a dsn",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := normalizeDSN(tc.dsn)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for _, part := range tc.want {
				if !strings.Contains(got, part) {
					t.Errorf("expected %q to contain %q", got, part)
				}
			}
		})
	}
}

func TestNewPool_RequiresDSN(t *testing.T) {
	if _, err := NewPool(&config.DatabaseConfig{}); err == nil {
		t.Error("expected error for empty DSN")
	}
	if _, err := NewPool(nil); err == nil {
		t.Error("expected error for nil config")
	}
}
