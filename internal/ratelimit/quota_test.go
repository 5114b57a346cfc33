package ratelimit

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestParseQuotas(t *testing.T) {
	for _, tc := range []struct {
		input string
		want  []Quota
		err   bool
	}{
		{input: "", want: nil},
		{input: "5:24", want: []Quota{{MaxCount: 5, Hours: 24}}},
		{input: "*=5:24, all=3:1", want: []Quota{{MaxCount: 5, Hours: 24}, {MaxCount: 3, Hours: 1}}},
		{input: "retake=2:12,=-1:-1", want: []Quota{{Group: "retake", MaxCount: 2, Hours: 12}, {MaxCount: -1, Hours: -1}}},
		{input: "retake=2", err: true},
		{input: "retake=x:1", err: true},
		{input: "retake=1:y", err: true},
	} {
		t.Run(tc.input, func(t *testing.T) {
			got, err := ParseQuotas(tc.input)
			if tc.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("ParseQuotas(%q) mismatch (-want +got):\n%s", tc.input, diff)
			}
		})
	}
}

func TestLoadQuotaFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quotas.yaml")
	content := "- group: retake\n  max: 2\n  hours: 12\n- group: all\n  max: 10\n  hours: 24\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	quotas, err := LoadQuotaFile(path)
	require.NoError(t, err)
	require.Equal(t, []Quota{{Group: "retake", MaxCount: 2, Hours: 12}, {MaxCount: 10, Hours: 24}}, quotas)

	require.NoError(t, os.WriteFile(path, []byte("- group: a\n  limit: 3\n"), 0o644))
	_, err = LoadQuotaFile(path)
	require.Error(t, err)
}
