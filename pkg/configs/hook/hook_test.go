package hook_test

import (
	"os"
	"path/filepath"
	"testing"

	cfg_hook "github.com/whole-tale/gwvolman/pkg/configs/hook"
	"github.com/whole-tale/gwvolman/pkg/utils/cmp"
)

func TestLoad(t *testing.T) {
	write := func(t *testing.T, content string) string {
		t.Helper()
		path := filepath.Join(t.TempDir(), "hooks.yaml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	t.Run("it loads before and after hooks", func(t *testing.T) {
		path := write(t, `
job-hooks:
  before:
    - http://hook.example.com/before
  after:
    - https://hook.example.com/after/1
    - https://hook.example.com/after/2
`)
		cfg, err := cfg_hook.Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		strs := func(h cfg_hook.WebHook, before bool) []string {
			src := h.After
			if before {
				src = h.Before
			}
			ret := []string{}
			for _, u := range src {
				ret = append(ret, u.String())
			}
			return ret
		}

		if actual := strs(cfg.Job, true); !cmp.SliceEq(actual, []string{"http://hook.example.com/before"}) {
			t.Errorf("unexpected before: %v", actual)
		}
		expectedAfter := []string{
			"https://hook.example.com/after/1",
			"https://hook.example.com/after/2",
		}
		if actual := strs(cfg.Job, false); !cmp.SliceEq(actual, expectedAfter) {
			t.Errorf("unexpected after: %v", actual)
		}
	})

	t.Run("empty filename means no hooks", func(t *testing.T) {
		cfg, err := cfg_hook.Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(cfg.Job.Before) != 0 || len(cfg.Job.After) != 0 {
			t.Errorf("unexpected hooks: %+v", cfg)
		}
	})

	t.Run("it rejects non-http urls", func(t *testing.T) {
		path := write(t, `
job-hooks:
  before:
    - ftp://hook.example.com/before
`)
		if _, err := cfg_hook.Load(path); err == nil {
			t.Error("expected error, but got nil")
		}
	})
}
