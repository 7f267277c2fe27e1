package storage

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	logx "repod/pkg/logx"
)

func openAll(t *testing.T) map[string]Storage {
	t.Helper()
	dir := t.TempDir()
	cfgs := map[string]Config{
		"in-memory": {Type: "in-memory"},
		"fs":        {Type: "fs", Path: filepath.Join(dir, "fs")},
		"sqlite":    {Type: "sqlite", Path: filepath.Join(dir, "db", "repod.db")},
	}
	out := map[string]Storage{}
	for name, cfg := range cfgs {
		st, err := Open(cfg, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%s): %v", name, err)
		}
		t.Cleanup(func() { _ = st.Close() })
		out[name] = st
	}
	return out
}

func TestStorageContract(t *testing.T) {
	ctx := context.Background()
	for name, st := range openAll(t) {
		t.Run(name, func(t *testing.T) {
			ok, err := st.Exists(ctx, "scripts/a.js")
			if err != nil || ok {
				t.Fatalf("Exists(missing) = %v, %v; want false, nil", ok, err)
			}
			if _, err := st.Value(ctx, "scripts/a.js"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("Value(missing) err = %v, want ErrNotFound", err)
			}

			if err := st.Save(ctx, "scripts/a.js", []byte("1 + 1")); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := st.Save(ctx, "/scripts/b.lua", []byte("return 1")); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := st.Save(ctx, "users/alice.yaml", []byte("type: plain")); err != nil {
				t.Fatalf("Save: %v", err)
			}
			if err := st.Save(ctx, "scripts/a.js", []byte("2 + 2")); err != nil {
				t.Fatalf("Save overwrite: %v", err)
			}

			ok, err = st.Exists(ctx, "scripts/a.js")
			if err != nil || !ok {
				t.Fatalf("Exists = %v, %v; want true, nil", ok, err)
			}
			b, err := st.Value(ctx, "scripts/a.js")
			if err != nil || string(b) != "2 + 2" {
				t.Fatalf("Value = %q, %v; want \"2 + 2\"", b, err)
			}

			keys, err := st.List(ctx, "scripts/")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if want := []string{"scripts/a.js", "scripts/b.lua"}; !reflect.DeepEqual(keys, want) {
				t.Fatalf("List(scripts/) = %v, want %v", keys, want)
			}
			all, err := st.List(ctx, "")
			if err != nil || len(all) != 3 {
				t.Fatalf("List(\"\") = %v, %v; want 3 keys", all, err)
			}

			if err := st.Delete(ctx, "scripts/a.js"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if err := st.Delete(ctx, "scripts/a.js"); err != nil {
				t.Fatalf("Delete(missing): %v", err)
			}
			if ok, _ := st.Exists(ctx, "scripts/a.js"); ok {
				t.Fatalf("Exists after Delete = true")
			}
		})
	}
}

func TestCleanKey(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"scripts/a.js", "scripts/a.js", false},
		{"/scripts//a.js", "scripts/a.js", false},
		{"scripts\\a.js", "scripts/a.js", false},
		{"./users/alice.yml", "users/alice.yml", false},
		{"../etc/passwd", "", true},
		{"scripts/../../x", "", true},
		{"", "", true},
		{"/", "", true},
	}
	for _, tc := range cases {
		got, err := CleanKey(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("CleanKey(%q) err = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Fatalf("CleanKey(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestFingerprintAndOpen(t *testing.T) {
	t.Parallel()

	a := Config{Type: "FS", Path: "/var/repod"}
	b := Config{Type: "file", Path: " /var/repod "}
	if a.Fingerprint() != b.Fingerprint() {
		t.Fatalf("equal configs have different fingerprints")
	}
	if a.Fingerprint() == (Config{Type: "fs", Path: "/srv"}).Fingerprint() {
		t.Fatalf("different configs share a fingerprint")
	}
	if _, err := Open(Config{Type: "s3"}, logx.Nop()); err == nil {
		t.Fatalf("Open(s3) succeeded, want error")
	}
	if _, err := Open(Config{}, logx.Nop()); err == nil {
		t.Fatalf("Open(empty type) succeeded, want error")
	}
}

func TestClosedMemoryStorage(t *testing.T) {
	t.Parallel()

	st := NewMemory()
	_ = st.Close()
	if _, err := st.Exists(context.Background(), "a"); !errors.Is(err, ErrClosed) {
		t.Fatalf("Exists after Close err = %v, want ErrClosed", err)
	}
	if Key("scripts", "a.js") != "scripts/a.js" {
		t.Fatalf("Key() = %q", Key("scripts", "a.js"))
	}
}
