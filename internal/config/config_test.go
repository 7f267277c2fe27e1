package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "repod/pkg/logx"
)

const sampleYAML = `
meta:
  storage:
    type: sqlite
    path: ./repod.db
    busy_timeout: 2s
  crontab:
    - key: scripts/a.js
      cronexp: "*/3 * * * * ?"
    - key: scripts/b.lua
      cronexp: "0 0 0 * * ?"
  policy:
    type: none
log:
  level: debug
  console: true
scheduler:
  timezone: UTC
  workers: 4
  default_timeout: 30s
`

func TestDecodeYAML(t *testing.T) {
	cfg, err := Decode("repod.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if len(cfg.Meta.Crontab) != 2 || cfg.Meta.Crontab[0].Key != "scripts/a.js" || cfg.Meta.Crontab[0].CronExp != "*/3 * * * * ?" {
		t.Fatalf("crontab = %+v", cfg.Meta.Crontab)
	}
	st, err := cfg.Meta.Storage.Storage()
	if err != nil || st.Type != "sqlite" || st.BusyTimeout != 2*time.Second {
		t.Fatalf("storage = %+v, %v", st, err)
	}
	sc, err := cfg.Scheduler.Scheduler()
	if err != nil || sc.Timezone != "UTC" || sc.Engine.Workers != 4 || sc.Engine.DefaultTimeout != 30*time.Second {
		t.Fatalf("scheduler = %+v, %v", sc, err)
	}
	if lc := cfg.Log.Logx(); lc.Level != "debug" || !lc.Console {
		t.Fatalf("log = %+v", lc)
	}
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	_, err := Decode("repod.yaml", []byte("meta:\n  storage: {type: fs, path: x}\n  cron: []\n"))
	if err == nil || !strings.Contains(err.Error(), "unknown field") {
		t.Fatalf("Decode err = %v", err)
	}
}

func TestDecodeJSON(t *testing.T) {
	cfg, err := Decode("repod.json", []byte(`{"meta":{"storage":{"type":"in-memory"}}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if _, err := Decode("repod.json", []byte(`{"meta":{}} {}`)); err == nil {
		t.Fatal("expected trailing data error")
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"missing type":  "meta: {storage: {}}",
		"missing path":  "meta: {storage: {type: fs}}",
		"unknown type":  "meta: {storage: {type: s3}}",
		"bad policy":    "meta: {storage: {type: in-memory}, policy: {type: ldap}}",
		"bad timezone":  "meta: {storage: {type: in-memory}}\nscheduler: {timezone: Mars/Olympus}",
		"bad duration":  "meta: {storage: {type: in-memory}}\nscheduler: {default_timeout: soon}",
		"negative size": "meta: {storage: {type: in-memory}}\nscheduler: {workers: -1}",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			cfg, err := Decode("c.yaml", []byte(doc))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if err := Validate(cfg); err == nil {
				t.Fatalf("Validate accepted %q", doc)
			}
		})
	}
}

func TestLoadAndWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repod.yaml")
	write := func(doc string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("meta:\n  storage: {type: in-memory}\n")

	m := NewConfigManager(path)
	m.SetLogger(logx.Nop())
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	updates := m.Subscribe(1)
	defer m.Unsubscribe(updates)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()
	time.Sleep(100 * time.Millisecond)

	// An invalid config is rejected and never published.
	write("meta:\n  storage: {type: s3}\n")
	time.Sleep(600 * time.Millisecond)
	write("meta:\n  storage: {type: in-memory}\n  crontab:\n    - {key: scripts/a.js, cronexp: \"* * * * * ?\"}\n")

	select {
	case cfg := <-updates:
		if len(cfg.Meta.Crontab) != 1 {
			t.Fatalf("published config = %+v", cfg.Meta)
		}
		if m.Get() != cfg {
			t.Fatal("published config was not committed")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no config published")
	}
}

func TestChanged(t *testing.T) {
	base, err := Decode("a.yaml", []byte(sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	same, _ := Decode("a.yaml", []byte(sampleYAML))
	if got, _ := Changed(base, same); len(got) != 0 {
		t.Fatalf("Changed(equal) = %v", got)
	}

	next, _ := Decode("a.yaml", []byte(sampleYAML))
	next.Meta.Crontab = next.Meta.Crontab[:1]
	next.Log.Level = "warn"
	got, attrs := Changed(base, next)
	if strings.Join(got, ",") != SectionCrontab+","+SectionLog || len(attrs) == 0 {
		t.Fatalf("Changed = %v", got)
	}

	if got, _ := Changed(nil, base); len(got) != 5 {
		t.Fatalf("Changed(nil, cfg) = %v", got)
	}
}
