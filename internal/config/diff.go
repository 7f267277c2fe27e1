package config

import (
	"reflect"
	"strings"

	logx "repod/pkg/logx"
)

// Config sections reported by Changed.
const (
	SectionStorage   = "meta.storage"
	SectionCrontab   = "meta.crontab"
	SectionPolicy    = "meta.policy"
	SectionLog       = "log"
	SectionScheduler = "scheduler"
)

// Changed returns the sections that differ between two configs, in a fixed
// order, plus safe log fields describing the new values.
func Changed(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	if !reflect.DeepEqual(oldCfg.Meta.Storage, newCfg.Meta.Storage) {
		changed = append(changed, SectionStorage)
		attrs = append(attrs,
			logx.String("storage.type", strings.TrimSpace(newCfg.Meta.Storage.Type)),
			logx.Bool("storage.path_set", strings.TrimSpace(newCfg.Meta.Storage.Path) != ""))
	}
	if !reflect.DeepEqual(oldCfg.Meta.Crontab, newCfg.Meta.Crontab) {
		changed = append(changed, SectionCrontab)
		attrs = append(attrs, logx.Int("crontab.entries", len(newCfg.Meta.Crontab)))
	}
	if !strings.EqualFold(strings.TrimSpace(oldCfg.Meta.Policy.Type), strings.TrimSpace(newCfg.Meta.Policy.Type)) {
		changed = append(changed, SectionPolicy)
		attrs = append(attrs, logx.String("policy.type", newCfg.Meta.Policy.Type))
	}
	if oldCfg.Log != newCfg.Log {
		changed = append(changed, SectionLog)
		attrs = append(attrs, logx.String("log.level", newCfg.Log.Level),
			logx.Bool("log.console", newCfg.Log.Console), logx.Bool("log.file_enabled", newCfg.Log.File.Enabled))
	}
	if oldCfg.Scheduler != newCfg.Scheduler {
		changed = append(changed, SectionScheduler)
		attrs = append(attrs, logx.String("scheduler.timezone", newCfg.Scheduler.Timezone),
			logx.Int("scheduler.workers", newCfg.Scheduler.Workers))
	}
	return changed, attrs
}
