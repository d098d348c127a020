package app

import (
	"context"
	"strings"

	logx "postsched/pkg/logx"
)

// reloadLoop applies published configs: logging and scheduler live, the JWT
// secret live, everything else on the next restart.
func (a *App) reloadLoop(ctx context.Context, sub <-chan *Config) {
	lastApplied := a.cfgm.Get()
	for {
		select {
		case <-ctx.Done():
			return
		case newCfg, ok := <-sub:
			if !ok {
				return
			}
			// coalesce bursts
		drain:
			for {
				select {
				case newer := <-sub:
					if newer != nil {
						newCfg = newer
					}
				default:
					break drain
				}
			}
			a.applyConfig(ctx, lastApplied, newCfg)
			lastApplied = newCfg
		}
	}
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *Config) {
	sections, attrs, restart := SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	changed := make(map[string]bool, len(sections))
	for _, s := range sections {
		changed[s] = true
	}

	if changed["logging"] {
		a.logs.Apply(mapLoggingConfig(newCfg))
	}

	if changed["scheduler"] {
		wasRunning := a.sched.Running()
		a.sched.Apply(mapSchedulerConfig(newCfg))
		switch enabled := newCfg.Scheduler.IsEnabled(); {
		case wasRunning && !enabled:
			a.log.Info("scheduler disabled via config")
			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.drainTimeout())
			a.sched.Stop(stopCtx)
			cancel()
		case !wasRunning && enabled:
			a.log.Info("scheduler enabled via config")
			a.sched.Start(ctx)
		}
	}

	if changed["http"] && a.http != nil && oldCfg != nil && oldCfg.HTTP.JWTSecret != newCfg.HTTP.JWTSecret {
		a.http.SetSecret(newCfg.HTTP.JWTSecret)
		a.log.Info("jwt secret rotated")
	}

	for _, s := range restart {
		a.log.Warn("config section changed; restart required for changes to take effect", logx.String("section", s))
	}

	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}
