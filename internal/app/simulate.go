package app

import (
	"context"
	"errors"
	"fmt"

	"autosniper/internal/alerting"
)

// SimulateAlert 将一条已缓存的估值推送到告警通道，用于验证配置。
func (a *App) SimulateAlert(ctx context.Context, url string) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	res, ok, err := store.Get(ctx, url)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no cached valuation for %s; run value first", url)
	}

	note := alerting.FromResult(res, a.Config.Alerting.MinScore, nil, a.Config.Alerting.Channels)
	note.AdditionalMsg = "(simulated)"
	return notifier.Notify(ctx, note)
}
