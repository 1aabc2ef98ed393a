package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Skotchmaster/storefront/internal/auth"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/realtime"
	"github.com/Skotchmaster/storefront/internal/repo"
)

const SettingPixKey = "pix_key"

var KnownSettings = []string{
	"site_name",
	"site_logo",
	"site_banner_1",
	"site_banner_2",
	"site_banner_3",
	"hero_title",
	"hero_description",
	"featured_title",
	"featured_description",
	"delivery_time",
	SettingPixKey,
}

type SettingsService struct {
	Repo   *repo.GormRepo
	Events realtime.Publisher
	Hub    *realtime.Hub
}

func (s *SettingsService) All(ctx context.Context) (map[string]string, error) {
	rows, err := s.Repo.AllSettings(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.Key] = row.Value
	}
	return out, nil
}

func (s *SettingsService) Get(ctx context.Context, key string) (string, error) {
	all, err := s.All(ctx)
	if err != nil {
		return "", err
	}
	return all[key], nil
}

// Set upserts every key in one transaction and returns the full settings map.
func (s *SettingsService) Set(ctx context.Context, p auth.Principal, values map[string]string) (map[string]string, error) {
	l := logging.FromContext(ctx).With("svc", "settings.set")

	if !p.Authenticated() {
		return nil, ErrUnauthenticated
	}
	if !p.Can(auth.CapManageSettings) {
		return nil, ErrForbidden
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no settings given", ErrValidation)
	}
	for k := range values {
		if !slices.Contains(KnownSettings, k) {
			return nil, fmt.Errorf("%w: unknown setting %q", ErrValidation, k)
		}
	}

	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		for k, v := range values {
			if err := tx.UpsertSetting(ctx, k, strings.TrimSpace(v)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		l.Error("settings_update_error", "status", 500, "error", err)
		return nil, err
	}

	all, err := s.All(ctx)
	if err != nil {
		return nil, err
	}

	ev, err := realtime.NewEvent(realtime.TopicSettings, realtime.KindUpdate, "site_settings", all)
	if err == nil {
		err = s.Events.Publish(ctx, ev)
	}
	if err != nil {
		l.Warn("settings_publish_error", "error", err)
	}
	return all, nil
}

func (s *SettingsService) Subscribe() *realtime.Subscription {
	return s.Hub.Subscribe(realtime.TopicSettings, nil)
}
