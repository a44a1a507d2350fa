package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"liquidation-zone-alerts/internal/alerting"
	"liquidation-zone-alerts/internal/config"
	"liquidation-zone-alerts/internal/cooldown"
	"liquidation-zone-alerts/internal/fetcher"
	"liquidation-zone-alerts/internal/proximity"
	"liquidation-zone-alerts/internal/scheduler"
	"liquidation-zone-alerts/internal/storage"
)

// Trigger pairs a zone proximity with its classified severity.
type Trigger struct {
	Proximity proximity.ZoneProximity
	Severity  proximity.Severity
}

// Service orchestrates evaluation, rate limiting, dispatch, and history.
type Service struct {
	scheduler  *scheduler.Scheduler
	prices     fetcher.PriceFetcher
	zones      fetcher.ZoneFetcher
	cooldowns  *cooldown.Manager
	dispatcher *alerting.Dispatcher
	history    storage.AlertHistoryStore
	logger     zerolog.Logger

	thresholds proximity.Thresholds
	symbol     string
	locker     storage.AdvisoryLocker
	lockKey    int64
}

// New constructs the monitoring service.
func New(cfg *config.Config, sched *scheduler.Scheduler, prices fetcher.PriceFetcher, zones fetcher.ZoneFetcher, cooldowns *cooldown.Manager, dispatcher *alerting.Dispatcher, history storage.AlertHistoryStore, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := history.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:  sched,
		prices:     prices,
		zones:      zones,
		cooldowns:  cooldowns,
		dispatcher: dispatcher,
		history:    history,
		logger:     logger.With().Str("component", "service").Logger(),
		thresholds: cfg.Thresholds(),
		symbol:     cfg.Market.Symbol,
		locker:     locker,
		lockKey:    cfg.Scheduler.AdvisoryLockKey,
	}
}

// Run begins the aligned evaluation loop.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return s.scheduler.Run(ctx, s.ProcessTick)
}

// Evaluate fetches price and zones, computes proximity for every zone,
// and returns the triggered ones sorted by severity then ascending
// distance. Upstream fetch failures propagate to the caller; this layer
// does not retry network I/O.
func (s *Service) Evaluate(ctx context.Context) ([]Trigger, error) {
	price, err := s.prices.FetchPrice(ctx)
	if err != nil {
		return nil, err
	}

	zones, err := s.zones.FetchZones(ctx)
	if err != nil {
		return nil, err
	}

	triggers := make([]Trigger, 0, len(zones))
	for _, zone := range zones {
		prox, err := proximity.Compute(zone, price)
		if err != nil {
			return nil, err
		}
		severity, ok := proximity.Classify(prox, s.thresholds)
		if !ok {
			continue
		}
		triggers = append(triggers, Trigger{Proximity: prox, Severity: severity})
	}

	sort.SliceStable(triggers, func(i, j int) bool {
		if triggers[i].Severity.Weight() != triggers[j].Severity.Weight() {
			return triggers[i].Severity.Weight() > triggers[j].Severity.Weight()
		}
		return triggers[i].Proximity.DistancePct.LessThan(triggers[j].Proximity.DistancePct)
	})

	s.logger.Debug().Int("zones", len(zones)).Int("triggered", len(triggers)).
		Str("price", price.String()).Msg("evaluation complete")
	return triggers, nil
}

// ProcessTick 执行单个评估周期：评估、限流过滤、派发、落库。
func (s *Service) ProcessTick(ctx context.Context, tick time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", tick).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	return s.executeTick(ctx, tick)
}

func (s *Service) executeTick(ctx context.Context, tick time.Time) error {
	triggers, err := s.Evaluate(ctx)
	if err != nil {
		return fmt.Errorf("evaluate tick: %w", err)
	}

	for _, trigger := range triggers {
		zoneKey := trigger.Proximity.ZoneKey()

		onCooldown, err := s.cooldowns.IsOnCooldown(ctx, zoneKey)
		if err != nil {
			return err
		}
		if onCooldown {
			s.logger.Debug().Str("zone_key", zoneKey).Msg("zone on cooldown; skipping")
			continue
		}

		canSend, err := s.cooldowns.CanSendAlert(ctx)
		if err != nil {
			return err
		}
		if !canSend {
			s.logger.Info().Time("tick", tick).Msg("daily alert cap reached; dropping remaining triggers")
			break
		}

		alert := s.buildAlert(trigger, tick)
		result := s.dispatcher.Dispatch(ctx, alert)

		alert.ChannelsSent = result.ChannelsSent
		alert.DeliveryStatus = result.Status
		alert.ErrorMessage = result.ErrorMessage

		s.logger.Info().Str("zone_key", zoneKey).
			Str("severity", string(alert.Severity)).
			Str("status", string(result.Status)).
			Strs("sent", result.ChannelsSent).
			Strs("failed", result.ChannelsFailed).
			Msg("alert dispatched")

		if len(result.ChannelsSent) > 0 {
			if err := s.cooldowns.RecordAlert(ctx, zoneKey); err != nil {
				return err
			}
		}

		if s.history != nil && len(result.ChannelsSent)+len(result.ChannelsFailed) > 0 {
			if _, err := s.history.SaveAlert(ctx, toRecord(alert)); err != nil {
				s.logger.Error().Err(err).Str("zone_key", zoneKey).Msg("failed to persist alert record")
			}
		}
	}

	return nil
}

func (s *Service) buildAlert(trigger Trigger, tick time.Time) alerting.Alert {
	prox := trigger.Proximity
	alert := alerting.Alert{
		Timestamp:    tick,
		Symbol:       s.symbol,
		CurrentPrice: prox.CurrentPrice,
		ZonePrice:    prox.Zone.Price,
		ZoneDensity:  prox.Zone.TotalDensity(),
		ZoneSide:     prox.Zone.DominantSide(),
		DistancePct:  prox.DistancePct,
		Severity:     trigger.Severity,
	}
	alert.Message = alerting.Summarize(alert, prox.Direction)
	return alert
}

func toRecord(alert alerting.Alert) storage.AlertRecord {
	return storage.AlertRecord{
		Timestamp:      alert.Timestamp,
		Symbol:         alert.Symbol,
		CurrentPrice:   alert.CurrentPrice,
		ZonePrice:      alert.ZonePrice,
		ZoneDensity:    alert.ZoneDensity,
		ZoneSide:       alert.ZoneSide,
		DistancePct:    alert.DistancePct,
		Severity:       string(alert.Severity),
		Message:        alert.Message,
		ChannelsSent:   alert.ChannelsSent,
		DeliveryStatus: string(alert.DeliveryStatus),
		ErrorMessage:   alert.ErrorMessage,
	}
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
