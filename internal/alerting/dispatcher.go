package alerting

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"liquidation-zone-alerts/internal/proximity"
)

// Dispatcher fans one alert out to every severity-eligible channel in
// parallel. Each channel attempt is bounded by its own timeout and its
// failures are contained; Dispatch itself never returns an error.
type Dispatcher struct {
	channels []Channel
	filters  map[string][]proximity.Severity
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewDispatcher wires channels with their severity filters. A channel
// with no filter entry receives every alert.
func NewDispatcher(channels []Channel, filters map[string][]proximity.Severity, timeout time.Duration, logger zerolog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		channels: channels,
		filters:  filters,
		timeout:  timeout,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch delivers the alert to all eligible channels concurrently and
// aggregates the per-channel outcomes. An empty eligible set is a
// successful no-op, not an error.
func (d *Dispatcher) Dispatch(ctx context.Context, alert Alert) DispatchResult {
	eligible := d.eligibleChannels(alert.Severity)
	if len(eligible) == 0 {
		return DispatchResult{Status: StatusSuccess}
	}

	results := make([]ChannelResult, len(eligible))
	wg := sync.WaitGroup{}
	for i, ch := range eligible {
		wg.Add(1)
		go func(idx int, ch Channel) {
			defer wg.Done()
			results[idx] = d.sendOne(ctx, ch, alert)
		}(i, ch)
	}
	wg.Wait()

	return aggregate(results)
}

// TestChannels runs TestConnection on every configured channel.
func (d *Dispatcher) TestChannels(ctx context.Context) []ChannelResult {
	results := make([]ChannelResult, len(d.channels))
	for i, ch := range d.channels {
		cctx, cancel := context.WithTimeout(ctx, d.timeout)
		results[i] = ch.TestConnection(cctx)
		cancel()
	}
	return results
}

func (d *Dispatcher) eligibleChannels(severity proximity.Severity) []Channel {
	eligible := make([]Channel, 0, len(d.channels))
	for _, ch := range d.channels {
		allowed, filtered := d.filters[ch.Name()]
		if !filtered {
			eligible = append(eligible, ch)
			continue
		}
		for _, s := range allowed {
			if s == severity {
				eligible = append(eligible, ch)
				break
			}
		}
	}
	return eligible
}

// sendOne bounds a single channel attempt with its own timeout and
// converts a panicking implementation into a failed result.
func (d *Dispatcher) sendOne(ctx context.Context, ch Channel, alert Alert) ChannelResult {
	cctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	resultCh := make(chan ChannelResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				resultCh <- resultFail(ch.Name(), fmt.Sprintf("channel panicked: %v", r))
			}
		}()
		resultCh <- ch.Send(cctx, alert)
	}()

	select {
	case result := <-resultCh:
		if result.ChannelName == "" {
			result.ChannelName = ch.Name()
		}
		if !result.Success {
			d.logger.Warn().Str("channel", ch.Name()).Str("error", result.ErrorMessage).Msg("channel send failed")
		}
		return result
	case <-cctx.Done():
		d.logger.Warn().Str("channel", ch.Name()).Dur("timeout", d.timeout).Msg("channel send timed out")
		return resultFail(ch.Name(), fmt.Sprintf("send timed out after %s", d.timeout))
	}
}

func aggregate(results []ChannelResult) DispatchResult {
	out := DispatchResult{}
	failures := make([]string, 0, len(results))
	for _, result := range results {
		if result.Success {
			out.ChannelsSent = append(out.ChannelsSent, result.ChannelName)
			continue
		}
		out.ChannelsFailed = append(out.ChannelsFailed, result.ChannelName)
		failures = append(failures, fmt.Sprintf("%s: %s", result.ChannelName, result.ErrorMessage))
	}

	switch {
	case len(out.ChannelsFailed) == 0:
		out.Status = StatusSuccess
	case len(out.ChannelsSent) == 0:
		out.Status = StatusFailed
		out.ErrorMessage = strings.Join(failures, "; ")
	default:
		out.Status = StatusPartial
		out.ErrorMessage = strings.Join(failures, "; ")
	}
	return out
}
