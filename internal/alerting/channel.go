package alerting

import (
	"context"
)

// Channel 定义告警输送通道的能力集。Send must contain its own failures
// and report them through the result tag.
type Channel interface {
	Name() string
	Send(ctx context.Context, alert Alert) ChannelResult
	TestConnection(ctx context.Context) ChannelResult
}

func resultOK(name string, data map[string]any) ChannelResult {
	return ChannelResult{Success: true, ChannelName: name, ResponseData: data}
}

func resultFail(name, message string) ChannelResult {
	return ChannelResult{ChannelName: name, ErrorMessage: message}
}
