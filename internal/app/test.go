package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
)

// TestChannels 逐个通道执行连通性测试并打印结果。
func (a *App) TestChannels(ctx context.Context) error {
	dispatcher, err := a.newDispatcher()
	if err != nil {
		return err
	}

	results := dispatcher.TestChannels(ctx)
	if len(results) == 0 {
		return errors.New("未配置任何告警通道")
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Channel\tStatus\tError")

	failed := 0
	for _, result := range results {
		status := "ok"
		if !result.Success {
			status = "failed"
			failed++
		}
		fmt.Fprintf(writer, "%s\t%s\t%s\n", result.ChannelName, status, sanitizeInline(result.ErrorMessage))
	}
	writer.Flush()

	if failed > 0 {
		return fmt.Errorf("%d channel(s) failed connectivity test", failed)
	}
	return nil
}
