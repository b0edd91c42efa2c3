package notification

import (
	"errors"
	"fmt"
	"strings"

	"github.com/raykavin/backsweep/pkg/core"
	"github.com/raykavin/backsweep/pkg/logger"
	"github.com/raykavin/backsweep/pkg/metric"
)

// FormatSummary renders the evaluation counts and the k best successful results
// (all when k <= 0) as a short report
func FormatSummary(title string, agg *metric.Aggregator, k int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "*%s*\n", title)

	if agg == nil || agg.Len() == 0 {
		sb.WriteString("No results.")
		return sb.String()
	}

	fmt.Fprintf(&sb, "%d evaluated, %d failed\n", agg.Len(), agg.Failures())
	for i, result := range agg.Top(k) {
		s := result.Summary
		fmt.Fprintf(&sb, "%d. score `%.4f` | trades %d | win %.1f%% | pnl `%.4f`\n`%s`\n",
			i+1, result.Score, s.TotalTrades, s.WinRate*100, s.NetPnL, result.Key)
	}

	return strings.TrimRight(sb.String(), "\n")
}

// FormatError renders an error, naming the parameter set when it is an evaluation failure
func FormatError(err error) string {
	var sb strings.Builder
	sb.WriteString("🛑 ERROR\n")

	var evalErr *core.EvaluationError
	if errors.As(err, &evalErr) {
		sb.WriteString("-----\n")
		fmt.Fprintf(&sb, "Parameters: %s\n", evalErr.Key)
		sb.WriteString("-----\n")
		sb.WriteString(evalErr.Err.Error())
		return sb.String()
	}

	sb.WriteString("-----\n")
	sb.WriteString(err.Error())
	return sb.String()
}

// Multi fans every notification out to several notifiers
type Multi []core.Notifier

// Notify forwards text to every notifier
func (m Multi) Notify(text string) {
	for _, notifier := range m {
		notifier.Notify(text)
	}
}

// OnError forwards err to every notifier
func (m Multi) OnError(err error) {
	for _, notifier := range m {
		notifier.OnError(err)
	}
}

// LogNotifier writes notifications to a logger
type LogNotifier struct {
	Log logger.Logger
}

// Notify logs text at info level
func (l LogNotifier) Notify(text string) {
	l.Log.Info(text)
}

// OnError logs err at error level
func (l LogNotifier) OnError(err error) {
	l.Log.Error(FormatError(err))
}
