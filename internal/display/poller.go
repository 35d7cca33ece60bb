package display

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Poller периодически запрашивает доску и выводит её на экран.
type Poller struct {
	client   *Client
	interval time.Duration
	out      io.Writer
	logger   *zap.Logger

	alerted map[string]struct{}
}

// NewPoller создаёт опросчик доски.
func NewPoller(client *Client, interval time.Duration, out io.Writer, logger *zap.Logger) *Poller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{
		client:   client,
		interval: interval,
		out:      out,
		logger:   logger,
		alerted:  make(map[string]struct{}),
	}
}

// Run опрашивает сервер до отмены контекста.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if wait := p.poll(ctx); wait > 0 {
			timer := time.NewTimer(wait)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil
			case <-timer.C:
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// poll выполняет один запрос и возвращает паузу, которую попросил сервер.
func (p *Poller) poll(ctx context.Context) time.Duration {
	board, code, retryAfter, err := p.client.FetchBoard(ctx)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("fetch board failed", zap.Int("status", code), zap.Error(err))
		}
		return 0
	}
	if code == http.StatusTooManyRequests {
		p.logger.Info("server asked to slow down", zap.Duration("retry_after", retryAfter))
		return retryAfter
	}

	if err := p.render(board); err != nil {
		p.logger.Error("render board", zap.Error(err))
	}
	return 0
}

// render выводит тикеты; при первом появлении тикета уровня critical подаётся звуковой сигнал.
func (p *Poller) render(b *Board) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== %s  %d tickets ===\n", b.Now.Local().Format("15:04:05"), len(b.Tickets))

	active := make(map[string]struct{}, len(b.Tickets))
	bell := false
	for _, t := range b.Tickets {
		active[t.Order.Number] = struct{}{}
		if t.Alert {
			if _, seen := p.alerted[t.Order.Number]; !seen {
				p.alerted[t.Order.Number] = struct{}{}
				bell = true
			}
		}
		sb.WriteString(formatTicket(t))
	}
	for number := range p.alerted {
		if _, ok := active[number]; !ok {
			delete(p.alerted, number)
		}
	}
	if bell {
		sb.WriteString("\a")
	}

	_, err := io.WriteString(p.out, sb.String())
	return err
}

func formatTicket(t Ticket) string {
	var sb strings.Builder

	where := "take-out"
	if t.Order.Table != nil {
		where = fmt.Sprintf("table %d", *t.Order.Table)
	}
	marker := " "
	if t.Alert {
		marker = "!"
	}
	fmt.Fprintf(&sb, "%s [%-8s] %s  %s  %s  %d min  (%s)\n",
		marker, strings.ToUpper(t.Tier), t.Order.Number, where, t.Order.Status, t.ElapsedMinutes, t.Order.Waiter)

	for _, it := range t.Order.Items {
		fmt.Fprintf(&sb, "     %dx %s", it.Quantity, it.Name)
		if it.Restriction != "" {
			fmt.Fprintf(&sb, " [%s]", it.Restriction)
		}
		if it.Note != "" {
			fmt.Fprintf(&sb, " - %s", it.Note)
		}
		sb.WriteString("\n")
	}
	if t.Order.Observations != "" {
		fmt.Fprintf(&sb, "     * %s\n", t.Order.Observations)
	}
	return sb.String()
}
