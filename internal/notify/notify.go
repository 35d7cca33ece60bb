// Package notify рассылает терминалам уведомления о зафиксированных изменениях.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/mmeshcher/comanda/internal/model"
)

// Exchange: fanout-обменник, к которому терминалы привязывают свои очереди.
const Exchange = "comanda_events"

const publishTimeout = 5 * time.Second

// Channel описывает часть amqp-канала, нужную для публикации.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPNotifier публикует события в RabbitMQ. Ошибки публикации только логируются:
// изменение уже зафиксировано, а терминалы продолжают опрашивать сервер.
type AMQPNotifier struct {
	conn   *amqp.Connection
	ch     Channel
	logger *zap.Logger
}

// DialAMQP подключается к RabbitMQ и объявляет обменник событий.
func DialAMQP(url string, logger *zap.Logger) (*AMQPNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(Exchange, amqp.ExchangeFanout, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", Exchange, err)
	}

	n := NewAMQPNotifier(ch, logger)
	n.conn = conn
	return n, nil
}

// NewAMQPNotifier создаёт публикатор поверх готового канала.
func NewAMQPNotifier(ch Channel, logger *zap.Logger) *AMQPNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AMQPNotifier{ch: ch, logger: logger}
}

// Notify публикует событие в формате JSON.
func (n *AMQPNotifier) Notify(ctx context.Context, e model.Event) {
	body, err := json.Marshal(e)
	if err != nil {
		n.logger.Error("marshal event", zap.String("type", string(e.Type)), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		MessageId:    uuid.NewString(),
		Type:         string(e.Type),
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.Timestamp,
		Body:         body,
	}
	if err := n.ch.PublishWithContext(ctx, Exchange, string(e.Type), false, false, msg); err != nil {
		n.logger.Warn("publish event failed",
			zap.String("type", string(e.Type)),
			zap.Int64("order_id", e.OrderID),
			zap.Int64("account_id", e.AccountID),
			zap.Error(err),
		)
		return
	}

	n.logger.Debug("event published", zap.String("type", string(e.Type)), zap.String("message_id", msg.MessageId))
}

// Close закрывает канал и соединение.
func (n *AMQPNotifier) Close() error {
	if err := n.ch.Close(); err != nil {
		return fmt.Errorf("close rabbitmq channel: %w", err)
	}
	if n.conn != nil && !n.conn.IsClosed() {
		if err := n.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}

// LogNotifier пишет события в лог; используется без брокера.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier создаёт уведомитель, пишущий в лог.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify пишет событие в лог.
func (n *LogNotifier) Notify(_ context.Context, e model.Event) {
	n.logger.Info("event",
		zap.String("type", string(e.Type)),
		zap.Int64("order_id", e.OrderID),
		zap.String("order", e.OrderNumber),
		zap.Int64("account_id", e.AccountID),
		zap.Int64("modification_id", e.ModificationID),
		zap.String("old_status", e.OldStatus),
		zap.String("new_status", e.NewStatus),
		zap.String("by", e.ChangedBy),
		zap.Time("at", e.Timestamp),
	)
}
