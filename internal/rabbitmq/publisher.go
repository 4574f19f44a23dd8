package rabbitmq

import (
	"encoding/json"
	"fmt"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/smartlink-billing/internal/models"
)

// PublishMessage публикует сообщение в RabbitMQ в формате JSON.
func PublishMessage(ch *amqp.Channel, exchange string, routingkey string, message any) error {
	const op = "rabbitmq.PublishMessage"
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = ch.Publish(
		exchange,
		routingkey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Dispatcher отправляет задачи по комиссиям в очередь воркера.
type Dispatcher struct {
	ch         *amqp.Channel
	exchange   string
	routingKey string
}

// NewDispatcher создаёт Dispatcher поверх открытого канала.
func NewDispatcher(ch *amqp.Channel, exchange, routingKey string) *Dispatcher {
	return &Dispatcher{ch: ch, exchange: exchange, routingKey: routingKey}
}

// Dispatch публикует задачу. Ошибка означает, что задача не поставлена.
func (d *Dispatcher) Dispatch(job models.CommissionJob) error {
	return PublishMessage(d.ch, d.exchange, d.routingKey, job)
}
