package rabbitmq

import "github.com/magabrotheeeer/smartlink-billing/internal/config"

// QueueConfig очередь и ключ маршрутизации, которым она привязана к обменнику.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// CommissionQueues очереди воркера комиссий.
func CommissionQueues(cfg config.RabbitMQ) []QueueConfig {
	return []QueueConfig{
		{QueueName: cfg.Queue, RoutingKey: cfg.RoutingKey},
	}
}
