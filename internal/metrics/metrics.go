package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Метрики движка записи
var (
	// Метрики слотов
	SlotsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_slots_created_total",
			Help: "Общее количество созданных слотов",
		},
	)

	SlotTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_slot_transitions_total",
			Help: "Успешные переходы состояний слотов",
		},
		[]string{"from", "to"},
	)

	SlotRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_slot_rejections_total",
			Help: "Отклонённые операции над слотами по виду ошибки",
		},
		[]string{"operation", "reason"},
	)

	// Метрики уведомлений
	NotificationsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_notifications_published_total",
			Help: "Опубликованные уведомления по типу",
		},
		[]string{"kind"},
	)

	NotificationsDeferred = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "scheduler_notifications_deferred_total",
			Help: "Уведомления, отложенные в outbox из-за ошибки записи",
		},
	)

	OutboxSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "scheduler_notifications_outbox_size",
			Help: "Количество уведомлений, ожидающих повторной записи",
		},
	)

	PushDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_push_deliveries_total",
			Help: "Попытки push-доставки по каналу и результату",
		},
		[]string{"channel", "status"},
	)
)
