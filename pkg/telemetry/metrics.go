package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ThreadsCreated counts new modmail threads.
	ThreadsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "modmail_threads_created_total",
		Help: "Number of modmail threads created.",
	})

	// ThreadsClosed counts closed threads by cause ("command", "reconcile").
	ThreadsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modmail_threads_closed_total",
		Help: "Number of modmail threads closed.",
	}, []string{"cause"})

	// MessagesAppended counts persisted messages by origin
	// ("user", "mod", "modnote").
	MessagesAppended = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modmail_messages_total",
		Help: "Number of messages appended to modmail threads.",
	}, []string{"origin"})

	// DeliveryFailures counts failed outbound deliveries by target
	// ("user", "channel").
	DeliveryFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modmail_delivery_failures_total",
		Help: "Number of failed outbound deliveries.",
	}, []string{"target"})
)
