package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	appointmentCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "velora",
			Name:      "appointment_created_total",
			Help:      "Count of appointment create attempts by outcome.",
		},
		[]string{"outcome"},
	)

	appointmentCancelled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "velora",
			Name:      "appointment_cancelled_total",
			Help:      "Count of appointments cancelled by their owner or an admin.",
		},
	)

	appointmentRescheduled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "velora",
			Name:      "appointment_rescheduled_total",
			Help:      "Count of reschedule attempts by outcome.",
		},
		[]string{"outcome"},
	)

	scheduleCancellations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "velora",
			Name:      "schedule_change_cancellations_total",
			Help:      "Count of appointments cancelled by schedule changes.",
		},
	)

	notificationFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "velora",
			Name:      "notification_failures_total",
			Help:      "Count of notifications dropped after exhausting retries.",
		},
	)

	remindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "velora",
			Name:      "reminders_sent_total",
			Help:      "Count of appointment reminders sent.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			appointmentCreated,
			appointmentCancelled,
			appointmentRescheduled,
			scheduleCancellations,
			notificationFailures,
			remindersSent,
		)
	})
}

// Outcome labels for create/reschedule counters.
const (
	OutcomeOK        = "ok"
	OutcomeRelocated = "relocated"
	OutcomeConflict  = "conflict"
	OutcomeRejected  = "rejected"
)

func IncAppointmentCreated(outcome string)     { appointmentCreated.WithLabelValues(outcome).Inc() }
func IncAppointmentCancelled()                 { appointmentCancelled.Inc() }
func IncAppointmentRescheduled(outcome string) { appointmentRescheduled.WithLabelValues(outcome).Inc() }
func IncScheduleCancellations(n int)           { scheduleCancellations.Add(float64(n)) }
func IncNotificationFailure()                  { notificationFailures.Inc() }
func IncReminderSent()                         { remindersSent.Inc() }
