package stubserver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portal_stub",
		Name:      "connections_total",
		Help:      "Websocket connections accepted.",
	})

	broadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "portal_stub",
		Name:      "broadcasts_total",
		Help:      "Events broadcast to room members, by event name.",
	}, []string{"event"})

	droppedFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "portal_stub",
		Name:      "dropped_frames_total",
		Help:      "Frames dropped because a client send buffer was full.",
	})
)
