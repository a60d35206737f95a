package service

import "github.com/prometheus/client_golang/prometheus"

var (
	roomEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "room_lifecycle_events_total", Help: "Room lifecycle transitions"},
		[]string{"event"},
	)
	roomRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "room_lifecycle_rejections_total", Help: "Rejected room operations by reason"},
		[]string{"op", "reason"},
	)
	codeCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "room_code_collisions_total", Help: "Generated room codes that already existed"},
	)
	orphanedObjects = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "feed_orphaned_objects_total", Help: "Storage objects that failed to delete on feed removal"},
	)
)

func init() { prometheus.MustRegister(roomEvents, roomRejections, codeCollisions, orphanedObjects) }
