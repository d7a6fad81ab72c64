package upload

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess         = "success"
	resultRenamed         = "renamed"
	resultCollisionFailed = "collision_failed"
	resultRejected        = "rejected"
	resultBackendError    = "backend_error"
)

var (
	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "blobdrop_uploads_total",
			Help: "Total number of upload attempts by outcome",
		},
		[]string{"result"},
	)

	uploadCollisions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blobdrop_upload_collisions_total",
			Help: "Number of uploads whose first key was already taken",
		},
	)

	uploadBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "blobdrop_upload_bytes_total",
			Help: "Bytes written to storage by successful uploads",
		},
	)
)
