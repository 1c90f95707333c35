package main

import (
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"charttopper.fm/internal/persistence/objstore"
)

// buildMirror returns nil unless CT_MIRROR is set.
func buildMirror(dataDir string, logger *log.Logger) (*objstore.Mirror, error) {
	if !envBool("CT_MIRROR", false) {
		return nil, nil
	}
	cfg := objstore.ClientConfig{
		Endpoint:        os.Getenv("CT_MIRROR_ENDPOINT"),
		Bucket:          os.Getenv("CT_MIRROR_BUCKET"),
		Region:          os.Getenv("CT_MIRROR_REGION"),
		AccessKeyID:     os.Getenv("CT_MIRROR_ACCESS_KEY_ID"),
		SecretAccessKey: os.Getenv("CT_MIRROR_SECRET_ACCESS_KEY"),
	}
	client, err := objstore.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("CT_MIRROR=true: %w", err)
	}
	return objstore.NewMirror(client, objstore.MirrorConfig{
		BaseDir:     dataDir,
		Prefix:      os.Getenv("CT_MIRROR_PREFIX"),
		Workers:     envInt("CT_MIRROR_WORKERS", 2),
		EnqueueWait: 25 * time.Millisecond,
		Logger:      logger,
	}), nil
}

func writeMirrorMetrics(rw http.ResponseWriter, m *objstore.Mirror) {
	if m == nil {
		return
	}
	s := m.Stats()
	fmt.Fprintf(rw, "# TYPE charttopper_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "charttopper_mirror_queue_depth %d\n", s.QueueDepth)
	fmt.Fprintf(rw, "# TYPE charttopper_mirror_dropped_total counter\n")
	fmt.Fprintf(rw, "charttopper_mirror_dropped_total %d\n", s.DroppedTotal)
	fmt.Fprintf(rw, "# TYPE charttopper_mirror_upload_success_total counter\n")
	fmt.Fprintf(rw, "charttopper_mirror_upload_success_total %d\n", s.UploadSuccessTotal)
	fmt.Fprintf(rw, "# TYPE charttopper_mirror_upload_fail_total counter\n")
	fmt.Fprintf(rw, "charttopper_mirror_upload_fail_total %d\n", s.UploadFailTotal)
	fmt.Fprintf(rw, "# TYPE charttopper_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "charttopper_mirror_last_success_unix %d\n", s.LastSuccessUnix)
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
