package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorder_Generation(t *testing.T) {
	r := NewRecorder()
	before := testutil.ToFloat64(TurnsTotal.WithLabelValues("completed", "false"))

	r.GenerationStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(ActiveGenerations))
	r.GenerationFinished("completed", false, 2*time.Second)

	assert.Equal(t, 0.0, testutil.ToFloat64(ActiveGenerations))
	assert.Equal(t, before+1, testutil.ToFloat64(TurnsTotal.WithLabelValues("completed", "false")))
}

func TestRecorder_ObserveWrite(t *testing.T) {
	r := NewRecorder()
	ok := testutil.ToFloat64(PersistenceWritesTotal.WithLabelValues("assistant_message", "success"))
	failed := testutil.ToFloat64(PersistenceWritesTotal.WithLabelValues("assistant_message", "error"))

	r.ObserveWrite("assistant_message", 1, nil)
	r.ObserveWrite("assistant_message", 2, errors.New("boom"))

	assert.Equal(t, ok+1, testutil.ToFloat64(PersistenceWritesTotal.WithLabelValues("assistant_message", "success")))
	assert.Equal(t, failed+1, testutil.ToFloat64(PersistenceWritesTotal.WithLabelValues("assistant_message", "error")))
}

func TestRecordRequest(t *testing.T) {
	before := testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/v1/sessions/:session_id", "404"))
	RecordRequest("GET", "/v1/sessions/:session_id", 404, 0.01)
	assert.Equal(t, before+1, testutil.ToFloat64(RequestsTotal.WithLabelValues("GET", "/v1/sessions/:session_id", "404")))
}
