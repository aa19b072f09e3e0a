// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"errors"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/pdiddy/paperflow/internal/convert"
	"github.com/pdiddy/paperflow/internal/pipeline"
)

// createActions are the bucket notifications that mean a new object exists.
var createActions = map[string]bool{
	"PutObject":               true,
	"CopyObject":              true,
	"CompleteMultipartUpload": true,
}

// ObjectEvent is the notification forwarded by the bucket's event worker.
type ObjectEvent struct {
	Bucket     string `json:"bucket"`
	Object     string `json:"object"`
	Action     string `json:"action"`
	EventTime  string `json:"eventTime"`
	ObjectSize int64  `json:"objectSize"`
	ETag       string `json:"etag"`
	MD5Sum     string `json:"md5sum"`
}

// SourceURL joins the public base URL and the escaped object key.
func SourceURL(base, key string) string {
	segments := strings.Split(strings.TrimPrefix(key, "/"), "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(segments, "/")
}

func (s *Server) objectEvent(c *gin.Context) {
	var ev ObjectEvent
	if err := c.ShouldBindJSON(&ev); err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid event")
		return
	}
	if ev.Object == "" {
		errorJSON(c, http.StatusBadRequest, "event has no object key")
		return
	}

	log := s.log.WithFields(logrus.Fields{
		"bucket":     ev.Bucket,
		"object":     ev.Object,
		"action":     ev.Action,
		"request_id": GetRequestID(c),
	})

	if !createActions[ev.Action] {
		log.Debug("ignoring event")
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "action " + ev.Action})
		return
	}
	if ext := path.Ext(ev.Object); !convert.Supported(ext) {
		log.Debug("ignoring unsupported object")
		c.JSON(http.StatusOK, gin.H{"status": "ignored", "reason": "unsupported extension " + ext})
		return
	}
	if s.submitter == nil || s.cfg.PublicBaseURL == "" {
		errorJSON(c, http.StatusServiceUnavailable, "ingestion is not configured")
		return
	}

	src := SourceURL(s.cfg.PublicBaseURL, ev.Object)
	err := s.submitter.Submit(src)
	switch {
	case errors.Is(err, pipeline.ErrPoolFull):
		log.Warn("pool full, asking producer to retry")
		c.Header("Retry-After", "30")
		errorJSON(c, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		log.WithError(err).Error("submitting run")
		errorJSON(c, http.StatusServiceUnavailable, err.Error())
		return
	}

	name := pipeline.RunName(src)
	log.WithField("run_name", name).Info("run submitted")
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted", "run_name": name, "url": src})
}
