package api

import (
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/rsamf/mink/internal/datastore"
	"github.com/rsamf/mink/internal/logger"
)

// uploadField is the multipart field carrying the video.
const uploadField = "file"

// JobHandle is returned by POST /take-notes.
type JobHandle struct {
	JobID         string  `json:"job_id"`
	JobStatus     string  `json:"job_status"`
	MeetingID     uint    `json:"meeting_id"`
	TimeStarted   float64 `json:"time_started"`
	FailureReason string  `json:"failure_reason,omitempty"`
}

func newJobHandle(job *datastore.Job) JobHandle {
	return JobHandle{
		JobID:         job.JobID,
		JobStatus:     string(job.JobStatus),
		MeetingID:     job.MeetingID,
		TimeStarted:   job.TimeStarted,
		FailureReason: job.FailureReason,
	}
}

// takeNotes handles POST /take-notes.
func (s *Server) takeNotes(c echo.Context) error {
	fh, err := c.FormFile(uploadField)
	if err != nil {
		return s.HandleError(c, echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required"))
	}

	f, err := fh.Open()
	if err != nil {
		return s.HandleError(c, echo.NewHTTPError(http.StatusBadRequest, "upload could not be read"))
	}
	defer func() { _ = f.Close() }()

	job, err := s.service.Ingest(c.Request().Context(), fh.Filename, f)
	if err != nil {
		return s.HandleError(c, err)
	}
	if s.metrics != nil {
		s.metrics.HTTP.RecordUpload(fh.Size)
	}

	return c.JSON(http.StatusOK, newJobHandle(job))
}

// getJob handles GET /job/:job_id.
func (s *Server) getJob(c echo.Context) error {
	job, err := s.service.Job(c.Request().Context(), c.Param("job_id"))
	if err != nil {
		return s.HandleError(c, err)
	}
	return c.JSON(http.StatusOK, job)
}

// getMeeting handles GET /meeting/:meeting_id. Ids that are not positive
// integers cannot exist and are reported as not found.
func (s *Server) getMeeting(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("meeting_id"), 10, 64)
	if err != nil || id == 0 {
		return s.HandleError(c, datastore.ErrMeetingNotFound)
	}
	meeting, err := s.service.Meeting(c.Request().Context(), uint(id))
	if err != nil {
		return s.HandleError(c, err)
	}
	if meeting.Jobs == nil {
		meeting.Jobs = []datastore.Job{}
	}
	return c.JSON(http.StatusOK, meeting)
}

// healthCheck handles the server health check endpoint.
func (s *Server) healthCheck(c echo.Context) error {
	uptime := time.Since(s.startTime)

	resp := map[string]any{
		"status":         "healthy",
		"version":        s.build.Version(),
		"build_date":     s.build.BuildDate(),
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
		"goroutines":     runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		resp["memory"] = map[string]any{
			"total":        vm.Total,
			"used":         vm.Used,
			"used_percent": vm.UsedPercent,
		}
	} else {
		s.log.Debug("memory stats unavailable", logger.Error(err))
	}

	if dir := s.settings.Storage.UploadDir; dir != "" {
		if usage, err := disk.Usage(dir); err == nil {
			resp["upload_disk"] = map[string]any{
				"path":         dir,
				"total":        usage.Total,
				"free":         usage.Free,
				"used_percent": usage.UsedPercent,
			}
		} else {
			s.log.Debug("disk stats unavailable", logger.String("path", dir), logger.Error(err))
		}
	}

	if s.queue != nil {
		resp["queue"] = s.queue.Stats()
	}

	if s.settings.PipelineReady() != nil {
		resp["status"] = "degraded"
	}

	return c.JSON(http.StatusOK, resp)
}
