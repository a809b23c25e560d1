package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/mikills/lpnfinder/lpn"

	"github.com/labstack/echo/v4"
)

// uploadFormField is the multipart field carrying manifest files.
const uploadFormField = "files"

// multipartMemory is how much of a multipart body is kept in memory before
// spilling file parts to temp files.
const multipartMemory = 32 << 20

var errInvalidMultipart = errors.New("invalid multipart form")

type Dependencies struct {
	AppMetrics     lpn.AppMetrics
	Lookup         func(context.Context, string) (*lpn.LookupResult, error)
	Upload         func(context.Context, []lpn.UploadFile) (*lpn.UploadSummary, error)
	Stats          func(context.Context) (*lpn.Stats, error)
	Reconcile      func(context.Context) (lpn.MetaDocument, error)
	MaxUploadBytes int64
	Logger         *slog.Logger
}

type lookupResponse struct {
	OK       bool        `json:"ok"`
	Found    bool        `json:"found"`
	LPN      string      `json:"lpn"`
	Complete bool        `json:"complete"`
	Record   *lpn.Record `json:"record,omitempty"`
}

type uploadResponse struct {
	OK bool `json:"ok"`
	*lpn.UploadSummary
}

type statsResponse struct {
	OK bool `json:"ok"`
	*lpn.Stats
}

type reconcileResponse struct {
	OK         bool       `json:"ok"`
	TotalLpn   int        `json:"totalLpn"`
	Shards     int        `json:"shards"`
	ShardsList []string   `json:"shardsList"`
	UpdatedAt  *time.Time `json:"updatedAt"`
}

type errorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

func Register(e *echo.Echo, deps Dependencies) {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := deps.AppMetrics
	if metrics == nil {
		metrics = lpn.NoopAppMetrics{}
	}
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"ok": true, "status": "ok"})
	})
	e.GET("/metrics/app", func(c echo.Context) error {
		return c.JSON(http.StatusOK, metrics.Snapshot())
	})

	e.GET("/api/lookup", func(c echo.Context) error {
		start := time.Now()
		if deps.Lookup == nil {
			return writeUnavailable(c)
		}

		raw := c.QueryParam("lpn")
		res, err := deps.Lookup(c.Request().Context(), raw)
		if err != nil {
			shard := ""
			if id := lpn.Normalize(raw); id != "" {
				shard = lpn.ShardKeyFor(id)
			}
			metrics.RecordLookup(shard, time.Since(start).Milliseconds(), false, err)
			if !lpn.IsInvalidInput(err) {
				logger.ErrorContext(c.Request().Context(), "lookup failed",
					"lpn", lpn.Normalize(raw),
					"shard", shard,
					"error", err,
				)
			}
			return WriteError(c, err)
		}
		metrics.RecordLookup(res.Shard, time.Since(start).Milliseconds(), res.Found, nil)

		return c.JSON(http.StatusOK, lookupResponse{
			OK:       true,
			Found:    res.Found,
			LPN:      res.LPN,
			Complete: res.Complete,
			Record:   res.Record,
		})
	})

	e.POST("/api/upload", func(c echo.Context) error {
		start := time.Now()
		if deps.Upload == nil {
			return writeUnavailable(c)
		}

		req := c.Request()
		req.Body = http.MaxBytesReader(c.Response(), req.Body, maxUpload)
		files, err := readUploadFiles(req)
		if err != nil {
			metrics.RecordUpload(time.Since(start).Milliseconds(), len(files), 0, 0, err)
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return c.JSON(http.StatusRequestEntityTooLarge, errorResponse{
					Error: fmt.Sprintf("upload exceeds %d bytes", tooLarge.Limit),
				})
			}
			return WriteError(c, err)
		}

		summary, err := deps.Upload(req.Context(), files)
		if err != nil {
			metrics.RecordUpload(time.Since(start).Milliseconds(), len(files), 0, 0, err)
			logger.ErrorContext(req.Context(), "upload failed",
				"files", len(files),
				"error", err,
			)
			return WriteError(c, err)
		}
		metrics.RecordUpload(time.Since(start).Milliseconds(), len(files), summary.ParsedRows, summary.UniqueNewLpns, nil)

		return c.JSON(http.StatusOK, uploadResponse{OK: true, UploadSummary: summary})
	})

	e.GET("/api/stats", func(c echo.Context) error {
		if deps.Stats == nil {
			return writeUnavailable(c)
		}
		stats, err := deps.Stats(c.Request().Context())
		if err != nil {
			logger.ErrorContext(c.Request().Context(), "stats failed", "error", err)
			return WriteError(c, err)
		}
		return c.JSON(http.StatusOK, statsResponse{OK: true, Stats: stats})
	})

	e.POST("/api/reconcile", func(c echo.Context) error {
		if deps.Reconcile == nil {
			return writeUnavailable(c)
		}
		meta, err := deps.Reconcile(c.Request().Context())
		if err != nil {
			logger.ErrorContext(c.Request().Context(), "reconcile failed", "error", err)
			return WriteError(c, err)
		}

		resp := reconcileResponse{
			OK:         true,
			TotalLpn:   meta.TotalLpn,
			Shards:     meta.Shards,
			ShardsList: meta.ShardsList,
		}
		if !meta.UpdatedAt.IsZero() {
			resp.UpdatedAt = &meta.UpdatedAt
		}
		return c.JSON(http.StatusOK, resp)
	})
}

// readUploadFiles reads every part of the "files" field into memory.
func readUploadFiles(req *http.Request) ([]lpn.UploadFile, error) {
	if err := req.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, err
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, lpn.ErrNoFiles
		}
		return nil, fmt.Errorf("%w: %v", errInvalidMultipart, err)
	}

	headers := req.MultipartForm.File[uploadFormField]
	if len(headers) == 0 {
		return nil, lpn.ErrNoFiles
	}

	files := make([]lpn.UploadFile, 0, len(headers))
	for _, fh := range headers {
		data, err := readFormFile(fh)
		if err != nil {
			return files, fmt.Errorf("read upload %s: %w", fh.Filename, err)
		}
		files = append(files, lpn.UploadFile{Name: fh.Filename, Data: data})
	}
	return files, nil
}

func readFormFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func writeUnavailable(c echo.Context) error {
	return WriteError(c, fmt.Errorf("%w: indexer not configured", lpn.ErrIndexUnavailable))
}

// WriteError maps domain errors onto status codes: caller mistakes are 400,
// a temporarily unreadable index is 503 with Retry-After, anything else 500.
func WriteError(c echo.Context, err error) error {
	switch {
	case lpn.IsInvalidInput(err), errors.Is(err, errInvalidMultipart):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, lpn.ErrIndexUnavailable):
		c.Response().Header().Set("Retry-After", "1")
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}
