package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/poiesic/colloquy"
	"github.com/poiesic/colloquy/agent"
	"github.com/poiesic/colloquy/core"
	"github.com/poiesic/colloquy/index"
	"github.com/poiesic/colloquy/ingestion"
	"github.com/poiesic/colloquy/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type createSessionRequest struct {
	ID string `json:"id"`
}

type messageRequest struct {
	Question string `json:"question"`
}

type messageView struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCall   *core.ToolCall   `json:"tool_call,omitempty"`
	ToolResult *core.ToolResult `json:"tool_result,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

type sourceView struct {
	Filename string `json:"filename"`
	Page     string `json:"page,omitempty"`
	Excerpt  string `json:"excerpt"`
}

type answerView struct {
	Answer     string       `json:"answer"`
	Mode       string       `json:"mode"`
	Standalone string       `json:"standalone,omitempty"`
	Sources    []sourceView `json:"sources,omitempty"`
	Tool       string       `json:"tool,omitempty"`
	ToolResult string       `json:"tool_result,omitempty"`
}

const excerptChars = 200

func newRouter(a *colloquy.Assistant, reg *prometheus.Registry, maxUpload int64) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = 8 << 20

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := r.Group("/api/sessions")
	api.POST("", func(c *gin.Context) {
		var req createSessionRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
				return
			}
		}
		id, err := a.NewSession(c.Request.Context(), req.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": id, "mode": a.Mode(id).String()})
	})

	api.GET("/:id/history", func(c *gin.Context) {
		history, err := a.History(c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]messageView, len(history))
		for i, m := range history {
			out[i] = messageView{
				Role:       m.Role.String(),
				Content:    m.Content,
				ToolCall:   m.ToolCall,
				ToolResult: m.ToolResult,
				Timestamp:  m.Timestamp,
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"mode":     a.Mode(c.Param("id")).String(),
			"files":    a.Files(c.Param("id")),
			"messages": out,
		})
	})

	api.DELETE("/:id", func(c *gin.Context) {
		if err := a.Reset(c.Param("id")); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	api.POST("/:id/messages", func(c *gin.Context) {
		var req messageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "question is required"})
			return
		}
		answer, err := a.Respond(c.Request.Context(), c.Param("id"), req.Question)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, viewAnswer(answer))
	})

	api.POST("/:id/files", func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUpload+1<<20)
		header, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field 'file' is required"})
			return
		}
		f, err := header.Open()
		if err != nil {
			writeError(c, err)
			return
		}
		defer f.Close()

		report, err := a.IngestAndAttach(c.Request.Context(), c.Param("id"), header.Filename, f)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"filename":   report.Filename,
			"kind":       report.Kind.String(),
			"documents":  report.Documents,
			"chunks":     report.Chunks,
			"index_size": report.IndexSize,
			"rows":       report.Rows,
			"columns":    report.Columns,
			"mode":       a.Mode(c.Param("id")).String(),
		})
	})

	api.GET("/:id/sources", func(c *gin.Context) {
		sources, err := a.Sources(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		out := make([]gin.H, len(sources))
		for i, s := range sources {
			out[i] = gin.H{
				"filename":        s.Filename,
				"chunks":          s.Chunks,
				"embedding_model": s.EmbeddingModel,
				"indexed_at":      s.IndexedAt,
			}
		}
		c.JSON(http.StatusOK, gin.H{"sources": out})
	})

	return r
}

func viewAnswer(a *agent.Answer) answerView {
	out := answerView{
		Answer:     a.Text,
		Mode:       a.Mode.String(),
		Standalone: a.Standalone,
		ToolResult: a.ToolResult,
	}
	if a.ToolCall != nil {
		out.Tool = a.ToolCall.Name
	}
	for _, chunk := range a.Sources {
		excerpt := []rune(chunk.Content)
		if len(excerpt) > excerptChars {
			excerpt = excerpt[:excerptChars]
		}
		out.Sources = append(out.Sources, sourceView{
			Filename: chunk.Source(),
			Page:     chunk.Metadata[core.MetadataPage],
			Excerpt:  string(excerpt),
		})
	}
	return out
}

func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, memory.ErrEmptySessionID), errors.Is(err, index.ErrEmptySessionID),
		errors.Is(err, agent.ErrEmptyQuestion):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, core.ErrParse), errors.Is(err, ingestion.ErrEmptyFile),
		errors.Is(err, ingestion.ErrNoText), errors.Is(err, ingestion.ErrNoHeader):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ingestion.ErrFileTooLarge), errors.As(err, &tooLarge):
		status = http.StatusRequestEntityTooLarge
	case errors.Is(err, agent.ErrModeLocked):
		status = http.StatusConflict
	case errors.Is(err, core.ErrGeneration), errors.Is(err, core.ErrEmbedding):
		status = http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status >= http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "err", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"elapsed", time.Since(start))
	}
}

func serve(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", addr)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
