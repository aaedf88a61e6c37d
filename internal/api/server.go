// Package api serves template collection over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/infill/internal/inference"
	"github.com/samcharles93/infill/internal/logger"
	"github.com/samcharles93/infill/internal/template"
	"github.com/samcharles93/infill/internal/version"
)

type Server struct {
	provider HandleProvider
	store    *ResultStore
	log      logger.Logger
	clock    func() time.Time
}

func NewServer(provider HandleProvider, store *ResultStore, log logger.Logger) *Server {
	if store == nil {
		store = NewResultStore(0)
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Server{
		provider: provider,
		store:    store,
		log:      log,
		clock:    time.Now,
	}
}

func (s *Server) Register(e *echo.Echo) {
	e.POST("/v1/collect", s.handleCollect)
	e.GET("/v1/collect/:id", s.handleGetResult)
	e.DELETE("/v1/collect/:id", s.handleDeleteResult)
	e.POST("/v1/cancel", s.handleCancel)
	e.GET("/v1/status", s.handleStatus)
	e.GET("/v1/models", s.handleModels)
	e.POST("/v1/tokenize", s.handleTokenize)
	e.POST("/v1/detokenize", s.handleDetokenize)
}

func (s *Server) handleCollect(c *echo.Context) error {
	if s.provider == nil {
		return writeError(c, http.StatusInternalServerError, "server_error", "model provider not configured", "", "")
	}
	req, err := decodeJSON[CollectRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	if err := req.validate(); err != nil {
		return writeBadRequest(c, err.Error())
	}

	id := newCollectID()
	log := s.log.With("collect_id", id)
	ctx := c.Request().Context()

	var sse *SSEStreamWriter
	if (req.Stream != nil && *req.Stream) || streamParam(c) {
		if sse, err = NewSSEStreamWriter(c); err != nil {
			return writeBadRequest(c, err.Error())
		}
	}

	resp := CollectResponse{
		ID:        id,
		Object:    "collect",
		CreatedAt: s.clock().Unix(),
	}
	err = s.provider.WithHandle(ctx, req.Model, func(h *inference.Handle) error {
		tc := req.Template.Context(h, template.WithLogger(log))
		tpl, err := req.Template.Compile(tc)
		if err != nil {
			return newInvalidRequest(err.Error())
		}
		resp.Preview = tpl.Preview()

		var emit inference.StreamFunc
		if sse != nil {
			emit = sse.Partial
		}
		before := h.TotalTokenCount()
		start := s.clock()
		res, err := tpl.CollectRefs(ctx, emit)
		resp.Usage.GeneratedTokens = h.TotalTokenCount() - before
		if err != nil {
			return err
		}
		if secs := s.clock().Sub(start).Seconds(); secs > 0 {
			resp.Usage.TokensPerSecond = float64(resp.Usage.GeneratedTokens) / secs
		}
		resp.Completion = res.Completion
		resp.Refs = res.Refs
		return nil
	})
	if err == nil && sse != nil {
		err = sse.Err()
	}
	if err != nil {
		log.Warn("collect failed", "error", err)
		if sse != nil && sse.Started() {
			return sse.Failed(err)
		}
		return writeFailure(c, err)
	}

	s.store.Put(resp)
	log.Info("collect finished", "tokens", resp.Usage.GeneratedTokens, "refs", len(resp.Refs))
	if sse != nil {
		return sse.Done(resp)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleGetResult(c *echo.Context) error {
	resp, ok := s.store.Get(c.Param("id"))
	if !ok {
		return writeNotFound(c, "collect result not found")
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleDeleteResult(c *echo.Context) error {
	id := c.Param("id")
	if !s.store.Delete(id) {
		return writeNotFound(c, "collect result not found")
	}
	return c.JSON(http.StatusOK, DeleteResponse{ID: id, Object: "collect.deleted", Deleted: true})
}

func (s *Server) handleCancel(c *echo.Context) error {
	h, ok := s.current()
	if !ok {
		return c.JSON(http.StatusOK, CancelResponse{State: inference.Waiting.String()})
	}
	if err := h.Cancel(c.Request().Context()); err != nil {
		return writeError(c, http.StatusGatewayTimeout, "server_error", err.Error(), "", "cancel_timeout")
	}
	return c.JSON(http.StatusOK, CancelResponse{State: h.State().String()})
}

func (s *Server) handleStatus(c *echo.Context) error {
	h, ok := s.current()
	if !ok {
		return c.JSON(http.StatusOK, StatusResponse{Version: version.String(), State: inference.Waiting.String()})
	}
	return c.JSON(http.StatusOK, StatusResponse{
		Version:     version.String(),
		Loaded:      true,
		State:       h.State().String(),
		TotalTokens: h.TotalTokenCount(),
		Last:        statsEntry(h.LastStats()),
	})
}

func (s *Server) handleModels(c *echo.Context) error {
	if s.provider == nil {
		return c.JSON(http.StatusOK, ModelList{Object: "list", Data: []ModelEntry{}})
	}
	names, err := s.provider.ListModels()
	if err != nil {
		return writeError(c, http.StatusInternalServerError, "server_error", err.Error(), "", "")
	}
	list := ModelList{Object: "list", Data: make([]ModelEntry, 0, len(names))}
	for _, name := range names {
		list.Data = append(list.Data, ModelEntry{ID: name, Object: "model"})
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleTokenize(c *echo.Context) error {
	req, err := decodeJSON[TokenizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	var ids []int
	err = s.withHandle(c, req.Model, func(h *inference.Handle) error {
		ids, err = h.Encode(req.Text)
		return err
	})
	if err != nil {
		return writeFailure(c, err)
	}
	if ids == nil {
		ids = []int{}
	}
	return c.JSON(http.StatusOK, TokenizeResponse{Tokens: ids, Count: len(ids)})
}

func (s *Server) handleDetokenize(c *echo.Context) error {
	req, err := decodeJSON[DetokenizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	var text string
	err = s.withHandle(c, req.Model, func(h *inference.Handle) error {
		text, err = h.Decode(req.Tokens)
		if err != nil {
			return newInvalidRequest(err.Error())
		}
		return nil
	})
	if err != nil {
		return writeFailure(c, err)
	}
	return c.JSON(http.StatusOK, DetokenizeResponse{Text: text})
}

func (s *Server) withHandle(c *echo.Context, model string, fn func(h *inference.Handle) error) error {
	if s.provider == nil {
		return newInvalidRequest("model provider not configured")
	}
	return s.provider.WithHandle(c.Request().Context(), model, fn)
}

func (s *Server) current() (*inference.Handle, bool) {
	if s.provider == nil {
		return nil, false
	}
	return s.provider.Current()
}
