package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/lkirch/sciencesage/pkg/client"
	"github.com/lkirch/sciencesage/pkg/metrics"
	"github.com/lkirch/sciencesage/rag"
	"github.com/lkirch/sciencesage/rag/types"
	"github.com/mudler/xlog"
)

// answerService is what the API needs from the pipeline.
type answerService interface {
	Retrieve(ctx context.Context, query, topic string) (*types.Response, error)
	RetrieveAnswer(ctx context.Context, query, topic string, level types.Level) (*types.Response, error)
	Rephrase(ctx context.Context, query string) string
}

func newRouter(svc answerService, topics []string, m *metrics.Metrics) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	e.POST("/api/answer", answer(svc))
	e.POST("/api/retrieve", retrieve(svc))
	e.POST("/api/rephrase", rephrase(svc))
	e.GET("/api/topics", listTopics(topics))
	e.GET("/api/levels", listLevels)
	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if m != nil {
		e.GET("/metrics", echo.WrapHandler(m.Handler()))
	}

	return e
}

func startAPI(ctx context.Context, listenAddress string, svc answerService, topics []string, m *metrics.Metrics) error {
	e := newRouter(svc, topics, m)

	go func() {
		<-ctx.Done()
		if err := e.Shutdown(context.Background()); err != nil {
			xlog.Error("Failed to shut down the API", "error", err)
		}
	}()

	xlog.Info("API listening", "address", listenAddress)
	if err := e.Start(listenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}

// pipelineError maps pipeline failures to HTTP statuses.
func pipelineError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, rag.ErrEmptyQuery):
		return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
	case errors.Is(err, rag.ErrUpstreamUnavailable):
		xlog.Error("Answer unavailable", "error", err)
		return c.JSON(http.StatusServiceUnavailable, errorMessage(rag.ErrUpstreamUnavailable.Error()))
	default:
		xlog.Error("Request failed", "error", err)
		return c.JSON(http.StatusInternalServerError, errorMessage("internal error"))
	}
}

func answer(svc answerService) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(client.AnswerRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if strings.TrimSpace(r.Query) == "" {
			return c.JSON(http.StatusBadRequest, errorMessage(rag.ErrEmptyQuery.Error()))
		}

		level := types.LevelTechnical
		if r.Level != "" {
			var err error
			if level, err = types.ParseLevel(r.Level); err != nil {
				return c.JSON(http.StatusBadRequest, errorMessage(err.Error()+": "+r.Level))
			}
		}

		resp, err := svc.RetrieveAnswer(c.Request().Context(), r.Query, r.Topic, level)
		if err != nil {
			return pipelineError(c, err)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func retrieve(svc answerService) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(client.AnswerRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}

		resp, err := svc.Retrieve(c.Request().Context(), r.Query, r.Topic)
		if err != nil {
			return pipelineError(c, err)
		}
		return c.JSON(http.StatusOK, resp)
	}
}

func rephrase(svc answerService) func(c echo.Context) error {
	return func(c echo.Context) error {
		r := new(client.RephraseRequest)
		if err := c.Bind(r); err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
		}
		if strings.TrimSpace(r.Query) == "" {
			return c.JSON(http.StatusBadRequest, errorMessage(rag.ErrEmptyQuery.Error()))
		}
		return c.JSON(http.StatusOK, client.RephraseRequest{Query: svc.Rephrase(c.Request().Context(), r.Query)})
	}
}

func listTopics(topics []string) func(c echo.Context) error {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, topics)
	}
}

func listLevels(c echo.Context) error {
	levels := []client.Level{}
	for _, l := range types.Levels() {
		levels = append(levels, client.Level{ID: string(l), Name: l.DisplayName()})
	}
	return c.JSON(http.StatusOK, levels)
}
