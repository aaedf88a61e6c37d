package main

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/infill/internal/api"
	"github.com/samcharles93/infill/internal/logger"
	"github.com/samcharles93/infill/internal/registry"
	"github.com/samcharles93/infill/internal/webui"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		resultTTL   time.Duration
		playground  bool
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the collect API",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.DurationFlag{
				Name:        "result-ttl",
				Usage:       "how long finished collect results stay retrievable",
				Value:       time.Hour,
				Destination: &resultTTL,
			},
			&cli.BoolFlag{
				Name:        "playground",
				Usage:       "serve the browser playground at /",
				Value:       true,
				Destination: &playground,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)

			cfg := LoadConfig()
			applyModelConfig(cmd, cfg)
			applyServeConfig(cmd, cfg, &addr)

			reg := registry.New(registry.ToyLoader(log), registry.WithLogger(log))
			defer func() { _ = reg.Close(context.Background()) }()

			provider := api.NewRegistryProvider(reg, api.ProviderConfig{
				Default:    modelSpec(strings.TrimSpace(tokenizerPath)),
				ModelsPath: modelsPath,
			})
			server := api.NewServer(provider, api.NewResultStore(resultTTL), log)
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			if playground {
				ui := webui.Handler()
				e.GET("/*", func(c *echo.Context) error {
					ui.ServeHTTP(c.Response(), c.Request())
					return nil
				})
			}
			log.Info("starting server", "address", addr)
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			return sc.Start(ctx, e)
		},
	}
}
