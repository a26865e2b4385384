package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/tokquant/internal/api"
	"github.com/samcharles93/tokquant/internal/logger"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		storeSize   int
		maxElements int
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the quantization REST API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read header timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.IntFlag{
				Name:        "store-size",
				Usage:       "number of results kept for GET /v1/quantizations/:id",
				Value:       api.DefaultStoreCapacity,
				Destination: &storeSize,
			},
			&cli.IntFlag{
				Name:        "max-elements",
				Usage:       "largest rows*cols accepted per request",
				Value:       api.DefaultMaxElements,
				Destination: &maxElements,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyServeConfig(cmd, fileConfig, &addr)

			q := newQuantizer()
			defer q.Close()

			server := api.NewServer(api.Config{
				Quantizer:   q,
				Store:       api.NewQuantizationStore(storeSize),
				Logger:      log,
				MaxElements: maxElements,
			})
			e := echo.New()
			e.Use(middleware.RequestLogger())
			e.Use(middleware.Recover())
			server.Register(e)
			log.Info("starting server", "address", addr, "workers", q.Workers())
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
