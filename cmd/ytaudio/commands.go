package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"ytaudio/internal/failure"
	"ytaudio/internal/server"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP download service",
		Action: func(c *cli.Context) error {
			svc, err := newService(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := server.New(svc.orch, svc.files, server.Options{
				Addr:              svc.cfg.Server.Addr(),
				RequestsPerSecond: svc.cfg.Server.RequestsPerSecond,
				Burst:             svc.cfg.Server.Burst,
			}, svc.log)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(srv.Start)
			g.Go(func() error {
				return svc.files.RunJanitor(gctx, svc.cfg.Download.JanitorInterval, svc.cfg.Download.MaxFileAge)
			})
			g.Go(func() error {
				<-gctx.Done()
				svc.log.Info("Shutting down server...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), svc.cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("server forced to shutdown: %w", err)
				}
				svc.log.Info("Server exited")
				return nil
			})
			return g.Wait()
		},
	}
}

func fetchCommand() *cli.Command {
	return &cli.Command{
		Name:      "fetch",
		Usage:     "Download one URL's audio to a local file",
		ArgsUsage: "<url>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "destination file (defaults to the stored file name)",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("fetch requires exactly one URL", 2)
			}
			svc, err := newService(c)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			defer svc.Close()

			ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
			defer stop()

			out, err := svc.orch.Run(ctx, c.Args().First())
			if err != nil {
				var fe *failure.Error
				if errors.As(err, &fe) {
					return cli.Exit(fe.Detail(), 1)
				}
				return err
			}
			defer svc.files.Release(out.File.Path)

			dest := c.String("output")
			if dest == "" {
				dest = out.File.Name()
			}
			if err := copyFile(dest, out.File.Path); err != nil {
				return err
			}
			svc.log.Info("Saved audio", "path", dest, "size", out.File.Size, "attempts", out.Attempts)
			return nil
		},
	}
}

func versionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print version information",
		Action: func(c *cli.Context) error {
			fmt.Fprintf(c.App.Writer, "ytaudio %s (commit: %s)\n", version, commit)
			return nil
		},
	}
}

func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return out.Close()
}
