package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"gopixel/host/stream"
)

const defaultListen = ":8080"

var (
	serveStrip  stripFlags
	serveListen string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept frames over a websocket",
	Long: `Listens on --listen and writes every binary websocket message received on
/frames to the strip. Each message must be exactly one frame; the server
answers each with {"frame":n} or {"frame":n,"error":"..."}.`,
	Example: "  gopixel-host -c strips.toml -s shelf serve --listen :9000",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := loadFile()
		if err != nil {
			return err
		}
		sc, err := serveStrip.resolve(cmd, file)
		if err != nil {
			return err
		}
		out, err := openSink(sc, serveStrip.deviceName(file))
		if err != nil {
			return err
		}
		defer out.Close()

		addr := serveListen
		if !cmd.Flags().Changed("listen") && file.Listen != "" {
			addr = file.Listen
		}
		mux := http.NewServeMux()
		mux.Handle("/frames", stream.NewServer(out, sc.Order, sc.Bytes(), log))
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		errc := make(chan error, 1)
		go func() { errc <- srv.ListenAndServe() }()
		log.Info().Str("addr", addr).Str("driver", sc.Driver).Int("frame_bytes", sc.Bytes()).Msg("serving frames")

		select {
		case err := <-errc:
			return err
		case <-ctx.Done():
		}
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveStrip.register(serveCmd.Flags(), "bitbang, spi, console or mcu")
	serveCmd.Flags().StringVar(&serveListen, "listen", defaultListen, "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}
