package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/wireframe/examples/layouts"
	"github.com/danmuck/wireframe/internal/config"
	"github.com/danmuck/wireframe/internal/endpoint"
	"github.com/danmuck/wireframe/internal/observability"
	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/protocol/crc"
	"github.com/danmuck/wireframe/internal/transport/uart"
	"github.com/rs/zerolog/log"
)

// wireuart binds an Endpoint to a real serial port and logs every
// simple-layout frame it hears: a config file names the port and the
// baud rate (the layout is always the simple one and the CRC always
// CRC32IEEE, whatever the config's layout and crc_algorithm keys say);
// the process blocks on SIGINT/SIGTERM and does not reopen the port if
// it goes away.
func main() {
	observability.InitLogger("wireuart")

	configPath := "cmd/wireuart/config.toml"
	cfg, err := config.LoadEndpointConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("failed to load endpoint config")
	}
	log.Info().Str("path", configPath).Msg("loaded endpoint config")

	layout, err := layouts.Simple()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build simple layout")
	}

	t := uart.New(uart.Config{
		DevicePath: cfg.UART.DevicePath,
		VID:        cfg.UART.VID,
		PID:        cfg.UART.PID,
		BaudRate:   cfg.UART.BaudRate,
		ReadBuffer: cfg.UART.ReadBuffer,
	})
	if err := t.Open(); err != nil {
		log.Fatal().Err(err).Msg("failed to open uart transport")
	}
	defer t.Close()

	ep := endpoint.New(layout, crc.CRC32IEEE{}, t,
		endpoint.WithQueueCapacity(cfg.QueueCapacity),
		endpoint.WithDebug(cfg.Debug),
	)
	ep.SetReceiveCallback(func(snap protocol.FrameSnapshot) {
		dataVal, _ := snap.Get(protocol.NameData)
		log.Info().Int("bytes", len(dataVal.Bytes)).Time("received_at", snap.ReceivedAt).Msg("frame received")
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("name", cfg.Name).Msg("wireuart endpoint running")
	<-ctx.Done()

	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ep.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("endpoint close")
	}
}
