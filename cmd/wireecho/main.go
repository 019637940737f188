package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/wireframe/examples/layouts"
	"github.com/danmuck/wireframe/internal/config"
	"github.com/danmuck/wireframe/internal/endpoint"
	"github.com/danmuck/wireframe/internal/observability"
	"github.com/danmuck/wireframe/internal/protocol"
	"github.com/danmuck/wireframe/internal/protocol/crc"
	"github.com/danmuck/wireframe/internal/transport/echo"
	"github.com/rs/zerolog/log"
)

// wireecho demonstrates an Endpoint bound to the in-process echo
// transport: it sends a dispatch-layout frame with each of the
// PayloadMap's variant codes and logs every snapshot it receives back.
func main() {
	observability.InitLogger("wireecho")

	configPath := "cmd/wireecho/config.toml"
	cfg, err := config.LoadEndpointConfig(configPath)
	if err != nil {
		log.Warn().Err(err).Str("path", configPath).Msg("using built-in defaults, no config file found")
		cfg = config.EndpointConfig{Name: "wireecho", Layout: "dispatch", CrcAlgorithm: "crc32-ieee", Transport: "echo", QueueCapacity: 100}
	}

	layout, err := layouts.Dispatch()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build dispatch layout")
	}

	t := echo.New()
	if err := t.Open(); err != nil {
		log.Fatal().Err(err).Msg("failed to open echo transport")
	}
	defer t.Close()

	ep := endpoint.New(layout, crc.CRC32IEEE{}, t,
		endpoint.WithQueueCapacity(cfg.QueueCapacity),
		endpoint.WithDebug(cfg.Debug),
	)

	ep.SetReceiveCallback(func(snap protocol.FrameSnapshot) {
		typeVal, _ := snap.Get(protocol.NameType)
		code, _ := typeVal.Uint8()
		log.Info().Uint8("type", code).Msg("received snapshot")
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for _, code := range []uint32{layouts.VariantA, layouts.VariantB, layouts.VariantC, layouts.VariantD} {
		data := make([]byte, variantSize(code))
		if _, err := ep.Send(ctx, protocol.Uint8Value(protocol.NameType, uint8(code)), protocol.BytesValue(protocol.NameData, data)); err != nil {
			log.Error().Err(err).Uint32("type", code).Msg("send failed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	<-ctx.Done()
	closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := ep.Close(closeCtx); err != nil {
		log.Error().Err(err).Msg("endpoint close")
	}
}

func variantSize(code uint32) int {
	switch code {
	case layouts.VariantA:
		return 19
	case layouts.VariantB:
		return 1
	case layouts.VariantC:
		return 17
	default:
		return 0
	}
}
