// Command n2knode runs one NMEA 2000 node: it claims a source address,
// decodes traffic against the known PGN set, and logs what it sees.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/halyard-systems/n2k-node"
	"github.com/halyard-systems/n2k-node/actisense"
	"github.com/halyard-systems/n2k-node/config"
	"github.com/halyard-systems/n2k-node/internal/utils"
	"github.com/halyard-systems/n2k-node/iso"
	"github.com/halyard-systems/n2k-node/metrics"
	"github.com/halyard-systems/n2k-node/pgn"
	"github.com/halyard-systems/n2k-node/socketcan"
	"github.com/halyard-systems/n2k-node/supervisor"
	"github.com/halyard-systems/n2k-node/transport"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		log.Fatalf("n2knode: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	driver, err := openDriver(cfg)
	if err != nil {
		logger.Error("open_driver_failed", "error", err)
		os.Exit(1)
	}
	defer driver.Close()

	if cfg.MetricsAddr != "" {
		srv := metrics.Serve(cfg.MetricsAddr)
		defer srv.Close()
		logger.Info("metrics_listening", "addr", cfg.MetricsAddr)
	}

	name := n2k.Name{
		UniqueNumber:            cfg.UniqueNumber,
		Manufacturer:            cfg.ManufacturerCode,
		DeviceFunction:          cfg.DeviceFunction,
		DeviceClass:             cfg.DeviceClass,
		IndustryGroup:           cfg.IndustryGroup,
		ArbitraryAddressCapable: true,
	}
	manager := iso.NewManager(name, cfg.PreferredAddress)

	svc := supervisor.NewService(driver, transport.RealClock{}, manager, pgn.DefaultRegistry.FastPacketPGNs(), cfg.Transport, logger)
	svc.OnMessage = func(raw n2k.RawMessage) {
		logMessage(logger, raw)
	}

	logger.Info("starting", "transport", cfg.Transport, "preferred_address", cfg.PreferredAddress)
	if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("service_ended", "error", err)
		os.Exit(1)
	}
}

func openDriver(cfg *config.Config) (transport.Driver, error) {
	switch cfg.Transport {
	case "socketcan":
		return socketcan.Open(cfg.CANInterface)
	case "actisense":
		return actisense.Open(cfg.SerialDevice, cfg.SerialBaud)
	default:
		return nil, fmt.Errorf("n2knode: unknown transport %q", cfg.Transport)
	}
}

func logMessage(logger *slog.Logger, raw n2k.RawMessage) {
	msg, err := pgn.DefaultRegistry.Decode(raw)
	if err != nil {
		metrics.DecodeErrors.WithLabelValues(fmt.Sprintf("%d", raw.Header.PGN)).Inc()
		logger.Debug("undecoded_pgn",
			"pgn", raw.Header.PGN,
			"source", raw.Header.Source,
			"data", utils.FormatSpaces(raw.Data))
		return
	}
	fields := make([]any, 0, len(msg.Fields)*2+4)
	fields = append(fields, "pgn", raw.Header.PGN, "source", raw.Header.Source, "name", msg.Descriptor.Name)
	for _, f := range msg.Fields {
		fields = append(fields, f.ID, fieldValue(f))
	}
	logger.Info("decoded", fields...)
}

func fieldValue(v pgn.Value) any {
	switch v.Kind {
	case pgn.Float:
		return v.Float
	case pgn.StringFix, pgn.StringLZ, pgn.StringLAU:
		return v.Str
	case pgn.Date:
		return v.Date
	case pgn.TimeOfDay:
		return v.Time
	case pgn.Binary, pgn.Variable:
		return utils.FormatSpaces(v.Bytes)
	default:
		if v.Absent {
			return "n/a"
		}
		return v.Uint
	}
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
