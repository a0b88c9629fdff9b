package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ruteri/sefaz-config-gateway/api/servers"
	"github.com/ruteri/sefaz-config-gateway/cmd/flags"
	"github.com/ruteri/sefaz-config-gateway/common"
	"github.com/ruteri/sefaz-config-gateway/interfaces"
	"github.com/ruteri/sefaz-config-gateway/metrics"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := flags.LoadEnvFile(os.Args); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}

	app := &cli.App{
		Name:  "sefaz-config-gateway",
		Usage: "Serve tenant SEFAZ configuration, certificate upload and status checks",
		Flags: append(append(append([]cli.Flag{}, flags.CommonFlags...), flags.ServerFlags...), flags.GatewayFlags...),
		Action: func(cCtx *cli.Context) error {
			logger := flags.SetupLogger(cCtx)

			metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
			if err != nil {
				logger.Error("Failed to create metrics server", "err", err)
				return err
			}

			gw, err := newGateway(gatewayConfig{
				StorageDir:          cCtx.String(flags.StorageDirFlag.Name),
				CertificateBackends: cCtx.String(flags.CertificateBackendsFlag.Name),
				CertificateRetain:   cCtx.Int(flags.CertificateRetainFlag.Name),
				SecretStore:         cCtx.String(flags.SecretStoreFlag.Name),
				SecretKey:           cCtx.String(flags.SecretKeyFlag.Name),
				MaxUploadBytes:      cCtx.Int64(flags.MaxUploadBytesFlag.Name),
				Endpoints: interfaces.Endpoints{URLs: interfaces.EndpointURLs{
					Production: cCtx.String(flags.SefazURLProductionFlag.Name),
					Homolog:    cCtx.String(flags.SefazURLHomologFlag.Name),
				}},
				CUF:             cCtx.String(flags.SefazCUFFlag.Name),
				Timeout:         cCtx.Duration(flags.SefazTimeoutFlag.Name),
				PrettyXML:       cCtx.Bool(flags.SefazPrettyXMLFlag.Name),
				ClientCertMTLS:  cCtx.Bool(flags.SefazClientCertFlag.Name),
				StatusRateLimit: cCtx.Float64(flags.StatusRateLimitFlag.Name),
				StatusRateBurst: cCtx.Int(flags.StatusRateBurstFlag.Name),
			}, metricsSrv.Metrics(), logger)
			if err != nil {
				logger.Error("Failed to configure gateway", "err", err)
				return err
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			gw.start(ctx)

			server, err := servers.New(flags.ConfigureServer(cCtx, logger), metricsSrv, gw.handler)
			if err != nil {
				logger.Error("Failed to create server", "err", err)
				return err
			}
			server.RunInBackground()

			exit := make(chan os.Signal, 1)
			signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

			logger.Info("Server is running, press Ctrl+C to stop")
			<-exit
			logger.Info("Shutdown signal received")

			server.Shutdown()
			logger.Info("Server shutdown complete")
			return nil
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
