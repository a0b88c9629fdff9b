package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/ruteri/sefaz-config-gateway/api/confighandler"
	"github.com/ruteri/sefaz-config-gateway/cmd/flags"
	"github.com/urfave/cli/v2"
)

var flagServer *cli.StringFlag = &cli.StringFlag{
	Name:    "server",
	Value:   "http://127.0.0.1:3030",
	Usage:   "Gateway address to request",
	EnvVars: []string{"CONFIG_SERVER"},
}
var flagCNPJ *cli.StringFlag = &cli.StringFlag{
	Name:     "cnpj",
	Required: true,
	Usage:    "Tenant CNPJ",
}
var flagAmbiente *cli.StringFlag = &cli.StringFlag{
	Name:     "ambiente",
	Required: true,
	Usage:    "Environment to switch to: production or homolog",
}
var flagCertificate *cli.StringFlag = &cli.StringFlag{
	Name:     "certificate",
	Required: true,
	Usage:    "Path to the PKCS#12 certificate file",
}
var flagSenha *cli.StringFlag = &cli.StringFlag{
	Name:    "senha",
	Usage:   "Certificate passphrase",
	EnvVars: []string{"CERTIFICATE_PASSWORD"},
}
var flagTimeout *cli.DurationFlag = &cli.DurationFlag{
	Name:  "timeout",
	Value: 30 * time.Second,
	Usage: "Request timeout",
}

func main() {
	if err := flags.LoadEnvFile(os.Args); err != nil {
		log.Fatalf("failed to load env file: %v", err)
	}

	app := &cli.App{
		Name:  "configclient",
		Usage: "Manage tenant configuration on a SEFAZ configuration gateway",
		Flags: []cli.Flag{flags.EnvFileFlag, flagServer, flagTimeout},
		Commands: []*cli.Command{
			{
				Name:  "get",
				Usage: "Print the tenant configuration",
				Flags: []cli.Flag{flagCNPJ},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel, client := setup(cCtx)
					defer cancel()

					cfg, err := client.GetConfig(ctx, cCtx.String(flagCNPJ.Name))
					if err != nil {
						return err
					}
					return printJSON(cfg)
				},
			},
			{
				Name:  "set-env",
				Usage: "Switch the tenant between production and homolog",
				Flags: []cli.Flag{flagCNPJ, flagAmbiente},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel, client := setup(cCtx)
					defer cancel()

					resp, err := client.SetEnvironment(ctx, cCtx.String(flagCNPJ.Name), cCtx.String(flagAmbiente.Name))
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "upload",
				Usage: "Upload the tenant certificate",
				Flags: []cli.Flag{flagCNPJ, flagCertificate, flagSenha},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel, client := setup(cCtx)
					defer cancel()

					path := cCtx.String(flagCertificate.Name)
					f, err := os.Open(path)
					if err != nil {
						return fmt.Errorf("could not open certificate: %w", err)
					}
					defer f.Close()

					resp, err := client.UploadCertificate(ctx, cCtx.String(flagCNPJ.Name), filepath.Base(path), f, cCtx.String(flagSenha.Name))
					if err != nil {
						return err
					}
					return printJSON(resp)
				},
			},
			{
				Name:  "test",
				Usage: "Check the status service of the tenant's environment",
				Flags: []cli.Flag{flagCNPJ},
				Action: func(cCtx *cli.Context) error {
					ctx, cancel, client := setup(cCtx)
					defer cancel()

					status, err := client.TestStatus(ctx, cCtx.String(flagCNPJ.Name))
					if status != nil {
						if printErr := printJSON(status); printErr != nil {
							return printErr
						}
					}
					return err
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func setup(cCtx *cli.Context) (context.Context, context.CancelFunc, *confighandler.Client) {
	ctx, cancel := context.WithTimeout(cCtx.Context, cCtx.Duration(flagTimeout.Name))
	return ctx, cancel, confighandler.NewClient(cCtx.String(flagServer.Name), nil)
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
