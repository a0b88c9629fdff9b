package flags

import (
	"errors"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/ruteri/sefaz-config-gateway/api/servers"
	"github.com/ruteri/sefaz-config-gateway/common"
	"github.com/urfave/cli/v2"
)

// DefaultEnvFile is loaded when --env-file is not given.
const DefaultEnvFile = ".env"

// LoadEnvFile loads the dotenv file named by --env-file in args, or .env.
// It runs before flag parsing so EnvVars bindings see the values. Variables
// already set in the environment win. A missing default file is not an error.
func LoadEnvFile(args []string) error {
	path, explicit := envFileFromArgs(args)
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func envFileFromArgs(args []string) (string, bool) {
	for i, arg := range args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(arg, "-"), "=")
		if !strings.HasPrefix(arg, "-") || name != EnvFileFlag.Name {
			continue
		}
		if hasValue {
			return value, true
		}
		if i+1 < len(args) {
			return args[i+1], true
		}
	}
	return DefaultEnvFile, false
}

func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJsonFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUidFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *servers.ServerConfig {
	return &servers.ServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadHeaderTimeout:        10 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
		IdleTimeout:              2 * time.Minute,
	}
}

var EnvFileFlag = &cli.StringFlag{
	Name:  "env-file",
	Value: DefaultEnvFile,
	Usage: "dotenv file loaded before reading flags; a missing default file is ignored",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:    "listen-addr",
	Value:   "127.0.0.1:3030",
	Usage:   "address to listen on for API",
	EnvVars: []string{"CONFIG_LISTEN_ADDR"},
}

var LogJsonFlag = &cli.BoolFlag{
	Name:    "log-json",
	Value:   false,
	Usage:   "log in JSON format",
	EnvVars: []string{"LOG_JSON"},
}
var LogDebugFlag = &cli.BoolFlag{
	Name:    "log-debug",
	Value:   false,
	Usage:   "log debug messages",
	EnvVars: []string{"LOG_DEBUG"},
}
var LogUidFlag = &cli.BoolFlag{
	Name:    "log-uid",
	Value:   false,
	Usage:   "generate a uuid and add to all log messages",
	EnvVars: []string{"LOG_UID"},
}
var LogServiceFlag = &cli.StringFlag{
	Name:    "log-service",
	Value:   common.PackageName,
	Usage:   "add 'service' tag to logs",
	EnvVars: []string{"LOG_SERVICE"},
}

var PprofFlag = &cli.BoolFlag{
	Name:    "pprof",
	Value:   false,
	Usage:   "enable pprof debug endpoint",
	EnvVars: []string{"PPROF"},
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:    "drain-seconds",
	Value:   45,
	Usage:   "seconds to wait in drain HTTP request",
	EnvVars: []string{"DRAIN_SECONDS"},
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:    "metrics-addr",
	Value:   "127.0.0.1:8090",
	Usage:   "address to listen on for Prometheus metrics, empty to disable",
	EnvVars: []string{"METRICS_ADDR"},
}

var StorageDirFlag = &cli.StringFlag{
	Name:    "storage-dir",
	Value:   "storage",
	Usage:   "directory holding tenant configuration records",
	EnvVars: []string{"STORAGE_DIR"},
}
var CertificateBackendsFlag = &cli.StringFlag{
	Name:    "certificate-backends",
	Usage:   "comma separated file:// or s3:// URIs for certificate blobs (default file://<storage-dir>/certificados)",
	EnvVars: []string{"CERTIFICATE_BACKENDS"},
}
var CertificateRetainFlag = &cli.IntFlag{
	Name:    "certificate-retain",
	Value:   0,
	Usage:   "certificates kept per tenant, older uploads are pruned; 0 keeps all",
	EnvVars: []string{"CERTIFICATE_RETAIN"},
}
var SecretStoreFlag = &cli.StringFlag{
	Name:    "secret-store",
	Value:   "sealed",
	Usage:   "passphrase store: 'sealed' or a vault://host:port/mount/path URI (token from VAULT_TOKEN)",
	EnvVars: []string{"SECRET_STORE"},
}
var SecretKeyFlag = &cli.StringFlag{
	Name:    "secret-key",
	Usage:   "hex-encoded master secret (at least 32 bytes) of the sealed passphrase store",
	EnvVars: []string{"SECRET_KEY"},
}
var MaxUploadBytesFlag = &cli.Int64Flag{
	Name:    "max-upload-bytes",
	Value:   10 << 20,
	Usage:   "maximum size of a certificate upload request",
	EnvVars: []string{"MAX_UPLOAD_BYTES"},
}

var SefazURLProductionFlag = &cli.StringFlag{
	Name:    "sefaz-url-production",
	Value:   "https://nfe.fazenda.mg.gov.br/nfe2/services/NFeStatusServico4",
	Usage:   "status service URL assigned to new tenants for production",
	EnvVars: []string{"SEFAZ_URL_PRODUCTION"},
}
var SefazURLHomologFlag = &cli.StringFlag{
	Name:    "sefaz-url-homolog",
	Value:   "https://hnfe.fazenda.mg.gov.br/nfe2/services/NFeStatusServico4",
	Usage:   "status service URL assigned to new tenants for homolog",
	EnvVars: []string{"SEFAZ_URL_HOMOLOG"},
}
var SefazCUFFlag = &cli.StringFlag{
	Name:    "sefaz-cuf",
	Value:   "31",
	Usage:   "two digit state code sent in status requests",
	EnvVars: []string{"SEFAZ_CUF"},
}
var SefazTimeoutFlag = &cli.DurationFlag{
	Name:    "sefaz-timeout",
	Value:   5 * time.Second,
	Usage:   "timeout of one status request",
	EnvVars: []string{"SEFAZ_TIMEOUT"},
}
var SefazPrettyXMLFlag = &cli.BoolFlag{
	Name:    "sefaz-pretty-xml",
	Value:   false,
	Usage:   "indent the status request envelope",
	EnvVars: []string{"SEFAZ_PRETTY_XML"},
}
var SefazClientCertFlag = &cli.BoolFlag{
	Name:    "sefaz-client-cert",
	Value:   false,
	Usage:   "present the tenant's uploaded certificate as TLS client certificate",
	EnvVars: []string{"SEFAZ_CLIENT_CERT"},
}

var StatusRateLimitFlag = &cli.Float64Flag{
	Name:    "status-rate-limit",
	Value:   0,
	Usage:   "status checks per second allowed per tenant; 0 disables the limit",
	EnvVars: []string{"STATUS_RATE_LIMIT"},
}
var StatusRateBurstFlag = &cli.IntFlag{
	Name:    "status-rate-burst",
	Value:   3,
	Usage:   "status check burst per tenant",
	EnvVars: []string{"STATUS_RATE_BURST"},
}

var CommonFlags = []cli.Flag{
	EnvFileFlag,
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

var GatewayFlags = []cli.Flag{
	StorageDirFlag,
	CertificateBackendsFlag,
	CertificateRetainFlag,
	SecretStoreFlag,
	SecretKeyFlag,
	MaxUploadBytesFlag,
	SefazURLProductionFlag,
	SefazURLHomologFlag,
	SefazCUFFlag,
	SefazTimeoutFlag,
	SefazPrettyXMLFlag,
	SefazClientCertFlag,
	StatusRateLimitFlag,
	StatusRateBurstFlag,
}
