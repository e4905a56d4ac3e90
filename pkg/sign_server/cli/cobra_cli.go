package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	otlp_util "github.com/bluexlab/otlp-util-go"
	"github.com/gobuffalo/pop"
	"github.com/gobuffalo/pop/logging"
	"github.com/goccy/go-json"
	"github.com/openc2pa/openc2pa/pkg/c2pa"
	"github.com/openc2pa/openc2pa/pkg/config"
	"github.com/openc2pa/openc2pa/pkg/sign_server/api"
	"github.com/openc2pa/openc2pa/pkg/sign_server/cert_authority"
	"github.com/openc2pa/openc2pa/pkg/util"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

const appName string = "sign-server"

// Config is the top level configuration file for the server commands.
type Config struct {
	api.RestServerConfig `yaml:",inline"`
	OTLPEndpoint         string `yaml:"otlp_endpoint"`
}

// App is the main application structure for the Cobra-based CLI
type App struct {
	rootCmd *cobra.Command
}

// NewApp creates a new instance of the Cobra CLI application
func NewApp() *App {
	app := &App{}
	app.rootCmd = &cobra.Command{
		Use:   appName,
		Short: "Content credential signing server",
		Long:  `Sign server issues signing certificates and embeds content credentials into assets.`,
	}

	// Add server command
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Run the sign server",
		RunE:  app.runServer,
	}
	serverCmd.Flags().StringP("config", "c", "", "Path to the configuration file")
	serverCmd.MarkFlagRequired("config")
	serverCmd.MarkFlagFilename("config")
	app.rootCmd.AddCommand(serverCmd)

	// Add migrate command
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Migrate the database",
		RunE:  app.runMigrate,
	}
	migrateCmd.Flags().StringP("config", "c", "", "Path to the configuration file")
	migrateCmd.Flags().StringP("path", "p", "migrations", "Path to the migration files")
	migrateCmd.MarkFlagRequired("config")
	migrateCmd.MarkFlagFilename("config")
	migrateCmd.MarkFlagDirname("path")
	app.rootCmd.AddCommand(migrateCmd)

	// Add token-hash command
	tokenHashCmd := &cobra.Command{
		Use:   "token-hash [token]",
		Short: "Generate the bcrypt hash of a bearer token for the server configuration",
		Args:  cobra.ExactArgs(1),
		RunE:  app.runTokenHash,
	}
	app.rootCmd.AddCommand(tokenHashCmd)

	// Add client command
	clientCmd := &cobra.Command{
		Use:   "client",
		Short: "Client commands for interacting with the sign server",
	}
	clientCmd.PersistentFlags().StringP("server", "s", "", "Server address")
	clientCmd.PersistentFlags().StringP("token", "t", "", "Bearer token")
	clientCmd.MarkPersistentFlagRequired("server")
	app.rootCmd.AddCommand(clientCmd)

	signCSRCmd := &cobra.Command{
		Use:   "sign-csr",
		Short: "Submit a certificate signing request",
		RunE:  app.runSignCSR,
	}
	signCSRCmd.Flags().StringP("csr", "f", "", "Path to the PEM encoded CSR file")
	signCSRCmd.Flags().StringP("requester", "r", "", "Requester name")
	signCSRCmd.Flags().String("common-name", "", "Common name override")
	signCSRCmd.Flags().StringArray("country", nil, "Country name override")
	signCSRCmd.Flags().StringArray("org", nil, "Organization name override")
	signCSRCmd.Flags().StringArray("unit", nil, "Unit name override")
	signCSRCmd.MarkFlagRequired("csr")
	signCSRCmd.MarkFlagFilename("csr")
	clientCmd.AddCommand(signCSRCmd)

	temporaryCertCmd := &cobra.Command{
		Use:   "temporary-cert",
		Short: "Issue a short-lived certificate with a server generated key",
		RunE:  app.runTemporaryCert,
	}
	clientCmd.AddCommand(temporaryCertCmd)

	configurationCmd := &cobra.Command{
		Use:   "configuration",
		Short: "Fetch the signing configuration of the server",
		RunE:  app.runConfiguration,
	}
	clientCmd.AddCommand(configurationCmd)

	signAssetCmd := &cobra.Command{
		Use:   "sign-asset",
		Short: "Embed a signed manifest into an asset",
		RunE:  app.runSignAsset,
	}
	signAssetCmd.Flags().StringP("manifest", "m", "", "Path to the manifest definition JSON file")
	signAssetCmd.Flags().StringP("input", "i", "", "Path to the asset file")
	signAssetCmd.Flags().StringP("output", "o", "", "Path to write the signed asset")
	signAssetCmd.Flags().StringP("format", "f", "image/jpeg", "MIME type of the asset")
	signAssetCmd.Flags().Bool("verify", false, "Verify the signed asset on the server")
	signAssetCmd.MarkFlagRequired("manifest")
	signAssetCmd.MarkFlagRequired("input")
	signAssetCmd.MarkFlagRequired("output")
	signAssetCmd.MarkFlagFilename("manifest")
	signAssetCmd.MarkFlagFilename("input")
	clientCmd.AddCommand(signAssetCmd)

	return app
}

// Run executes the CLI application
func (app *App) Run() {
	if err := app.rootCmd.Execute(); err != nil {
		logrus.Errorf("failed to run command: %v", err)
		os.Exit(1)
	}
}

// Server command implementation
func (app *App) runServer(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	cfg := Config{}
	if err := config.FromFile(configPath, &cfg); err != nil {
		logrus.Errorf("failed to load config: %v", err)
		return err
	}

	ctx := context.Background()
	if endpoint := cfg.OTLPEndpoint; endpoint != "" {
		exporter, err := otlp_util.InitExporter(
			otlp_util.WithContext(ctx),
			otlp_util.WithEndPoint(endpoint),
			otlp_util.WithServiceName(appName),
			otlp_util.WithInSecure(),
			otlp_util.WithErrorHandler(func(err error) {
				logrus.Warnf("OTLP error: %v", err)
			}),
		)
		if err != nil {
			logrus.Errorf("failed to initialize OTLP exporter: %v", err)
			return err
		}
		defer func() { _ = exporter.Shutdown(ctx) }()
	}

	// The native manifest engine binding is linked by deployments that serve
	// the asset signing endpoint. Certificate endpoints work without it.
	engine := c2pa.Unavailable("engine binding not linked into this build")

	restServer, err := api.NewRestServerWithConfig(cfg.RestServerConfig, engine)
	if err != nil {
		logrus.Errorf("failed to create rest server: %v", err)
		return err
	}

	logrus.Info("starting sign server.")
	go func() {
		if err := restServer.Run(); err != nil {
			logrus.Errorf("failed to start sign server: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server......")
	restServer.Close(ctx)
	return nil
}

// Migrate command implementation
func (app *App) runMigrate(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	migrationsPath, _ := cmd.Flags().GetString("path")

	popLogger := func(lvl logging.Level, s string, args ...interface{}) {
		switch lvl {
		case logging.Debug:
			logrus.Debugf(s, args...)
		case logging.Info:
			logrus.Infof(s, args...)
		case logging.Warn:
			logrus.Warnf(s, args...)
		case logging.Error:
			logrus.Errorf(s, args...)
		case logging.SQL:
			// Do nothing because we don't want to log SQL queries.
		}
	}

	pop.SetLogger(popLogger)
	cfg := Config{}
	if err := config.FromFile(configPath, &cfg); err != nil {
		logrus.Errorf("failed to load config: %v", err)
		return err
	}

	cd := pop.ConnectionDetails{
		Dialect:  "postgres",
		Database: cfg.Database.Database,
		Host:     cfg.Database.Host,
		Port:     fmt.Sprintf("%d", cfg.Database.Port),
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
	}
	conn, err := pop.NewConnection(&cd)
	if err != nil {
		logrus.Errorf("failed to create connection: %v", err)
		return err
	}

	if err := conn.Dialect.CreateDB(); err != nil {
		logrus.Warnf("failed to create database: %v", err)
	}

	migrator, err := pop.NewFileMigrator(migrationsPath, conn)
	if err != nil {
		logrus.Errorf("failed to create migrator: %v", err)
		return err
	}
	// Remove SchemaPath to prevent migrator try to dump schema.
	migrator.SchemaPath = ""

	if err := migrator.Up(); err != nil {
		logrus.Errorf("failed to migrate: %v", err)
		return err
	}

	return nil
}

func (app *App) runTokenHash(cmd *cobra.Command, args []string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(args[0]), bcrypt.DefaultCost)
	if err != nil {
		logrus.Errorf("failed to hash token: %v", err)
		return err
	}
	fmt.Println(string(hash))
	return nil
}

// Client command implementations
func (app *App) runSignCSR(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	csrPath, _ := cmd.Flags().GetString("csr")
	requester, _ := cmd.Flags().GetString("requester")
	commonName, _ := cmd.Flags().GetString("common-name")
	country, _ := cmd.Flags().GetStringArray("country")
	org, _ := cmd.Flags().GetStringArray("org")
	unit, _ := cmd.Flags().GetStringArray("unit")

	csrPEM, err := os.ReadFile(csrPath)
	if err != nil {
		logrus.Errorf("failed to read CSR file: %v", err)
		return err
	}

	var metadata *cert_authority.CertMetadata
	if commonName != "" || len(country) > 0 || len(org) > 0 || len(unit) > 0 {
		metadata = &cert_authority.CertMetadata{
			CommonName:         commonName,
			Country:            country,
			Organization:       org,
			OrganizationalUnit: unit,
		}
	}

	client := NewRestClient(server, token)
	cert, err := client.SignCSR(string(csrPEM), requester, metadata)
	if err != nil {
		logrus.Errorf("failed to sign CSR: %v", err)
		return err
	}

	pretty := bytes.Buffer{}
	json.Indent(&pretty, []byte(util.StructToJSON(cert)), "", "  ")
	fmt.Println(pretty.String())
	return nil
}

func (app *App) runTemporaryCert(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")

	client := NewRestClient(server, token)
	cert, err := client.IssueTemporaryCert()
	if err != nil {
		logrus.Errorf("failed to issue temporary certificate: %v", err)
		return err
	}

	pretty := bytes.Buffer{}
	json.Indent(&pretty, []byte(util.StructToJSON(cert)), "", "  ")
	fmt.Println(pretty.String())
	return nil
}

func (app *App) runSignAsset(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")
	manifestPath, _ := cmd.Flags().GetString("manifest")
	inputPath, _ := cmd.Flags().GetString("input")
	outputPath, _ := cmd.Flags().GetString("output")
	format, _ := cmd.Flags().GetString("format")
	verify, _ := cmd.Flags().GetBool("verify")

	manifestJSON, err := os.ReadFile(manifestPath)
	if err != nil {
		logrus.Errorf("failed to read manifest file: %v", err)
		return err
	}
	asset, err := os.ReadFile(inputPath)
	if err != nil {
		logrus.Errorf("failed to read asset file: %v", err)
		return err
	}

	client := NewRestClient(server, token)
	signedAsset, err := client.SignAsset(string(manifestJSON), format, asset, verify)
	if err != nil {
		logrus.Errorf("failed to sign asset: %v", err)
		return err
	}

	if err := os.WriteFile(outputPath, signedAsset, 0644); err != nil {
		logrus.Errorf("failed to write signed asset: %v", err)
		return err
	}
	logrus.Infof("Signed asset written to %s", outputPath)
	return nil
}

func (app *App) runConfiguration(cmd *cobra.Command, args []string) error {
	server, _ := cmd.Flags().GetString("server")
	token, _ := cmd.Flags().GetString("token")

	client := NewRestClient(server, token)
	configuration, err := client.GetConfiguration()
	if err != nil {
		logrus.Errorf("failed to fetch configuration: %v", err)
		return err
	}

	pretty := bytes.Buffer{}
	json.Indent(&pretty, []byte(util.StructToJSON(configuration)), "", "  ")
	fmt.Println(pretty.String())
	return nil
}
