// Command pulsekit-demo drives the SDK against a configurable endpoint
// with a small scripted workload: one session, a nested action pair, a
// traced web request, and a user identification. Useful for smoke
// testing an ingestion endpoint and for watching the beacon protocol
// with verbose logging.
package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pulsekit/pulsekit"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pulsekit-demo",
		Short: "Send a scripted telemetry workload to an analytics endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
		SilenceUsage: true,
	}

	flags := cmd.Flags()
	flags.String("endpoint", "", "beacon endpoint URL (required)")
	flags.String("app-id", "pulsekit-demo", "application id")
	flags.String("app-name", "PulseKit Demo", "application name")
	flags.String("device-id", "demo-device", "device id")
	flags.Bool("verbose", false, "enable debug logging")
	flags.Bool("insecure", false, "trust all TLS certificates")

	// Flags can also come from PULSEKIT_* environment variables or an
	// optional config file next to the binary.
	viper.SetEnvPrefix("pulsekit")
	viper.AutomaticEnv()
	viper.SetConfigName("pulsekit-demo")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	_ = viper.ReadInConfig()
	_ = viper.BindPFlags(flags)

	return cmd
}

func run() error {
	endpoint := viper.GetString("endpoint")
	if endpoint == "" {
		return fmt.Errorf("--endpoint (or PULSEKIT_ENDPOINT) is required")
	}

	builder := pulsekit.NewBuilder(endpoint, viper.GetString("app-id"), viper.GetString("device-id")).
		WithApplicationName(viper.GetString("app-name")).
		WithOperatingSystem("demo-os")
	if viper.GetBool("verbose") {
		builder = builder.WithVerboseLogging()
	}
	if viper.GetBool("insecure") {
		builder = builder.WithTrustAllCertificates()
	}

	kit := builder.Build()
	defer kit.Shutdown()

	if !kit.WaitForInitCompletionTimeout(15_000) {
		return fmt.Errorf("endpoint %s did not answer the init handshake in time", endpoint)
	}

	session := kit.CreateSession("")
	session.IdentifyUser("demo-user")

	root := session.EnterAction("demo workload")
	root.ReportIntValue("iteration", 1)

	child := root.EnterAction("fetch example.com")
	tracer := child.TraceWebRequest("https://example.com/?probe=1")
	tracer.Start()
	code := probe("https://example.com/", tracer)
	tracer.Stop(code)
	child.LeaveAction()

	root.ReportEvent("workload done")
	root.LeaveAction()
	session.End()

	// Give the sender a moment to drain before shutdown flushes.
	time.Sleep(2 * time.Second)
	return nil
}

// probe issues the traced request with the correlation tag attached.
func probe(url string, tracer pulsekit.WebRequestTracer) int32 {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return -1
	}
	if tag := tracer.Tag(); tag != "" {
		req.Header.Set("X-dynaTrace", tag)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return -1
	}
	defer resp.Body.Close()
	tracer.SetBytesReceived(int32(resp.ContentLength))
	return int32(resp.StatusCode)
}
