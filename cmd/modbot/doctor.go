package main

import (
	"fmt"
	"io"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/spf13/cobra"

	"modbot/internal/config"
)

const dialTimeout = 3 * time.Second

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your modbot setup",
		Long: `Verifies that the configuration is present and valid, that the moderation
service is reachable, that enabled platforms have credentials and that the
admin port is free. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor(cmd.OutOrStdout(), config.ExpandPath(resolveConfigPath()))
		},
	}
}

type doctor struct {
	w                      io.Writer
	passed, warned, failed int
}

func (d *doctor) pass(check, detail string) {
	d.passed++
	fmt.Fprintf(d.w, "  [PASS] %-20s %s\n", check, detail)
}

func (d *doctor) fail(check, detail string) {
	d.failed++
	fmt.Fprintf(d.w, "  [FAIL] %-20s %s\n", check, detail)
}

func (d *doctor) warn(check, detail string) {
	d.warned++
	fmt.Fprintf(d.w, "  [WARN] %-20s %s\n", check, detail)
}

func runDoctor(w io.Writer, cfgPath string) error {
	d := &doctor{w: w}
	fmt.Fprintf(w, "modbot doctor v%s\n", version)
	fmt.Fprintf(w, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

	// 1. Config file exists
	if _, err := os.Stat(cfgPath); err != nil {
		d.fail("Config file", fmt.Sprintf("not found at %s", cfgPath))
		fmt.Fprintf(w, "\nRun 'modbot config init' to create a default configuration.\n")
		return fmt.Errorf("config file not found")
	}
	d.pass("Config file", cfgPath)

	// 2. Config loads and validates
	cfg, err := config.Load(cfgPath)
	if err != nil {
		d.fail("Config validation", err.Error())
		return d.summary()
	}
	d.pass("Config validation", "valid")

	// 3. Moderation service reachable
	if addr, err := hostPort(cfg.Oracle.BaseURL); err != nil {
		d.fail("Moderation service", err.Error())
	} else if err := checkDial(addr); err != nil {
		d.fail("Moderation service", fmt.Sprintf("%s unreachable: %v", addr, err))
	} else {
		d.pass("Moderation service", addr)
	}

	// 4. Platforms
	platforms := cfg.EnabledPlatforms()
	if len(platforms) == 0 {
		d.fail("Platforms", "no platform enabled")
	}
	for _, name := range platforms {
		mod := cfg.ModerationFor(name)
		if mod.ModerationChannel == "" && mod.LogsChannel == "" {
			d.warn("Platform: "+name, "no moderation or logs channel, reports are dropped")
		} else {
			d.pass("Platform: "+name, "configured")
		}
	}

	// 5. Admin port
	if cfg.Server.Enabled {
		if err := checkPort(cfg.Server.Addr); err != nil {
			d.warn("Admin server", fmt.Sprintf("%s may be in use: %v", cfg.Server.Addr, err))
		} else {
			d.pass("Admin server", cfg.Server.Addr+" available")
		}
	}

	// 6. Tracing
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" && os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		d.warn("Tracing", "enabled without endpoint, exporting to localhost:4318")
	}

	return d.summary()
}

func (d *doctor) summary() error {
	fmt.Fprintf(d.w, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(d.w, "Results: %d passed, %d warnings, %d failed\n", d.passed, d.warned, d.failed)
	if d.failed > 0 {
		fmt.Fprintf(d.w, "\nPlease fix the failed checks before running modbot.\n")
		return fmt.Errorf("%d check(s) failed", d.failed)
	}
	if d.warned > 0 {
		fmt.Fprintf(d.w, "\nmodbot should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(d.w, "\nAll checks passed! modbot is ready to run.\n")
	}
	return nil
}

// hostPort returns the dial address of an http(s) URL.
func hostPort(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("invalid URL %q: no host", raw)
	}
	port := u.Port()
	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

func checkDial(addr string) error {
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return err
	}
	return conn.Close()
}

func checkPort(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}
