package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"devcompliance/internal/client"
	"devcompliance/internal/compliance/models"
	id "devcompliance/pkg/domain"
	dErrors "devcompliance/pkg/domain-errors"
)

// errNonCompliant makes `status --check` exit non-zero for scripts.
var errNonCompliant = errors.New("device is not compliant")

// app carries state shared by every subcommand once PersistentPreRunE ran.
type app struct {
	v       *viper.Viper
	cfgFile string
	cfg     cliConfig
	client  *client.Client
}

func newRootCmd() *cobra.Command {
	a := &app{v: newViper()}

	cmd := &cobra.Command{
		Use:           "compliancectl",
		Short:         "Manage device maintenance compliance records",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			home, _ := os.UserHomeDir()
			cfg, err := loadConfig(a.v, a.cfgFile, home)
			if err != nil {
				return err
			}
			c, err := client.New(cfg.Server)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.client = c
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default ./.compliancectl.yaml or $HOME/.compliancectl.yaml)")
	flags.String("server", "", "compliance server base URL")
	flags.Duration("timeout", 0, "per-request timeout")
	flags.StringP("output", "o", "", "output format: text or json")
	_ = a.v.BindPFlag("server", flags.Lookup("server"))
	_ = a.v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = a.v.BindPFlag("output", flags.Lookup("output"))

	cmd.AddCommand(
		a.initCmd(),
		a.maintainCmd(),
		a.certifyCmd(),
		a.showCmd(),
		a.statusCmd(),
	)
	return cmd
}

func (a *app) initCmd() *cobra.Command {
	var next string
	cmd := &cobra.Command{
		Use:   "init DEVICE_ID",
		Short: "Create or reset a device record with a maintenance deadline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, nextAt, err := parseDeviceAndTime(args[0], next)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()
			rec, err := a.client.Initialize(ctx, deviceID, nextAt)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), rec, func(w io.Writer) {
				fmt.Fprintf(w, "initialized %s (maintenance due %s)\n", rec.DeviceID, formatUnix(rec.NextRequiredDate))
			})
		},
	}
	cmd.Flags().StringVar(&next, "next", "", "next required maintenance (Unix seconds or RFC3339)")
	_ = cmd.MarkFlagRequired("next")
	return cmd
}

func (a *app) maintainCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "maintain DEVICE_ID",
		Short: "Record a maintenance (defaults to the server's current time)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, performedAt, err := parseDeviceAndTime(args[0], at)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()
			if err := a.client.RecordMaintenance(ctx, deviceID, performedAt); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "maintenance recorded for %s\n", deviceID)
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "when the maintenance was performed (Unix seconds or RFC3339)")
	return cmd
}

func (a *app) certifyCmd() *cobra.Command {
	var certID, expires string
	cmd := &cobra.Command{
		Use:   "certify DEVICE_ID",
		Short: "Attach or replace the device certificate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, expiry, err := parseDeviceAndTime(args[0], expires)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()
			if err := a.client.AttachCertification(ctx, deviceID, certID, expiry); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "certificate %s attached to %s\n", certID, deviceID)
			return nil
		},
	}
	cmd.Flags().StringVar(&certID, "id", "", "certification identifier")
	cmd.Flags().StringVar(&expires, "expires", "", "certificate expiry (Unix seconds or RFC3339)")
	_ = cmd.MarkFlagRequired("id")
	_ = cmd.MarkFlagRequired("expires")
	return cmd
}

func (a *app) showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show DEVICE_ID",
		Short: "Print the stored compliance record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, err := id.ParseDeviceID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()
			rec, err := a.client.GetComplianceDetails(ctx, deviceID)
			if err != nil {
				return err
			}
			return a.print(cmd.OutOrStdout(), rec, func(w io.Writer) {
				fmt.Fprintf(w, "device:           %s\n", rec.DeviceID)
				fmt.Fprintf(w, "status:           %s\n", rec.ComplianceStatus)
				fmt.Fprintf(w, "next maintenance: %s\n", formatUnix(rec.NextRequiredDate))
				if rec.LastMaintenanceDate != nil {
					fmt.Fprintf(w, "last maintenance: %s\n", formatUnix(*rec.LastMaintenanceDate))
				}
				if rec.CertificationID != nil && rec.CertificationExpiry != nil {
					fmt.Fprintf(w, "certificate:      %s (expires %s)\n", *rec.CertificationID, formatUnix(*rec.CertificationExpiry))
				}
			})
		},
	}
}

func (a *app) statusCmd() *cobra.Command {
	var at string
	var check bool
	cmd := &cobra.Command{
		Use:   "status DEVICE_ID",
		Short: "Evaluate compliance and maintenance-due verdicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			deviceID, when, err := parseDeviceAndTime(args[0], at)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd)
			defer cancel()
			st, err := a.client.Status(ctx, deviceID, when)
			if err != nil {
				return err
			}
			err = a.print(cmd.OutOrStdout(), st, func(w io.Writer) {
				fmt.Fprintf(w, "%s at %s: compliant=%t needs_maintenance=%t\n",
					st.DeviceID, formatUnix(st.EvaluatedAt), st.Compliant, st.NeedsMaintenance)
			})
			if err != nil {
				return err
			}
			if check && !st.Compliant {
				return errNonCompliant
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "reference time (Unix seconds or RFC3339, default server time)")
	cmd.Flags().BoolVar(&check, "check", false, "exit with status 3 when the device is not compliant")
	return cmd
}

func (a *app) requestContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	if a.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, a.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

func (a *app) print(w io.Writer, v any, text func(io.Writer)) error {
	if a.cfg.Output == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	text(w)
	return nil
}

// parseDeviceAndTime validates the device argument and an optional time flag.
// An empty flag yields the zero time.
func parseDeviceAndTime(rawID, rawTime string) (id.DeviceID, time.Time, error) {
	deviceID, err := id.ParseDeviceID(rawID)
	if err != nil {
		return "", time.Time{}, err
	}
	if rawTime == "" {
		return deviceID, time.Time{}, nil
	}
	t, err := parseTime(rawTime)
	if err != nil {
		return "", time.Time{}, err
	}
	return deviceID, t, nil
}

// parseTime accepts Unix seconds or RFC3339.
func parseTime(raw string) (time.Time, error) {
	if sec, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return models.ParseUnix(sec)
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("invalid time %q: use Unix seconds or RFC3339", raw))
	}
	return models.CheckTime(t)
}

func formatUnix(sec int64) string {
	return time.Unix(sec, 0).UTC().Format(time.RFC3339)
}

// exitCode maps failures to stable process exit codes.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errNonCompliant):
		return 3
	case dErrors.HasCode(err, dErrors.CodeNotFound):
		return 4
	case dErrors.HasCode(err, dErrors.CodeUnavailable):
		return 5
	default:
		return 1
	}
}
