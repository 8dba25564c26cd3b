package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/einyx/blobstore-go/internal/config"
	"github.com/einyx/blobstore-go/internal/metrics"
	"github.com/einyx/blobstore-go/pkg/blob"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:   "blobcli",
		Short: "Blob storage client",
		Long:  `A thin command-line exerciser for the blobstore-go client library: uploads, downloads, deletes, server-side copies and SAS generation.`,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logLevel, _ := cmd.Flags().GetString("log-level")
			level, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return fmt.Errorf("invalid log level: %w", err)
			}
			logrus.SetLevel(level)
			logrus.SetFormatter(&logrus.JSONFormatter{})
			return nil
		},
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("metrics-listen", "", "serve Prometheus metrics on this address while running")

	rootCmd.AddCommand(uploadCmd(), downloadCmd(), deleteCmd(), copyCmd(), leaseCmd(), sasCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type clientEnv struct {
	cfg        *config.Config
	credential *blob.SharedKeyCredential
	service    blob.ServiceURL
}

func newClientEnv(cmd *cobra.Command) (*clientEnv, error) {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	credential, err := blob.NewSharedKeyCredential(cfg.Account.Name, cfg.Account.Key)
	if err != nil {
		return nil, err
	}

	m := metrics.New("blobcli")
	if addr, _ := cmd.Flags().GetString("metrics-listen"); addr != "" {
		go func() {
			if err := http.ListenAndServe(addr, metrics.Handler()); err != nil {
				logrus.WithError(err).Warn("metrics listener stopped")
			}
		}()
	}

	retryPolicy := blob.RetryPolicyExponential
	if cfg.Retry.Policy == "fixed" {
		retryPolicy = blob.RetryPolicyFixed
	}
	var limiter *rate.Limiter
	if cfg.RateLimit.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit.RequestsPerSecond), cfg.RateLimit.Burst)
	}

	p, err := blob.NewPipeline(credential, blob.PipelineOptions{
		Retry: blob.RetryOptions{
			Policy:                      retryPolicy,
			MaxTries:                    cfg.Retry.MaxTries,
			TryTimeout:                  cfg.Retry.TryTimeout,
			RetryDelay:                  cfg.Retry.RetryDelay,
			MaxRetryDelay:               cfg.Retry.MaxRetryDelay,
			RetryReadsFromSecondaryHost: cfg.Account.SecondaryHost,
			OnRetry:                     m.OnRetry,
		},
		Telemetry:       blob.TelemetryOptions{Value: "blobcli/" + version},
		RateLimit:       limiter,
		Instrumentation: m.Policy(),
	})
	if err != nil {
		return nil, err
	}

	endpoint := cfg.Account.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account.Name)
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"version":  version,
		"commit":   commit,
		"date":     date,
		"account":  cfg.Account.Name,
		"endpoint": endpoint,
	}).Debug("client configured")

	return &clientEnv{
		cfg:        cfg,
		credential: credential,
		service:    blob.NewServiceURL(*u, p),
	}, nil
}

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <container> <blob> <file>",
		Short: "Upload a file to a block blob",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newClientEnv(cmd)
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[2])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[2], err)
			}
			target := env.service.NewContainerURL(args[0]).NewBlockBlobURL(args[1])
			start := time.Now()
			if _, err := blob.UploadBufferToBlockBlob(cmd.Context(), data, target, blob.UploadToBlockBlobOptions{}); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"blob":       target.String(),
				"bytes":      len(data),
				"elapsed_ms": time.Since(start).Milliseconds(),
			}).Info("upload complete")
			return nil
		},
	}
	return cmd
}

func downloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "download <container> <blob> <file>",
		Short: "Download a blob to a local file",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newClientEnv(cmd)
			if err != nil {
				return err
			}
			source := env.service.NewContainerURL(args[0]).NewBlobURL(args[1])
			props, err := source.GetProperties(cmd.Context(), blob.BlobAccessConditions{})
			if err != nil {
				return err
			}
			buf := make([]byte, props.ContentLength())
			if err := blob.DownloadBlobToBuffer(cmd.Context(), source, 0, blob.CountToEnd, buf, blob.DownloadFromBlobOptions{}); err != nil {
				return err
			}
			if err := os.WriteFile(args[2], buf, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", args[2], err)
			}
			logrus.WithFields(logrus.Fields{"blob": source.String(), "bytes": len(buf)}).Info("download complete")
			return nil
		},
	}
	return cmd
}

func deleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <container> <blob>",
		Short: "Delete a blob and its snapshots",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newClientEnv(cmd)
			if err != nil {
				return err
			}
			target := env.service.NewContainerURL(args[0]).NewBlobURL(args[1])
			if _, err := target.Delete(cmd.Context(), blob.DeleteSnapshotsOptionInclude, blob.BlobAccessConditions{}); err != nil {
				if se, ok := blob.IsStorageError(err); ok && se.StatusCode == http.StatusNotFound {
					logrus.WithField("blob", target.String()).Warn("blob did not exist")
					return nil
				}
				return err
			}
			logrus.WithField("blob", target.String()).Info("blob deleted")
			return nil
		},
	}
	return cmd
}

func copyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "copy <source-url> <container> <blob>",
		Short: "Start a server-side copy and wait for it to finish",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newClientEnv(cmd)
			if err != nil {
				return err
			}
			src, err := url.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid source URL: %w", err)
			}
			target := env.service.NewContainerURL(args[1]).NewBlobURL(args[2])
			resp, err := target.StartCopyFromURL(cmd.Context(), *src, nil, blob.BlobAccessConditions{})
			if err != nil {
				return err
			}
			status := resp.CopyStatus()
			for status == "pending" {
				if err := sleep(cmd.Context(), time.Second); err != nil {
					return err
				}
				props, err := target.GetProperties(cmd.Context(), blob.BlobAccessConditions{})
				if err != nil {
					return err
				}
				status = props.CopyStatus()
			}
			logrus.WithFields(logrus.Fields{"copy_id": resp.CopyID(), "status": status}).Info("copy finished")
			return nil
		},
	}
	return cmd
}

func leaseCmd() *cobra.Command {
	var duration int32
	var leaseID string
	cmd := &cobra.Command{
		Use:   "lease <acquire|release|break> <container> [blob]",
		Short: "Manage container or blob leases",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newClientEnv(cmd)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			var (
				resp *blob.LeaseResponse
			)
			if len(args) == 3 {
				target := env.service.NewContainerURL(args[1]).NewBlobURL(args[2])
				switch args[0] {
				case "acquire":
					resp, err = target.AcquireLease(ctx, "", duration, blob.ModifiedAccessConditions{})
				case "release":
					resp, err = target.ReleaseLease(ctx, leaseID, blob.ModifiedAccessConditions{})
				case "break":
					resp, err = target.BreakLease(ctx, -1, blob.ModifiedAccessConditions{})
				default:
					return fmt.Errorf("unknown lease action %q", args[0])
				}
			} else {
				target := env.service.NewContainerURL(args[1])
				switch args[0] {
				case "acquire":
					resp, err = target.AcquireLease(ctx, "", duration, blob.ModifiedAccessConditions{})
				case "release":
					resp, err = target.ReleaseLease(ctx, leaseID, blob.ModifiedAccessConditions{})
				case "break":
					resp, err = target.BreakLease(ctx, -1, blob.ModifiedAccessConditions{})
				default:
					return fmt.Errorf("unknown lease action %q", args[0])
				}
			}
			if err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"action":   args[0],
				"lease_id": resp.LeaseID(),
			}).Info("lease operation complete")
			if args[0] == "acquire" {
				fmt.Println(resp.LeaseID())
			}
			return nil
		},
	}
	cmd.Flags().Int32Var(&duration, "duration", -1, "lease duration in seconds (15-60, or -1 for infinite)")
	cmd.Flags().StringVar(&leaseID, "lease-id", "", "lease id for release")
	return cmd
}

func sasCmd() *cobra.Command {
	var permissions string
	var validFor time.Duration
	cmd := &cobra.Command{
		Use:   "sas <container> [blob]",
		Short: "Generate a service SAS URL for a container or blob",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := newClientEnv(cmd)
			if err != nil {
				return err
			}
			values := blob.BlobSASSignatureValues{
				Protocol:      blob.SASProtocolHTTPS,
				StartTime:     time.Now().UTC().Add(-time.Minute),
				ExpiryTime:    time.Now().UTC().Add(validFor),
				Permissions:   permissions,
				ContainerName: args[0],
			}
			target := env.service.NewContainerURL(args[0]).URL()
			if len(args) == 2 {
				values.BlobName = args[1]
				target = env.service.NewContainerURL(args[0]).NewBlobURL(args[1]).URL()
			}
			qp, err := values.NewSASQueryParameters(env.credential)
			if err != nil {
				return err
			}
			parts := blob.NewBlobURLParts(target)
			parts.SAS = qp
			signed := parts.URL()
			fmt.Println(signed.String())
			return nil
		},
	}
	cmd.Flags().StringVar(&permissions, "permissions", "r", "SAS permissions, e.g. racwdl")
	cmd.Flags().DurationVar(&validFor, "valid-for", time.Hour, "SAS validity window")
	return cmd
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
