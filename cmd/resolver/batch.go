package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rossigee/slot-rank-tracker/internal/jobs"
	"github.com/rossigee/slot-rank-tracker/internal/minio"
	"github.com/rossigee/slot-rank-tracker/internal/registry"
	"github.com/rossigee/slot-rank-tracker/pkg/types"
)

// connectTimeout bounds the initial registry reachability check
const connectTimeout = 5 * time.Second

var errRegistryUnreachable = errors.New("registry unreachable")

// ReportUploader archives a finished run
type ReportUploader interface {
	UploadReport(ctx context.Context, report *types.RunReport) (string, error)
}

// BatchRunner checks a list of jobs in one go
type BatchRunner interface {
	RunBatch(ctx context.Context, jobs []types.Keyword) (*types.RunReport, error)
}

func newBatchCmd(a *app) *cobra.Command {
	var upload bool

	cmd := &cobra.Command{
		Use:   "batch [--upload-report]",
		Short: "Fetches pending keywords from the registry, checks each once and posts the results.",
		RunE: func(cmd *cobra.Command, args []string) error {
			worker, err := a.newWorker()
			if err != nil {
				return err
			}

			client := registry.NewClient(a.cfg.RegistryURL, 30*time.Second)
			client.SetToken(a.cfg.RegistryToken)

			var uploader ReportUploader
			if upload {
				minioCfg, enabled := minio.ConfigFromEnv()
				if !enabled {
					return fmt.Errorf("--upload-report requires MINIO_ENDPOINT")
				}
				mc, err := minio.NewClient(minioCfg)
				if err != nil {
					return err
				}
				uploader = mc
			}

			return runBatch(cmd.Context(), client, worker, uploader, a.cfg.Worker.SlotType)
		},
	}

	cmd.Flags().BoolVar(&upload, "upload-report", false, "store the JSON run report in MinIO")
	return cmd
}

// runBatch is one pass over the registry. It returns an error only when the registry
// cannot be read; posting and report upload failures are logged.
func runBatch(ctx context.Context, client *registry.Client, runner BatchRunner, uploader ReportUploader, slotType string) error {
	log := logrus.WithField("registry", client.BaseURL())

	listCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	pending, err := client.ListKeywords(listCtx, slotType)
	cancel()
	if err != nil {
		if registry.IsConnectivityError(err) {
			log.WithError(err).Error("Cannot reach the registry. Start the registry server " +
				"or point REGISTRY_URL (--registry-url) at a running instance, then retry.")
			return fmt.Errorf("%w: %v", errRegistryUnreachable, err)
		}
		return fmt.Errorf("failed to list keywords: %w", err)
	}

	if len(pending) == 0 {
		log.Info("No pending keywords")
		return nil
	}
	if valid, _ := jobs.FilterValid(pending); len(valid) == 0 {
		log.WithField("pending", len(pending)).Info("No pending keywords with a product id")
		return nil
	}

	report, err := runner.RunBatch(ctx, pending)
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"run_id": report.RunID,
		"status": report.Status,
		"found":  fmt.Sprintf("%d/%d", report.Found, report.Total),
		"pages":  report.PagesChecked,
	}).Info("Batch finished")

	if len(report.Results) > 0 {
		resp, err := client.PostResults(ctx, report.Results)
		if err != nil {
			log.WithError(err).Error("Failed to post results to the registry")
		} else {
			log.WithFields(logrus.Fields{
				"applied":  resp.Stats.Success,
				"rejected": resp.Stats.Failed,
			}).Info("Posted results to the registry")
		}
	}

	if uploader != nil {
		if _, err := uploader.UploadReport(ctx, report); err != nil {
			log.WithError(err).Warn("Failed to upload run report")
		}
	}
	return nil
}
