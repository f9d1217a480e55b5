package main

import (
	"encoding/json"
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/jobintel/internal/model"
)

var extractShowEvents bool

var extractCmd = &cobra.Command{
	Use:   "extract <url>",
	Short: "Extract a job posting from a URL",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		url := args[0]
		job, err := env.Store.CreateOrGetJob(ctx, url)
		if err != nil {
			return eris.Wrap(err, "create job")
		}

		attempt, runErr := env.Orch.Run(ctx, job.ID, job.URL)
		if attempt == nil {
			return runErr
		}
		if runErr != nil {
			zap.L().Warn("extraction did not complete",
				zap.String("job_id", job.ID),
				zap.Error(runErr),
			)
		}

		if attempt.Status == model.AttemptStatusCompleted {
			job, err = env.Store.GetJob(ctx, job.ID)
			if err != nil {
				return eris.Wrap(err, "reload job")
			}
			out, err := json.MarshalIndent(job, "", "  ")
			if err != nil {
				return eris.Wrap(err, "render job")
			}
			fmt.Println(string(out))
		} else {
			fmt.Printf("extraction %s: step=%s error=%s (attempt %s, retry with `jobintel retry run %s`)\n",
				attempt.Status, attempt.FailedStep, attempt.ErrorMessage, attempt.ID, attempt.ID)
		}

		if extractShowEvents {
			events, err := env.Store.ListEvents(ctx, attempt.ID)
			if err != nil {
				return eris.Wrap(err, "list events")
			}
			for _, ev := range events {
				fmt.Printf("  %2d. %-28s %-8s %6dms %s\n",
					ev.StepOrder, ev.EventType, ev.Status, ev.DurationMS, ev.ErrorDetail)
			}
		}
		return nil
	},
}

func init() {
	extractCmd.Flags().BoolVar(&extractShowEvents, "events", false, "print the attempt's event trail")
	rootCmd.AddCommand(extractCmd)
}
