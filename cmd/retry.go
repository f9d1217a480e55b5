package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/jobintel/internal/model"
	"github.com/sells-group/jobintel/internal/store"
)

var retryStep string

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Retry failed extraction attempts and review the dead letter queue",
}

var retryRunCmd = &cobra.Command{
	Use:   "run <attempt-id>",
	Short: "Retry a failed attempt",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		var attempt *model.Attempt
		switch retryStep {
		case "fetch":
			attempt, err = env.Retry.RetryHTMLFetch(ctx, args[0])
		case "extraction":
			attempt, err = env.Retry.RetryExtraction(ctx, args[0])
		case "full":
			attempt, err = env.Retry.RetryFull(ctx, args[0])
		default:
			return eris.Errorf("unknown --step %q (fetch, extraction, full)", retryStep)
		}
		if err != nil && attempt == nil {
			return err
		}

		fmt.Printf("attempt %s: status=%s method=%s confidence=%.2f retries=%d\n",
			attempt.ID, attempt.Status, attempt.Method, attempt.Confidence, attempt.RetryCount)
		if attempt.Status != model.AttemptStatusCompleted && err != nil {
			fmt.Printf("  %s\n", err)
		}
		return nil
	},
}

var retryDeadLetterCmd = &cobra.Command{
	Use:   "dead-letter",
	Short: "List attempts parked in the dead letter queue",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		attempts, err := env.Store.ListAttempts(ctx, store.AttemptFilter{
			Status: model.AttemptStatusDeadLetter,
			Limit:  100,
		})
		if err != nil {
			return eris.Wrap(err, "list dead letter attempts")
		}

		if len(attempts) == 0 {
			fmt.Println("dead letter queue is empty")
			return nil
		}
		for _, a := range attempts {
			fmt.Printf("%s  job=%s retries=%d step=%s  %s\n    %s\n",
				a.ID, a.JobID, a.RetryCount, a.FailedStep, a.URL, a.ErrorMessage)
		}
		return nil
	},
}

var retryResolveCmd = &cobra.Command{
	Use:   "resolve <attempt-id>",
	Short: "Mark a failed attempt for manual handling",
	Long:  "Takes the attempt out of the retry loop permanently. Use requeue to start a fresh extraction for the posting later.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		attempt, err := env.Retry.Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("attempt %s marked manual (job %s, failed at %s: %s)\n",
			attempt.ID, attempt.JobID, attempt.FailedStep, attempt.ErrorMessage)
		return nil
	},
}

var retryRequeueCmd = &cobra.Command{
	Use:   "requeue <attempt-id>",
	Short: "Queue a fresh extraction for a dead-lettered attempt's posting",
	Long:  "Dead letter is terminal for the attempt itself; requeue starts over with a new attempt via the background worker.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initPipeline(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		attempt, err := env.Store.GetAttempt(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "load attempt")
		}
		if attempt.Status != model.AttemptStatusDeadLetter {
			return eris.Errorf("attempt %s is %s, only dead_letter attempts can be requeued", attempt.ID, attempt.Status)
		}

		if err := env.Store.Enqueue(ctx, attempt.JobID, attempt.URL, time.Now().UTC()); err != nil {
			return eris.Wrap(err, "enqueue")
		}
		fmt.Printf("queued fresh extraction for job %s (%s)\n", attempt.JobID, attempt.URL)
		return nil
	},
}

func init() {
	retryRunCmd.Flags().StringVar(&retryStep, "step", "full", "retry entry point: fetch, extraction, or full")
	retryCmd.AddCommand(retryRunCmd)
	retryCmd.AddCommand(retryDeadLetterCmd)
	retryCmd.AddCommand(retryResolveCmd)
	retryCmd.AddCommand(retryRequeueCmd)
	rootCmd.AddCommand(retryCmd)
}
