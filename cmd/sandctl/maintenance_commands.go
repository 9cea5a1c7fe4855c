package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/sandmap/internal/backend/database"
	"github.com/jo-hoe/sandmap/internal/core"
	"github.com/spf13/cobra"
)

func newStaleCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stale",
		Short: "List unprocessed submissions older than a threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withService(func(service *core.CoreService) error {
				threshold := olderThan
				if threshold == 0 {
					threshold = service.Config().Maintenance.StaleAfter
				}
				stale, err := service.ListStale(cmd.Context(), threshold)
				if err != nil {
					return err
				}

				if asJSON {
					encoder := json.NewEncoder(cmd.OutOrStdout())
					encoder.SetIndent("", "  ")
					return encoder.Encode(stale)
				}
				if len(stale) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "No submissions pending for more than %s\n", threshold)
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]string{"ID", "Latitude", "Longitude", "Created", "Age", "Image"},
					buildStaleRows(stale, time.Now()),
					0, 1, 2, 4,
				))
				return nil
			})
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age of a pending submission (defaults to maintenance.staleAfter)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print submissions as JSON")
	return cmd
}

func buildStaleRows(submissions []*database.Submission, now time.Time) [][]string {
	rows := make([][]string, 0, len(submissions))
	for _, submission := range submissions {
		rows = append(rows, []string{
			strconv.FormatInt(submission.ID, 10),
			strconv.FormatFloat(submission.Latitude, 'f', 6, 64),
			strconv.FormatFloat(submission.Longitude, 'f', 6, 64),
			submission.CreatedAt.UTC().Format(time.RFC3339),
			now.Sub(submission.CreatedAt).Truncate(time.Second).String(),
			submission.Image,
		})
	}
	return rows
}

func newRedispatchCommand(ctx *commandContext) *cobra.Command {
	var stale bool
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "redispatch [id...]",
		Short: "Send work messages again for pending submissions",
		Args: func(cmd *cobra.Command, args []string) error {
			if stale && len(args) > 0 {
				return errors.New("pass submission ids or --stale, not both")
			}
			if !stale && len(args) == 0 {
				return errors.New("pass at least one submission id or --stale")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseIDs(args)
			if err != nil {
				return err
			}

			return ctx.withService(func(service *core.CoreService) error {
				out := cmd.OutOrStdout()
				if stale {
					threshold := olderThan
					if threshold == 0 {
						threshold = service.Config().Maintenance.StaleAfter
					}
					dispatched, err := service.RedispatchStale(cmd.Context(), threshold)
					fmt.Fprintf(out, "Redispatched %d stale submissions\n", len(dispatched))
					return err
				}

				var errs []error
				for _, id := range ids {
					if _, err := service.Redispatch(cmd.Context(), id); err != nil {
						errs = append(errs, err)
						continue
					}
					fmt.Fprintf(out, "Redispatched submission %d\n", id)
				}
				return errors.Join(errs...)
			})
		},
	}

	cmd.Flags().BoolVar(&stale, "stale", false, "Redispatch every stale submission")
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Minimum age used with --stale (defaults to maintenance.staleAfter)")
	return cmd
}

func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid submission id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
