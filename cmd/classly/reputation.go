// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package main

import (
	"fmt"

	"github.com/blinklabs-io/classly/reputation"
	"github.com/spf13/cobra"
)

func reputationCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reputation",
		Short: "Teacher reputation commands",
	}
	cmd.AddCommand(reputationLeaderboardCommand())
	cmd.AddCommand(reputationShowCommand())
	return cmd
}

func reputationLeaderboardCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "leaderboard",
		Short: "List teachers by average rating",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			svc, err := client.Reputation()
			if err != nil {
				return err
			}
			entries, err := svc.Leaderboard(cmd.Context())
			if err != nil {
				return err
			}
			for i, entry := range entries {
				fmt.Printf(
					"%3d. %s  avg=%s ratings=%d\n",
					i+1,
					entry.TeacherKeyHash,
					entry.Average.StringFixed(2),
					entry.RatingsCount,
				)
			}
			return nil
		},
	}
}

func reputationShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [teacher-address]",
		Short: "Show one teacher's reputation record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			svc, err := client.Reputation()
			if err != nil {
				return err
			}
			utxo, datum, err := svc.Find(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			details := reputation.DatumDetails(datum)
			fmt.Printf("utxo:          %s\n", utxo.Ref.String())
			fmt.Printf("teacher:       %s\n", details.TeacherKeyHash)
			fmt.Printf("ratings:       %d\n", details.TotalRatingsCount)
			fmt.Printf("average:       %s\n", details.AverageRating.StringFixed(2))
			fmt.Printf("score:         %s%%\n", details.PercentageScore.StringFixed(1))
			fmt.Printf("version:       %d\n", details.Version)
			fmt.Printf(
				"last updated:  %s\n",
				details.LastUpdated.UTC().Format("2006-01-02T15:04:05Z"),
			)
			return nil
		},
	}
}
