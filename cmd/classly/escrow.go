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

	"github.com/blinklabs-io/classly/escrow"
	"github.com/spf13/cobra"
)

func escrowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "escrow",
		Short: "Two-party escrow commands",
	}
	cmd.AddCommand(escrowListCommand())
	return cmd
}

func escrowListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active escrows at the validator address",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			svc, err := client.Escrow()
			if err != nil {
				return err
			}
			utxos, err := svc.Utxos(cmd.Context())
			if err != nil {
				return err
			}
			var count int
			for utxo, datum := range escrow.Records(utxos) {
				details := escrow.DatumDetails(datum)
				fmt.Printf(
					"%s  student=%s teacher=%s amount=%d deadline=%s\n",
					utxo.Ref.String(),
					details.StudentKeyHash,
					details.TeacherKeyHash,
					details.LockedAmount,
					details.RefundDeadline.Format("2006-01-02T15:04:05Z"),
				)
				count++
			}
			fmt.Printf("%d active escrow(s)\n", count)
			return nil
		},
	}
}

func milestoneCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "milestone",
		Short: "Milestone escrow commands",
	}
	cmd.AddCommand(milestoneListCommand())
	cmd.AddCommand(milestoneShowCommand())
	return cmd
}

func milestoneListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List active milestone escrows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			svc, err := client.Milestone()
			if err != nil {
				return err
			}
			utxos, err := svc.Utxos(cmd.Context())
			if err != nil {
				return err
			}
			var count int
			for utxo, datum := range escrow.MilestoneRecords(utxos) {
				fmt.Printf(
					"%s  id=%s total=%d milestone_reached=%v\n",
					utxo.Ref.String(),
					datum.EscrowID,
					datum.TotalLocked,
					datum.MilestoneReached,
				)
				count++
			}
			fmt.Printf("%d active milestone escrow(s)\n", count)
			return nil
		},
	}
}

func milestoneShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [escrow-id]",
		Short: "Show one milestone escrow by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			svc, err := client.Milestone()
			if err != nil {
				return err
			}
			utxo, datum, err := svc.FindByID(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("utxo:              %s\n", utxo.Ref.String())
			fmt.Printf("escrow id:         %s\n", datum.EscrowID)
			fmt.Printf("total locked:      %d\n", datum.TotalLocked)
			fmt.Printf(
				"phases:            %d / %d / %d\n",
				datum.Phase1Amount,
				datum.Phase2Amount,
				datum.Phase3Amount,
			)
			fmt.Printf(
				"released:          %v / %v / %v\n",
				datum.Phase1Released,
				datum.Phase2Released,
				datum.Phase3Released,
			)
			fmt.Printf("milestone reached: %v\n", datum.MilestoneReached)
			return nil
		},
	}
}
