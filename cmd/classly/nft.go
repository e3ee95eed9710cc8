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

	"github.com/spf13/cobra"
)

func nftCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "nft",
		Short: "Classroom NFT commands",
	}
	cmd.AddCommand(nftListCommand())
	cmd.AddCommand(nftPolicyCommand())
	return cmd
}

func nftListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list [address]",
		Short: "List classroom NFTs held at an address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			issuer, err := client.Nft()
			if err != nil {
				return err
			}
			owned, err := issuer.OwnedNFTs(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			for _, asset := range owned {
				fmt.Printf(
					"%s  %s (%s)\n",
					asset.Utxo.Ref.String(),
					asset.AssetName,
					asset.Unit,
				)
			}
			fmt.Printf("%d NFT(s)\n", len(owned))
			return nil
		},
	}
}

func nftPolicyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "policy",
		Short: "Display the classroom NFT policy id",
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newClient(cmd)
			if err != nil {
				return err
			}
			issuer, err := client.Nft()
			if err != nil {
				return err
			}
			fmt.Println(issuer.PolicyID())
			return nil
		},
	}
}
