package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/darwinia-network/bridger-guard/darwinia"
	"github.com/darwinia-network/bridger-guard/relay"
	"github.com/darwinia-network/bridger-guard/shadow"
)

func pendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List pending relay headers and whether the guard account voted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, _, err := loadConfig()
			if err != nil {
				return err
			}
			account, err := relay.ParseAccountID(config.GuardAccount)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), startupTimeout)
			defer cancel()

			chain, err := darwinia.Dial(ctx, config.DarwiniaEndpoint)
			if err != nil {
				return err
			}
			defer chain.Close()
			lastConfirmed, err := chain.LastConfirmed(ctx)
			if err != nil {
				return err
			}
			pending, err := chain.PendingHeaders(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "last confirmed: %d\n", lastConfirmed)
			for _, p := range pending {
				fmt.Fprintf(out, "block=%d submitted_at=%d ayes=%d nays=%d voted=%v\n",
					p.BlockNumber(), p.SubmittedAt, len(p.VotingState.Ayes), len(p.VotingState.Nays),
					chain.HasVoted(account, p.VotingState))
			}
			return nil
		},
	}
}

func showParcelCmd() *cobra.Command {
	var block uint64
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show-parcel",
		Short: "Show the shadow parcel of an ethereum block",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config, _, err := loadConfig()
			if err != nil {
				return err
			}
			client := shadow.NewClient(config.ShadowEndpoint, config.HTTPTimeout())
			parcel, err := client.Parcel(cmd.Context(), block)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				bz, err := shadow.MarshalParcel(parcel)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(bz))
				return nil
			}
			fmt.Fprintf(out, "%+v\n", parcel)
			return nil
		},
	}
	cmd.Flags().Uint64VarP(&block, "block", "b", 0, "ethereum block number")
	cmd.Flags().BoolVarP(&asJSON, "json", "j", false, "print in shadow json format")
	_ = cmd.MarkFlagRequired("block")
	return cmd
}
