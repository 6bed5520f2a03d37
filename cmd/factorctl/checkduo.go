package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goFactor/factor"
	"github.com/MrEthical07/goFactor/factor/duo"
)

func newCheckDuoCmd(a *app) *cobra.Command {
	var host, ikey, skey string

	cmd := &cobra.Command{
		Use:   "check-duo",
		Short: "Prove Duo Auth API credentials against /auth/v2/check",
		RunE: func(cmd *cobra.Command, args []string) error {
			provider := duo.New(a.cfg.Duo.Config, nil, nil)
			err := provider.ValidateConfiguration(cmd.Context(), factor.Record{
				Kind:    factor.KindDuo,
				Enabled: true,
				Payload: factor.PushPayload{Host: host, IntegrationKey: ikey, SecretKey: skey},
			})
			switch {
			case err == nil:
				fmt.Fprintf(cmd.OutOrStdout(), "ok: %s accepted the credentials\n", host)
				return nil
			case errors.Is(err, factor.ErrRemoteUnavailable):
				return fmt.Errorf("duo unreachable: %w", err)
			default:
				return err
			}
		},
	}
	cmd.Flags().StringVar(&host, "host", "", "Duo API hostname, e.g. api-xxxxxxxx.duosecurity.com")
	cmd.Flags().StringVar(&ikey, "ikey", "", "integration key")
	cmd.Flags().StringVar(&skey, "skey", "", "secret key")
	_ = cmd.MarkFlagRequired("host")
	_ = cmd.MarkFlagRequired("ikey")
	_ = cmd.MarkFlagRequired("skey")
	return cmd
}
