package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrEthical07/goFactor/factor/authenticator"
)

func newTOTPCmd(_ *app) *cobra.Command {
	var (
		secret string
		at     string
	)

	cmd := &cobra.Command{
		Use:   "totp",
		Short: "Print the authenticator code for a secret and its neighbouring steps",
		RunE: func(cmd *cobra.Command, args []string) error {
			now := time.Now()
			if at != "" {
				t, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--at: %w", err)
				}
				now = t
			}
			if _, err := authenticator.DecodeSecret(secret); err != nil {
				return fmt.Errorf("secret is not base32: %w", err)
			}

			out := cmd.OutOrStdout()
			for _, offset := range []int{-1, 0, 1} {
				t := now.Add(time.Duration(offset) * authenticator.Period)
				code, err := authenticator.Code(secret, t)
				if err != nil {
					return err
				}
				label := "current"
				if offset < 0 {
					label = "previous"
				} else if offset > 0 {
					label = "next"
				}
				fmt.Fprintf(out, "%-8s %s  step=%d\n", label, code, t.Unix()/int64(authenticator.Period/time.Second))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "base32 shared secret")
	cmd.Flags().StringVar(&at, "at", "", "RFC 3339 time to evaluate instead of now")
	_ = cmd.MarkFlagRequired("secret")
	return cmd
}
