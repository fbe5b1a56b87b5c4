package main

import (
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/config"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/dto"
	"github.com/Nilsonfts/Skvoznaya-analitika/internal/service"

	"github.com/spf13/cobra"
)

var (
	tkSubject string
	tkRole    string
	tkTTL     int
)

func init() {
	mintTokenCmd.Flags().StringVar(&tkSubject, "subject", "", "token subject, e.g. the adapter name (required)")
	mintTokenCmd.Flags().StringVar(&tkRole, "role", service.RoleIngestor, "admin | ingestor | scheduler | reporter")
	mintTokenCmd.Flags().IntVar(&tkTTL, "ttl", 0, "lifetime in hours (defaults to JWT_EXPIRATION_HOURS)")
	_ = mintTokenCmd.MarkFlagRequired("subject")
}

// mintTokenCmd only needs JWT_SECRET; it never touches the database.
var mintTokenCmd = &cobra.Command{
	Use:   "mint-token",
	Short: "Issue a service token",
	Long: `Issue a bearer token for an ingestion adapter, the scheduler or a reporting client.

Examples:
  analyticsctl mint-token --subject tilda-webhook --role ingestor
  analyticsctl mint-token --subject bootstrap --role admin --ttl 1`,
	RunE: func(_ *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		resp, err := service.NewAuthService(cfg).MintToken(dto.MintTokenRequest{
			Subject:  tkSubject,
			Role:     tkRole,
			TTLHours: tkTTL,
		})
		if err != nil {
			return err
		}
		return printJSON(resp)
	},
}
