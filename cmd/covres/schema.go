package main

import (
	"covres/internal/logger"
	"covres/internal/migrate"
	"covres/internal/store"

	"github.com/spf13/cobra"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Create the covariate tables if they do not exist",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()
		logger.L().Info("schema_ok")
		return nil
	},
}

func migrateSchema(st *store.Store) error {
	return migrate.EnsureSchema(st.DB())
}
