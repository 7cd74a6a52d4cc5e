package main

import (
	"github.com/spf13/cobra"
)

var BuildVersion = "dev"

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "idpserver",
		Short:         "Multi-tenant OAuth 2.0 / OpenID Connect authorization server",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newServeCommand())
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number of idpserver",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Printf("%s\n", BuildVersion)
		},
	})
	return root
}
