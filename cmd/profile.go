package cmd

import (
	"github.com/spf13/cobra"

	"github.com/shoppingmall/mall/internal/client"
	"github.com/shoppingmall/mall/pkg/output"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Account profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show your account profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, release, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer release()

		res, err := s.Get(cmd.Context(), client.PathProfile)
		if err != nil {
			return err
		}
		if err := res.Err(); err != nil {
			return printResult(res)
		}

		user, err := client.DecodeUser(res.Body)
		if err != nil {
			return err
		}

		if jsonOutput(cmd) {
			return output.JSON(user)
		}

		table := output.NewTable([]string{"FIELD", "VALUE"})
		table.AddRow([]string{"Email", user.Email})
		table.AddRow([]string{"Username", user.Username})
		table.AddRow([]string{"First name", user.FirstName})
		table.AddRow([]string{"Last name", user.LastName})
		table.AddRow([]string{"Phone", user.PhoneNumber})
		if user.DateOfBirth != nil {
			table.AddRow([]string{"Date of birth", *user.DateOfBirth})
		}
		table.AddRow([]string{"Joined", user.DateJoined})
		table.Render()
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileCmd.AddCommand(profileShowCmd)
}
