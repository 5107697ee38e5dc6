package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var apiCmd = &cobra.Command{
	Use:   "api METHOD ENDPOINT",
	Short: "Call an authenticated storefront endpoint",
	Long: `Send a request with the stored access token, refreshing it once if the
storefront answers 401. ENDPOINT is relative to the API base URL, for example:

  mall api GET /orders/?page=2
  mall api POST /cart/add/ --data '{"product_id": 3, "quantity": 1}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		method := strings.ToUpper(args[0])
		endpoint := args[1]
		if !strings.HasPrefix(endpoint, "/") {
			endpoint = "/" + endpoint
		}

		var body any
		if data, _ := cmd.Flags().GetString("data"); data != "" {
			if !json.Valid([]byte(data)) {
				return fmt.Errorf("--data is not valid JSON")
			}
			body = json.RawMessage(data)
		}

		s, release, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer release()

		res, err := s.Do(cmd.Context(), method, endpoint, body)
		if err != nil {
			return err
		}
		if res.Refreshed {
			logger.InfoContext(cmd.Context(), "access token was refreshed")
		}
		return printResult(res)
	},
}

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringP("data", "d", "", "JSON request body")
}
