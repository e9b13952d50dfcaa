package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shopauth/internal/apiclient"
)

var (
	apiData    string
	apiHeaders []string
	apiNoAuth  bool
	apiRetries int
	apiTimeout time.Duration
	apiOutput  string
)

var apiCmd = &cobra.Command{
	Use:   "api [METHOD] ENDPOINT",
	Short: "Call the storefront API",
	Long: `Send a request to the storefront API with the session's access token.

The token is renewed before it expires, and once more when the API answers
401. Server errors and network failures are retried with exponential backoff.

Examples:
  shopauth api /orders
  shopauth api POST /cart/items -d '{"sku":"A-100","quantity":1}'
  shopauth api /products --no-auth -o table`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runAPI,
}

func init() {
	rootCmd.AddCommand(apiCmd)
	apiCmd.Flags().StringVarP(&apiData, "data", "d", "", "Request body")
	apiCmd.Flags().StringArrayVarP(&apiHeaders, "header", "H", nil, "Extra header as 'Name: value' (repeatable)")
	apiCmd.Flags().BoolVar(&apiNoAuth, "no-auth", false, "Send the request without a bearer token")
	apiCmd.Flags().IntVar(&apiRetries, "retries", -1, "Retries for server errors (default from config)")
	apiCmd.Flags().DurationVar(&apiTimeout, "timeout", 0, "Per-attempt timeout (default from config)")
	apiCmd.Flags().StringVarP(&apiOutput, "output", "o", "console", "Output format: console, table, json, yaml")
}

// parseAPIArgs splits the optional method from the endpoint.
func parseAPIArgs(args []string) (method, endpoint string, err error) {
	method, endpoint = http.MethodGet, args[0]
	if len(args) == 2 {
		method, endpoint = strings.ToUpper(args[0]), args[1]
	}
	switch method {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
	default:
		return "", "", fmt.Errorf("unsupported method %q", method)
	}
	return method, endpoint, nil
}

// requestOptions builds the per-request options from the flags.
func requestOptions(method string) ([]apiclient.RequestOption, error) {
	opts := []apiclient.RequestOption{apiclient.WithMethod(method)}
	for _, h := range apiHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q, expected 'Name: value'", h)
		}
		opts = append(opts, apiclient.WithHeader(strings.TrimSpace(name), strings.TrimSpace(value)))
	}
	if apiData != "" {
		opts = append(opts, apiclient.WithBody(apiData))
	}
	if apiNoAuth {
		opts = append(opts, apiclient.WithoutAuth())
	}
	if apiRetries >= 0 {
		opts = append(opts, apiclient.WithRetries(apiRetries))
	}
	if apiTimeout > 0 {
		opts = append(opts, apiclient.WithTimeout(apiTimeout))
	}
	return opts, nil
}

func runAPI(cmd *cobra.Command, args []string) error {
	method, endpoint, err := parseAPIArgs(args)
	if err != nil {
		return err
	}
	opts, err := requestOptions(method)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if !apiNoAuth {
		if err := a.start(ctx); err != nil {
			return err
		}
	}

	resp, err := a.api.Request(ctx, endpoint, opts...)
	if err != nil {
		return apiFailure(err)
	}
	authPrint(cmd.ErrOrStderr(), "%d %s\n", resp.Status, resp.StatusText)
	return newFormatter(apiOutput).FormatData(cmd.OutOrStdout(), resp.Data)
}

// apiFailure maps a request error to the CLI error types.
func apiFailure(err error) error {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
		return &AuthRequiredError{Reason: apiclient.UserMessage(err)}
	}
	return fmt.Errorf("%s: %w", apiclient.UserMessage(err), err)
}
