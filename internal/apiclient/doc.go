// Package apiclient calls the storefront API on behalf of the signed-in
// user.
//
// Every request carries the session's bearer token. Tokens close to expiry
// are renewed before they are sent, and a 401 response triggers exactly one
// forced refresh followed by one retry. Server errors and network failures
// are retried with exponential backoff (delay * 2^attempt); client errors
// and cancelled requests are not.
//
// In-flight requests are tracked in a Registry so callers can show loading
// indicators:
//
//	client := apiclient.New(cfg.API, manager)
//	cancel := client.Registry().Subscribe(func(st apiclient.LoadingState) {
//		spinner.Active = st.Global
//	})
//	defer cancel()
//
//	resp, err := client.Get(ctx, "/orders")
//	if err != nil {
//		fmt.Println(apiclient.UserMessage(err))
//	}
package apiclient
