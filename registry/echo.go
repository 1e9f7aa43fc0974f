package registry

import (
	"context"
	"fmt"
)

// Echo returns a call that performs no I/O and reports which URL it would have called.
// The payload has the form "Result from <name> at URL: <url>".
func Echo(name, url string) BackendCall {
	payload := fmt.Sprintf("Result from %s at URL: %s", name, url)
	return func(ctx context.Context) (string, error) {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return payload, nil
	}
}
