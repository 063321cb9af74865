package rewrite

import "context"

// Static returns the redacted text unchanged. It is used for dry runs and
// for deployments that only want the guard.
type Static struct{}

func (Static) Name() string { return "static" }

func (Static) Rewrite(ctx context.Context, redactedText string, _ Instructions) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return redactedText, nil
}
