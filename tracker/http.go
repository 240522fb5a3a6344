package tracker

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

func announceHTTP(ctx context.Context, announce string, req Request) (Response, error) {
	url := announce + "?" + req.httpParams().Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("announce request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read response body: %w", err)
	}
	return parseHTTPResponse(body)
}
