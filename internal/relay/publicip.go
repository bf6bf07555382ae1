package relay

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// publicIPServices are tried in order; the first to return a parseable
// IPv4 address wins. Grounded on the relay's original multi-provider
// best-effort echo lookup.
var publicIPServices = []string{
	"https://api.ipify.org",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
}

const publicIPTimeout = 10 * time.Second

// detectPublicIP queries each configured echo service in turn and
// returns the first valid-looking IPv4 address, or "" if none responded
// usefully. Best-effort: failures are not reported to the caller.
func detectPublicIP(ctx context.Context) string {
	client := &http.Client{Timeout: publicIPTimeout}
	for _, svc := range publicIPServices {
		ip, ok := fetchIP(ctx, client, svc)
		if ok {
			return ip
		}
	}
	return ""
}

func fetchIP(ctx context.Context, client *http.Client, url string) (string, bool) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", false
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64))
	if err != nil {
		return "", false
	}
	ip := strings.TrimSpace(string(body))
	if parsed := net.ParseIP(ip); parsed != nil && parsed.To4() != nil {
		return ip, true
	}
	return "", false
}

const portCheckTimeout = 15 * time.Second

// checkPortReachable kicks a third-party TCP reachability check against
// ip:port. Best-effort: network failures report unreachable rather than
// raising an error, since this never gates operation (§4.8).
func checkPortReachable(ctx context.Context, ip string, port int) bool {
	client := &http.Client{Timeout: portCheckTimeout}
	body := strings.NewReader(fmt.Sprintf(`{"host":%q,"ports":[%d]}`, ip, port))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://portchecker.io/api/v1/query", body)
	if err != nil {
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	text, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return false
	}
	return strings.Contains(string(text), `"status":true`)
}
