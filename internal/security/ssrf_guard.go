// Package security は利用者入力の無害化と、外部APIへの送信の保護を提供する。
package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
	"github.com/samber/lo"
)

// EgressGuard は外部API（診断エンジン、メール送信）への送信を保護する。
// 設定値で与えられたエンドポイントが内部ネットワークを向いていないことを保証する。
type EgressGuard interface {
	// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
	// プライベートIP、ループバック、リンクローカル、メタデータIPへの接続は
	// DNS解決後にDialerレベルで拒否される。
	// allowedHostsを指定した場合は、それ以外のホストへの接続も拒否する。
	NewSafeClient(timeout time.Duration, allowedHosts ...string) *http.Client

	// ValidateEndpoint はエンドポイントURLを起動時に静的検証する。
	// requireHTTPSがtrueの場合はhttpsのみ許可する。
	ValidateEndpoint(rawURL string, requireHTTPS bool) error
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はValidateEndpointで拒否するアドレス範囲。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	// クラウドメタデータIP (169.254.169.254) を含む
	"169.254.0.0/16",
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	return lo.Map(cidrs, func(cidr string, _ int) *net.IPNet {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		return network
	})
}

type egressGuard struct{}

// NewEgressGuard はEgressGuardの新しいインスタンスを生成する。
func NewEgressGuard() *egressGuard {
	return &egressGuard{}
}

// NewSafeClient はSSRF防止機能付きのHTTPクライアントを生成する。
// 接続先は80/443番ポートに限る。
func (g *egressGuard) NewSafeClient(timeout time.Duration, allowedHosts ...string) *http.Client {
	builder := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(80, 443)

	if hosts := lo.Compact(allowedHosts); len(hosts) > 0 {
		builder = builder.SetAllowedHosts(hosts...)
	}

	return safeurl.Client(builder.Build()).Client
}

// ValidateEndpoint はDNS解決を伴わない静的な検証を行う。
// DNS再バインディングはNewSafeClient側のDialer検証で防止される。
func (g *egressGuard) ValidateEndpoint(rawURL string, requireHTTPS bool) error {
	if rawURL == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !lo.Contains(allowedSchemes, scheme) {
		return fmt.Errorf("disallowed scheme: %s (allowed: %v)", scheme, allowedSchemes)
	}
	if requireHTTPS && scheme != "https" {
		return fmt.Errorf("https is required: %s", rawURL)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}

	if ip := net.ParseIP(host); ip != nil {
		if isBlockedIP(ip) {
			return fmt.Errorf("blocked IP address: %s", ip.String())
		}
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	return nil
}

// EndpointHost はURLのホスト名を小文字で返す。解析できない場合は空文字列。
func EndpointHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

func isBlockedIP(ip net.IP) bool {
	return lo.ContainsBy(blockedNetworks, func(network *net.IPNet) bool {
		return network.Contains(ip)
	})
}
