package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// OutboundGuard は外部URL（アクセス統計ソース、キュレーション用フィード）への
// 送信を安全に行うためのHTTPクライアント生成と事前検証を提供する。
// バックエンドAPIへの通信には使用しない（社内ネットワーク上にあるため）。
type OutboundGuard struct {
	ports []int
}

// NewOutboundGuard はOutboundGuardの新しいインスタンスを生成する。
// portsが空の場合は80と443のみ許可する。
func NewOutboundGuard(ports ...int) *OutboundGuard {
	if len(ports) == 0 {
		ports = []int{80, 443}
	}
	return &OutboundGuard{ports: ports}
}

var allowedSchemes = []string{"http", "https"}

// blockedNetworks はパッケージ初期化時に1回だけパースする。
var blockedNetworks = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16", // クラウドメタデータIPを含む
	"0.0.0.0/8",
	"::1/128",
	"fe80::/10",
	"fc00::/7",
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(fmt.Sprintf("invalid CIDR in blockedNetworks: %s: %v", cidr, err))
		}
		networks = append(networks, network)
	}
	return networks
}

// NewSafeClient はプライベートIP・ループバック・リンクローカル宛ての接続を
// ダイヤル時に拒否するHTTPクライアントを生成する。
// DNS解決後のIPアドレスで検証されるため、DNS再バインディングにも対応する。
func (g *OutboundGuard) NewSafeClient(timeout time.Duration) *http.Client {
	config := safeurl.GetConfigBuilder().
		SetTimeout(timeout).
		SetAllowedSchemes(allowedSchemes...).
		SetAllowedPorts(g.ports...).
		Build()

	return safeurl.Client(config).Client
}

// ValidateURL はDNS解決を伴わない静的な検証を行う。
// 入力値を早期に弾くための事前チェックで、実際の防御はNewSafeClientが担う。
func (g *OutboundGuard) ValidateURL(rawURL string) error {
	if strings.TrimSpace(rawURL) == "" {
		return fmt.Errorf("empty URL")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	allowed := false
	for _, s := range allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("disallowed scheme: %q (allowed: %v)", parsed.Scheme, allowedSchemes)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("empty host in URL: %s", rawURL)
	}
	if strings.EqualFold(host, "localhost") || strings.HasSuffix(strings.ToLower(host), ".localhost") {
		return fmt.Errorf("blocked host: %s", host)
	}

	if ip := net.ParseIP(host); ip != nil {
		for _, network := range blockedNetworks {
			if network.Contains(ip) {
				return fmt.Errorf("blocked IP address: %s", ip.String())
			}
		}
	}
	return nil
}
